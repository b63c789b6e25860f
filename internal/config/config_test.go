package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gps-relay/internal/position"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvHost, EnvService, EnvFormat, EnvLogLevel} {
		t.Setenv(k, "")
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "upstream: {}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	u := cfg.Upstream
	if u.Source != SourceTCP || u.Host != "localhost" || u.Service != "10110" || u.Format != FormatNMEA {
		t.Fatalf("upstream=%+v", u)
	}
	if u.DialTimeout != 5*time.Second || u.RetryInterval != 0 {
		t.Fatalf("timeouts=%+v", u)
	}
	if cfg.Engine.Tick != 100*time.Millisecond || cfg.Engine.MaxSubscriptions <= 0 {
		t.Fatalf("engine=%+v", cfg.Engine)
	}
	if cfg.Web.Listen != ":8080" || cfg.Log.Level != "INFO" || cfg.Log.Format != "text" {
		t.Fatalf("web=%+v log=%+v", cfg.Web, cfg.Log)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Upstream.Host != "localhost" {
		t.Fatalf("host=%q", cfg.Upstream.Host)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvHost, "gps.local")
	t.Setenv(EnvService, "2947")
	t.Setenv(EnvLogLevel, "DEBUG")
	path := writeTempConfig(t, "upstream:\n  host: file.local\n  service: '10110'\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Upstream.Host != "gps.local" || cfg.Upstream.Service != "2947" || cfg.Log.Level != "DEBUG" {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoad_RejectsNonNMEAFormat(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvFormat, "gpsd-json")
	_, err := Load("")
	requireErrEq(t, err, `upstream.format "gpsd-json" is not supported (only "nmea")`)
}

func TestLoad_SerialRequiresDevice(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "upstream:\n  source: serial\n")
	_, err := Load(path)
	requireErrEq(t, err, "upstream.device is required when upstream.source is 'serial'")

	path = writeTempConfig(t, "upstream:\n  source: serial\n  device: /dev/ttyACM0\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Upstream.Baud != 9600 {
		t.Fatalf("baud=%d want 9600", cfg.Upstream.Baud)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"Source", "upstream:\n  source: usb\n", "upstream.source must be 'tcp' or 'serial'"},
		{"Retry", "upstream:\n  retry_interval: -1s\n", "upstream.retry_interval must be >= 0"},
		{"LogFormat", "log:\n  format: xml\n", "log.format must be 'text' or 'json'"},
		{"SinkKind", "sinks:\n  - addr: x\n", "sinks[0].kind is required"},
		{"SinkKindUnknown", "sinks:\n  - kind: kafka\n    addr: x\n", "sinks[0].kind must be 'udp', 'mqtt' or 'nats'"},
		{"SinkAddr", "sinks:\n  - kind: udp\n", "sinks[0].addr is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			_, err := Load(writeTempConfig(t, tc.body))
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_SinkDefaultsAndType(t *testing.T) {
	clearEnv(t)
	body := "sinks:\n" +
		"  - kind: mqtt\n    addr: tcp://broker:1883\n" +
		"  - kind: nats\n    addr: nats://127.0.0.1:4222\n    type: DMS.kn\n    period: 500ms\n"
	cfg, err := Load(writeTempConfig(t, body))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got := cfg.Sinks[0]; got.Topic != "gps/position" || got.Period != 2*time.Second {
		t.Fatalf("mqtt sink=%+v", got)
	}
	if got := cfg.Sinks[1]; got.Topic != "gps.position" || got.Period != 500*time.Millisecond || got.Type != "DMS.kn" {
		t.Fatalf("nats sink=%+v", got)
	}

	_, err = Load(writeTempConfig(t, "sinks:\n  - kind: udp\n    addr: x:1\n    type: UTM\n"))
	if !errors.Is(err, position.ErrUnknownType) {
		t.Fatalf("err=%v want ErrUnknownType", err)
	}
}

func TestLoad_RejectsUnknownField(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "upstream:\n  host: x\n  port: 10110\n")
	_, err := Load(path)
	if err == nil || !strings.HasPrefix(err.Error(), "config contains unknown fields: field port not found") {
		t.Fatalf("err=%v", err)
	}
}

func TestApplyEnv_IgnoresBlank(t *testing.T) {
	cfg := Config{Upstream: UpstreamConfig{Host: "keep"}}
	env := map[string]string{EnvHost: "  ", EnvService: " 4001 "}
	ApplyEnv(&cfg, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if cfg.Upstream.Host != "keep" || cfg.Upstream.Service != "4001" {
		t.Fatalf("upstream=%+v", cfg.Upstream)
	}
}
