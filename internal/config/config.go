package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"gps-relay/internal/logging"
	"gps-relay/internal/position"
	"gps-relay/internal/subscription"
)

// Environment variables that override the file.
const (
	EnvHost     = "GPS_RELAY_HOST"
	EnvService  = "GPS_RELAY_SERVICE"
	EnvFormat   = "GPS_RELAY_FORMAT"
	EnvLogLevel = "GPS_RELAY_LOG_LEVEL"
)

const (
	SourceTCP    = "tcp"
	SourceSerial = "serial"

	FormatNMEA = "nmea"

	SinkUDP  = "udp"
	SinkMQTT = "mqtt"
	SinkNATS = "nats"
)

type Config struct {
	Upstream UpstreamConfig `yaml:"upstream"`
	Engine   EngineConfig   `yaml:"engine"`
	Web      WebConfig      `yaml:"web"`
	Log      LogConfig      `yaml:"log"`
	Sinks    []SinkConfig   `yaml:"sinks"`
}

type UpstreamConfig struct {
	// Source selects the transport: "tcp" (default) or "serial".
	Source string `yaml:"source"`

	Host    string `yaml:"host"`
	Service string `yaml:"service"`

	// Format names the framing of the stream. Only "nmea" is implemented.
	Format string `yaml:"format"`

	Device string `yaml:"device"`
	Baud   uint   `yaml:"baud"`

	DialTimeout time.Duration `yaml:"dial_timeout"`

	// RetryInterval enables periodic reconnect attempts after a failed
	// reconnect. Zero keeps the single immediate retry.
	RetryInterval time.Duration `yaml:"retry_interval"`
}

type EngineConfig struct {
	Tick             time.Duration `yaml:"tick"`
	MaxSubscriptions int           `yaml:"max_subscriptions"`
}

type WebConfig struct {
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SinkConfig publishes documents of one type at one period to an external
// destination.
type SinkConfig struct {
	Kind string `yaml:"kind"`
	// Addr is host:port for udp, a broker URL for mqtt and nats.
	Addr     string        `yaml:"addr"`
	Topic    string        `yaml:"topic"`
	Type     string        `yaml:"type"`
	Period   time.Duration `yaml:"period"`
	ClientID string        `yaml:"client_id"`
}

// Load reads the YAML file at path, applies environment overrides and fills in
// defaults. An empty path yields the defaults plus environment.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, unknownFieldError(err)
		}
	}

	ApplyEnv(&cfg, os.LookupEnv)
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides the upstream endpoint and log level from the
// environment.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&cfg.Upstream.Host, EnvHost)
	set(&cfg.Upstream.Service, EnvService)
	set(&cfg.Upstream.Format, EnvFormat)
	set(&cfg.Log.Level, EnvLogLevel)
}

func DefaultAndValidate(cfg *Config) error {
	u := &cfg.Upstream
	if u.Source == "" {
		u.Source = SourceTCP
	}
	if u.Format == "" {
		u.Format = FormatNMEA
	}
	if u.Format != FormatNMEA {
		return fmt.Errorf("upstream.format %q is not supported (only %q)", u.Format, FormatNMEA)
	}
	switch u.Source {
	case SourceTCP:
		if u.Host == "" {
			u.Host = "localhost"
		}
		if u.Service == "" {
			// IANA nmea-0183 port.
			u.Service = "10110"
		}
	case SourceSerial:
		if u.Device == "" {
			return fmt.Errorf("upstream.device is required when upstream.source is 'serial'")
		}
		if u.Baud == 0 {
			u.Baud = 9600
		}
	default:
		return fmt.Errorf("upstream.source must be 'tcp' or 'serial'")
	}
	if u.DialTimeout <= 0 {
		u.DialTimeout = 5 * time.Second
	}
	if u.RetryInterval < 0 {
		return fmt.Errorf("upstream.retry_interval must be >= 0")
	}

	if cfg.Engine.Tick <= 0 {
		cfg.Engine.Tick = 100 * time.Millisecond
	}
	if cfg.Engine.MaxSubscriptions <= 0 {
		cfg.Engine.MaxSubscriptions = subscription.DefaultMaxSubscriptions
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = logging.LevelInfo
	}
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = logging.FormatText
	}
	if cfg.Log.Format != logging.FormatText && cfg.Log.Format != logging.FormatJSON {
		return fmt.Errorf("log.format must be 'text' or 'json'")
	}

	for i := range cfg.Sinks {
		if err := defaultSink(i, &cfg.Sinks[i]); err != nil {
			return err
		}
	}
	return nil
}

func defaultSink(i int, s *SinkConfig) error {
	field := func(name string) string { return fmt.Sprintf("sinks[%d].%s", i, name) }

	switch s.Kind {
	case SinkUDP:
	case SinkMQTT, SinkNATS:
		if s.Topic == "" {
			s.Topic = "gps/position"
			if s.Kind == SinkNATS {
				s.Topic = "gps.position"
			}
		}
	case "":
		return fmt.Errorf("%s is required", field("kind"))
	default:
		return fmt.Errorf("%s must be 'udp', 'mqtt' or 'nats'", field("kind"))
	}
	if s.Addr == "" {
		return fmt.Errorf("%s is required", field("addr"))
	}
	if _, err := position.ParseType(s.Type); err != nil {
		return fmt.Errorf("%s: %w", field("type"), err)
	}
	if s.Period <= 0 {
		s.Period = subscription.DefaultPeriod
	}
	return nil
}

func unknownFieldError(err error) error {
	var te *yaml.TypeError
	if !errors.As(err, &te) {
		return err
	}
	msgs := make([]string, 0, len(te.Errors))
	for _, m := range te.Errors {
		// Drop the "line N: " prefix.
		if _, rest, ok := strings.Cut(m, ": "); ok && strings.HasPrefix(m, "line ") {
			m = rest
		}
		msgs = append(msgs, m)
	}
	return fmt.Errorf("config contains unknown fields: %s", strings.Join(msgs, "; "))
}
