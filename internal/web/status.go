package web

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"gps-relay/internal/engine"
	"gps-relay/internal/sink"
	"gps-relay/internal/upstream"
)

type EngineStats interface {
	Stats(ctx context.Context) (engine.Stats, error)
}

type UpstreamStatus interface {
	Snapshot() upstream.Snapshot
}

type Status struct {
	start    time.Time
	engine   EngineStats
	upstream UpstreamStatus
	sinks    func() []sink.Status
	build    BuildInfo
}

// NewStatus wires the status page. upstream and sinks may be nil.
func NewStatus(e EngineStats, up UpstreamStatus, sinks func() []sink.Status) *Status {
	return &Status{
		start:    time.Now().UTC(),
		engine:   e,
		upstream: up,
		sinks:    sinks,
		build:    readBuildInfo(),
	}
}

type StatusSnapshot struct {
	Service   string             `json:"service"`
	NowUTC    string             `json:"now_utc"`
	UptimeSec int64              `json:"uptime_sec"`
	Upstream  *upstream.Snapshot `json:"upstream,omitempty"`
	Engine    engine.Stats       `json:"engine"`
	Sinks     []sink.Status      `json:"sinks,omitempty"`
	Build     BuildInfo          `json:"build"`
}

func (s *Status) Snapshot(ctx context.Context, nowUTC time.Time) (StatusSnapshot, error) {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	stats, err := s.engine.Stats(ctx)
	if err != nil {
		return StatusSnapshot{}, err
	}
	snap := StatusSnapshot{
		Service:   "gps-relay",
		NowUTC:    nowUTC.Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(s.start).Seconds()),
		Engine:    stats,
		Build:     s.build,
	}
	if s.upstream != nil {
		up := s.upstream.Snapshot()
		snap.Upstream = &up
	}
	if s.sinks != nil {
		snap.Sinks = s.sinks()
	}
	return snap, nil
}

type BuildInfo struct {
	GoVersion string `json:"go_version"`
	Version   string `json:"version,omitempty"`
	Commit    string `json:"commit,omitempty"`
	Dirty     bool   `json:"dirty,omitempty"`
}

func readBuildInfo() BuildInfo {
	out := BuildInfo{GoVersion: runtime.Version()}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}
	out.Version = bi.Main.Version
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			out.Commit = s.Value
		case "vcs.modified":
			out.Dirty = s.Value == "true"
		}
	}
	return out
}
