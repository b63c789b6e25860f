package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"log/slog"
	"os"
	"syscall"

	"github.com/oklog/run"

	"gps-relay/internal/config"
	"gps-relay/internal/engine"
	"gps-relay/internal/logging"
	"gps-relay/internal/sink"
	"gps-relay/internal/upstream"
	"gps-relay/internal/web"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to YAML config (defaults and environment only when empty)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logs := web.NewLogBuffer(0)
	logger, err := logging.New(io.MultiWriter(os.Stderr, logs), "gps-relay", logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}

	if err := runRelay(cfg, logger, logs); err != nil {
		logger.Error("gps-relay stopped", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("gps-relay stopped")
}

func runRelay(cfg config.Config, logger *slog.Logger, logs *web.LogBuffer) error {
	eng := engine.New(engine.Config{
		Tick:             cfg.Engine.Tick,
		MaxSubscriptions: cfg.Engine.MaxSubscriptions,
		Logger:           logger,
	})

	client, err := upstream.NewClient(sourceFor(cfg.Upstream), upstream.Config{
		RetryInterval: cfg.Upstream.RetryInterval,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	sinks := make([]*sink.Sink, 0, len(cfg.Sinks))
	for _, sc := range cfg.Sinks {
		s, err := sink.Open(sc, logger)
		if err != nil {
			return err
		}
		sinks = append(sinks, s)
	}
	sinkStatus := func() []sink.Status {
		out := make([]sink.Status, 0, len(sinks))
		for _, s := range sinks {
			out = append(out, s.Status())
		}
		return out
	}

	handler := web.Handler(eng, web.NewStatus(eng, client, sinkStatus), web.Options{
		Logs:   logs,
		Logger: logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var g run.Group
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	g.Add(func() error {
		return eng.Run(ctx)
	}, func(error) {
		cancel()
	})

	// A client that gave up leaves the relay serving the last known fix.
	g.Add(func() error {
		if err := client.Start(ctx, eng); err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	}, func(error) {
		cancel()
		client.Close()
	})

	g.Add(func() error {
		logger.Info("web listening", "addr", cfg.Web.Listen)
		err := web.Serve(ctx, cfg.Web.Listen, handler)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}, func(error) {
		cancel()
	})

	for _, s := range sinks {
		s := s
		g.Add(func() error {
			reply, err := eng.Subscribe(ctx, s.Type(), s.Period(), s)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			s.SetID(reply.ID)
			return s.Run(ctx)
		}, func(error) {
			cancel()
		})
	}

	logger.Info("gps-relay starting",
		"upstream", cfg.Upstream.Source,
		"host", cfg.Upstream.Host,
		"service", cfg.Upstream.Service,
		"sinks", len(sinks))

	err = g.Run()
	var sig run.SignalError
	if errors.As(err, &sig) {
		logger.Info("shutting down", "signal", sig.Signal.String())
		return nil
	}
	return err
}

func sourceFor(u config.UpstreamConfig) upstream.Source {
	if u.Source == config.SourceSerial {
		return upstream.SerialSource{Device: u.Device, Baud: u.Baud}
	}
	return upstream.TCPSource{Host: u.Host, Service: u.Service, DialTimeout: u.DialTimeout}
}
