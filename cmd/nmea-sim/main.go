package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gps-relay/internal/logging"
	"gps-relay/internal/sim"
)

func main() {
	var (
		listen   string
		interval time.Duration
		lat, lon float64
		radius   float64
		period   time.Duration
		logLevel string
	)
	flag.StringVar(&listen, "listen", "127.0.0.1:10110", "TCP address to serve NMEA on")
	flag.DurationVar(&interval, "interval", time.Second, "Time between fixes")
	flag.Float64Var(&lat, "lat", 48.1173, "Center latitude, degrees")
	flag.Float64Var(&lon, "lon", 11.5167, "Center longitude, degrees (west negative)")
	flag.Float64Var(&radius, "radius-nm", 0.5, "Track radius, nautical miles")
	flag.DurationVar(&period, "period", 2*time.Minute, "Time for one figure-eight")
	flag.StringVar(&logLevel, "log-level", logging.LevelInfo, "DEBUG, INFO, WARN or ERROR")
	flag.Parse()

	logger, err := logging.New(os.Stderr, "nmea-sim", logging.Config{Level: logLevel, Format: logging.FormatText})
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := &sim.Server{
		Path: sim.Path{
			CenterLatDeg: lat,
			CenterLonDeg: lon,
			RadiusNm:     radius,
			Period:       period,
		},
		Interval: interval,
		Logger:   logger,
	}
	if err := srv.ListenAndServe(ctx, listen); err != nil {
		logger.Error("nmea simulator stopped", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("nmea simulator stopped")
}
