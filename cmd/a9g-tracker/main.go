package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"a9g-tracker/internal/config"
	"a9g-tracker/internal/logging"
	"a9g-tracker/internal/serialport"
	"a9g-tracker/internal/web"
)

const logBufferLines = 500

func main() {
	var configPath string
	var listPorts bool
	var nmeaSummary string
	flag.StringVar(&configPath, "config", "./a9g-tracker.yaml", "Path to YAML config")
	flag.BoolVar(&listPorts, "list-ports", false, "Print the serial ports and exit")
	flag.StringVar(&nmeaSummary, "nmea-summary", "", "Summarize a raw NMEA capture and exit")
	flag.Parse()

	if listPorts {
		if err := printPorts(os.Stdout); err != nil {
			log.Fatalf("list ports failed: %v", err)
		}
		return
	}
	if nmeaSummary != "" {
		if err := printSentenceSummary(nmeaSummary, os.Stdout); err != nil {
			log.Fatalf("nmea summary failed: %v", err)
		}
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logs := web.NewLogBuffer(logBufferLines)
	logger, cleanup, err := logging.New(logging.Config{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Extra:      []io.Writer{logs},
	})
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer cleanup()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Infow("a9g-tracker starting", "config", configPath, "id", cfg.Tracker.ID, "gps_source", cfg.GPS.Source)

	rt, err := newRuntime(ctx, cfg, logger, logs)
	if err != nil {
		logger.Errorw("startup failed", "error", err)
		cleanup()
		os.Exit(1)
	}
	runErr := rt.Run(ctx)
	if err := rt.Close(); err != nil {
		logger.Warnw("shutdown incomplete", "error", err)
	}
	if runErr != nil {
		logger.Errorw("a9g-tracker stopped", "error", runErr)
		cleanup()
		os.Exit(1)
	}
	logger.Infow("a9g-tracker stopping")
}

func printPorts(w io.Writer) error {
	ports, err := serialport.List()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ports)
}
