// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/netSkope/vco-log-export/internal/config"
	"github.com/netSkope/vco-log-export/internal/export"
	vcolog "github.com/netSkope/vco-log-export/internal/log"
	"github.com/netSkope/vco-log-export/internal/vco"
	"go.uber.org/zap"
)

// logNames are the log file prefixes of each endpoint.
var logNames = map[string]string{
	vco.EndpointFlows:  "edgeflow_metrics",
	vco.EndpointEvents: "enterprise_events",
}

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	level, err := vcolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger, logFile, err := vcolog.NewLogger(cfg.LogDir, logNames[cfg.Endpoint], level, cfg.LogStdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("Starting export tool",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("vco", cfg.VCO),
		zap.Int("enterprise_id", cfg.EnterpriseID),
		zap.String("log_file", logFile))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := export.Run(ctx, cfg, logger)
	if res != nil {
		fmt.Printf("\n=== Export Summary ===\n")
		fmt.Printf("Endpoint: %s (%s)\n", res.Endpoint, res.URL)
		fmt.Printf("Enterprise ID: %d\n", cfg.EnterpriseID)
		fmt.Printf("Interval: %s to %s\n", cfg.StartHuman, cfg.StopHuman)
		fmt.Printf("Items written: %d\n", res.Items)
		fmt.Printf("Output file: %s\n", res.OutputFile)
		if res.S3Location != "" {
			fmt.Printf("S3 location: %s\n", res.S3Location)
		}
		fmt.Printf("Duration: %s\n", res.Duration.Round(time.Millisecond))
		fmt.Printf("Log file: %s\n", logFile)
		if err != nil {
			fmt.Printf("Status: FAILED (%v)\n", err)
		} else {
			fmt.Printf("Status: OK\n")
		}
		fmt.Printf("======================\n")
	}
	if err != nil {
		logger.Error("Export failed", zap.Error(err))
		_ = logger.Sync()
		stop()
		os.Exit(1)
	}

	logger.Info("Export completed successfully")
}
