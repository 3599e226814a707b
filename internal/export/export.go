// Copyright (c) 2024 Netskope, Inc. All rights reserved.

// Package export runs one VCO export: it wires the endpoint, the HTTP session and the output
// file into a pipeline, then publishes the artifact (S3, run journal, metrics textfile).
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/netSkope/vco-log-export/internal/config"
	"github.com/netSkope/vco-log-export/internal/metrics"
	"github.com/netSkope/vco-log-export/internal/pipeline"
	"github.com/netSkope/vco-log-export/internal/s3"
	"github.com/netSkope/vco-log-export/internal/store"
	"github.com/netSkope/vco-log-export/internal/timeutil"
	"github.com/netSkope/vco-log-export/internal/util"
	"github.com/netSkope/vco-log-export/internal/vco"
	"go.uber.org/zap"
)

// Result summarizes a finished run. It is returned for failed runs too.
type Result struct {
	Endpoint   string // wire name, e.g. EnterpriseEvents
	URL        string
	OutputFile string
	S3Location string // empty unless uploaded
	Items      int
	Duration   time.Duration
}

// OutputFileName returns output-<name>_<start>_to_<stop>.json with file-safe timestamps.
func OutputFileName(name, startHuman, stopHuman string) string {
	return fmt.Sprintf("output-%s_%s_to_%s.json", name, timeutil.FileStamp(startHuman), timeutil.FileStamp(stopHuman))
}

// Run exports cfg.Endpoint for the configured interval into cfg.OutputDir.
// The output file is a valid JSON array even when the run fails.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Result, error) {
	started := time.Now()

	ep, err := vco.NewEndpoint(cfg)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Endpoint: ep.Name(),
		URL:      vco.URL(cfg.VCO, cfg.BasePath, ep.Path()),
	}

	token, err := util.ResolveAuthToken(ctx, cfg.AuthToken, cfg.AuthTokenSecret, func() (aws.Config, error) {
		return util.LoadAWSConfig(ctx, cfg.AWSRegion, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, cfg.AWSSessionToken)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve auth token: %w", err)
	}

	logger.Info("Starting export",
		zap.String("endpoint", ep.Name()),
		zap.String("url", res.URL),
		zap.Int("enterprise_id", cfg.EnterpriseID),
		zap.String("start", cfg.StartHuman),
		zap.String("stop", cfg.StopHuman))

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	res.OutputFile = filepath.Join(cfg.OutputDir, OutputFileName(ep.Name(), cfg.StartHuman, cfg.StopHuman))
	file, err := os.Create(res.OutputFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	m := metrics.New()
	client := vco.NewClient(vco.ClientConfig{
		AuthToken: token,
		SSLVerify: cfg.SSLVerify,
		Timeout:   time.Duration(cfg.HTTPTimeout) * time.Second,
	}, logger)

	fetcher := pipeline.NewFetcher(client, res.URL, ep, logger, m)
	writer := pipeline.NewWriter(file, ep, logger, m)
	res.Items, err = pipeline.Run(ctx, fetcher, writer, pipeline.QueueSize)
	if cerr := file.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("%w: %w", pipeline.ErrOutput, cerr)
	}

	if err == nil && cfg.S3Bucket != "" {
		res.S3Location, err = upload(ctx, cfg, res.OutputFile, logger)
	}
	res.Duration = time.Since(started)

	if err != nil {
		logger.Error("Export failed",
			zap.String("endpoint", ep.Name()),
			zap.Int("items", res.Items),
			zap.String("output_file", res.OutputFile),
			zap.Error(err))
	} else {
		logger.Info("Export completed",
			zap.String("endpoint", ep.Name()),
			zap.Int("items", res.Items),
			zap.String("output_file", res.OutputFile),
			zap.Duration("duration", res.Duration))
	}

	recordRun(ctx, cfg, res, started, err, logger)
	if cfg.MetricsFile != "" {
		if merr := m.WriteTextfile(cfg.MetricsFile); merr != nil {
			logger.Warn("Failed to write metrics file", zap.String("path", cfg.MetricsFile), zap.Error(merr))
		}
	}

	return res, err
}

func upload(ctx context.Context, cfg *config.Config, file string, logger *zap.Logger) (string, error) {
	uploader, err := s3.NewUploader(ctx, cfg, logger)
	if err != nil {
		return "", fmt.Errorf("failed to create S3 uploader: %w", err)
	}
	key := uploader.Key(cfg.Endpoint, file)
	if err := uploader.UploadFileWithRetry(ctx, file, key); err != nil {
		return "", err
	}
	return uploader.Location(key), nil
}

// recordRun writes the run to the journal, if one is configured. Journal errors are only logged.
func recordRun(ctx context.Context, cfg *config.Config, res *Result, started time.Time, runErr error, logger *zap.Logger) {
	if cfg.JournalDSN == "" {
		return
	}
	// A cancelled export is still recorded.
	ctx = context.WithoutCancel(ctx)

	journal, err := store.NewJournal(ctx, cfg.JournalDSN, 0)
	if err != nil {
		logger.Warn("Run journal unavailable", zap.Error(err))
		return
	}
	defer journal.Close()

	run := store.Run{
		Endpoint:      cfg.Endpoint,
		EnterpriseID:  cfg.EnterpriseID,
		IntervalStart: cfg.StartHuman,
		IntervalStop:  cfg.StopHuman,
		OutputFile:    res.OutputFile,
		S3Location:    res.S3Location,
		Items:         res.Items,
		Status:        store.StatusDone,
		StartedAt:     started,
		FinishedAt:    started.Add(res.Duration),
	}
	if runErr != nil {
		run.Status = store.StatusFailed
		run.Error = runErr.Error()
	}

	id, err := journal.RecordRun(ctx, run)
	if err != nil {
		logger.Warn("Failed to record run", zap.Error(err))
		return
	}
	logger.Info("Recorded run", zap.Int64("run_id", id), zap.String("status", run.Status))
}
