// Copyright (c) 2022 Netskope, Inc. All rights reserved.

package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel maps a config log level ("DEBUG", "info", "WARNING", ...) to a zap level.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return zap.DebugLevel, nil
	case "", "INFO":
		return zap.InfoLevel, nil
	case "WARN", "WARNING":
		return zap.WarnLevel, nil
	case "ERROR":
		return zap.ErrorLevel, nil
	case "CRITICAL", "FATAL":
		return zap.FatalLevel, nil
	}
	return zap.InfoLevel, fmt.Errorf("unknown log level %q", level)
}

// LogFileName returns the timestamped log file name for a run, e.g. edgeflow_metrics_2025-01-02_15-04-05.log.
func LogFileName(logName string, now time.Time) string {
	return fmt.Sprintf("%s_%s.log", logName, now.Format("2006-01-02_15-04-05"))
}

// NewLogger returns a logger using the Zap structured logger.
// Logs always go to a timestamped file under logDir; if stdout is true they are teed to stdout too.
func NewLogger(logDir, logName string, level zapcore.Level, stdout bool) (*zap.Logger, string, error) {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.EpochTimeEncoder
	cfg.LevelKey = "lv"
	cfg.EncodeLevel = func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(l.CapitalString()[:2])
	}

	debug := level <= zap.DebugLevel
	if debug {
		cfg.EncodeCaller = zapcore.ShortCallerEncoder
		cfg.CallerKey = "call"
	}

	if logDir == "" {
		logDir = "."
	}
	if logName == "" {
		logName = filepath.Base(os.Args[0])
	}

	logFile := filepath.Join(logDir, LogFileName(logName, time.Now()))
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, "", err
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.AddSync(file), level),
	}
	if stdout {
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(cfg),
			zapcore.AddSync(os.Stdout), level))
	}

	var logger *zap.Logger
	if debug {
		logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	} else {
		logger = zap.New(zapcore.NewTee(cores...))
	}

	return logger, logFile, nil
}
