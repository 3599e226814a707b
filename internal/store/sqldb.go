// Copyright (c) 2022 Netskope, Inc. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

const (
	dbDriver   = "mysql"
	dbPoolSize = 2
	dbConnLife = 30 * time.Minute
	dbTimeout  = 5

	createRunsTable = `CREATE TABLE IF NOT EXISTS export_runs (
	id             BIGINT AUTO_INCREMENT PRIMARY KEY,
	endpoint       VARCHAR(64)  NOT NULL,
	enterprise_id  BIGINT       NOT NULL,
	interval_start VARCHAR(64)  NOT NULL,
	interval_stop  VARCHAR(64)  NOT NULL,
	output_file    VARCHAR(1024) NOT NULL,
	s3_location    VARCHAR(1024) NOT NULL DEFAULT '',
	items          BIGINT       NOT NULL,
	status         VARCHAR(16)  NOT NULL,
	error          TEXT,
	started_at     DATETIME(3)  NOT NULL,
	finished_at    DATETIME(3)  NOT NULL
)`

	insertRun = `INSERT INTO export_runs
	(endpoint, enterprise_id, interval_start, interval_stop, output_file, s3_location, items, status, error, started_at, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

// Run statuses.
const (
	StatusDone   = "done"
	StatusFailed = "failed"
)

var ErrBadDSN = errors.New("journal DSN is required")

// Run is one row of the export_runs table.
type Run struct {
	Endpoint      string
	EnterpriseID  int
	IntervalStart string
	IntervalStop  string
	OutputFile    string
	S3Location    string
	Items         int
	Status        string
	Error         string
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Journal records export runs in a MySQL or MariaDB table.
type Journal struct {
	db      *sql.DB
	timeout time.Duration
}

func (j *Journal) context(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, j.timeout)
}

func (j *Journal) Close() error {
	if j.db != nil {
		err := j.db.Close()
		j.db = nil
		return err
	}
	return nil
}

func (j *Journal) Ping(ctx context.Context) error {
	ctx, cancel := j.context(ctx)
	defer cancel()
	return j.db.PingContext(ctx)
}

// NewJournal connects to dsn (go-sql-driver format, e.g. user:pwd@tcp(host:3306)/vco)
// and creates the export_runs table if it is missing. timeout is in seconds.
func NewJournal(ctx context.Context, dsn string, timeout int) (*Journal, error) {
	if dsn == "" {
		return nil, ErrBadDSN
	}

	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid journal DSN: %w", err)
	}
	mc.ParseTime = true

	db, err := sql.Open(dbDriver, mc.FormatDSN())
	if err != nil {
		return nil, err
	}

	db.SetConnMaxLifetime(dbConnLife)
	db.SetMaxOpenConns(dbPoolSize)
	db.SetMaxIdleConns(dbPoolSize)

	if timeout < 1 {
		timeout = dbTimeout
	}

	j := &Journal{
		db:      db,
		timeout: time.Duration(timeout) * time.Second,
	}

	if err = j.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	cctx, cancel := j.context(ctx)
	defer cancel()
	if _, err = db.ExecContext(cctx, createRunsTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create export_runs table: %w", err)
	}

	return j, nil
}

// RecordRun inserts r and returns its id.
func (j *Journal) RecordRun(ctx context.Context, r Run) (int64, error) {
	ctx, cancel := j.context(ctx)
	defer cancel()

	var errText sql.NullString
	if r.Error != "" {
		errText = sql.NullString{String: r.Error, Valid: true}
	}

	res, err := j.db.ExecContext(ctx, insertRun,
		r.Endpoint, r.EnterpriseID, r.IntervalStart, r.IntervalStop, r.OutputFile, r.S3Location,
		r.Items, r.Status, errText, r.StartedAt.UTC(), r.FinishedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("insert export run: %w", err)
	}
	return res.LastInsertId()
}
