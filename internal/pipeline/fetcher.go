// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/netSkope/vco-log-export/internal/metrics"
	"go.uber.org/zap"
)

// Fetcher walks an endpoint's pagination with one request in flight at a time.
type Fetcher struct {
	poster  Poster
	url     string
	proto   Protocol
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewFetcher creates a fetcher for url. m may be nil.
func NewFetcher(poster Poster, url string, proto Protocol, logger *zap.Logger, m *metrics.Metrics) *Fetcher {
	return &Fetcher{
		poster:  poster,
		url:     url,
		proto:   proto,
		logger:  logger.With(zap.String("component", "fetcher"), zap.String("endpoint", proto.Name())),
		metrics: m,
	}
}

// Run sends zero or more batches followed by exactly one StreamEnd on out, then closes out.
// Every failure is fatal and reported only through the StreamEnd.
func (f *Fetcher) Run(ctx context.Context, out chan<- Message) {
	defer close(out)

	phase := PhaseFirst
	continuation := ""

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			f.end(out, fmt.Errorf("fetch cancelled before page %d: %w", page, err))
			return
		}

		body, err := json.Marshal(f.proto.BuildRequest(phase, continuation))
		if err != nil {
			f.end(out, &FetchError{Kind: ErrProtocol, Page: page, Err: fmt.Errorf("encode request: %w", err)})
			return
		}

		f.logger.Info("Start new request",
			zap.Int("page", page),
			zap.Stringer("phase", phase))
		f.logger.Debug("Request body", zap.ByteString("body", body))

		start := time.Now()
		status, resp, err := f.poster.Post(ctx, f.url, body)
		elapsed := time.Since(start)
		if err != nil {
			if ctx.Err() != nil {
				f.end(out, fmt.Errorf("fetch cancelled on page %d: %w", page, ctx.Err()))
				return
			}
			f.metrics.ObserveRequest(f.proto.Name(), "error", elapsed, 0)
			f.logger.Error("Request failed",
				zap.Int("page", page),
				zap.Error(err))
			f.end(out, &FetchError{Kind: ErrTransport, Page: page, Err: err})
			return
		}

		f.metrics.ObserveRequest(f.proto.Name(), fmt.Sprint(status), elapsed, len(resp))
		f.logger.Info("POST transfer",
			zap.Int("page", page),
			zap.Int("bytes", len(resp)),
			zap.Float64("seconds", elapsed.Seconds()),
			zap.Float64("mbps", Mbps(len(resp), elapsed)))

		if status != http.StatusOK {
			f.logger.Error("Unexpected status",
				zap.Int("page", page),
				zap.Int("status", status),
				zap.Int("queue_size", len(out)),
				zap.ByteString("response", resp))
			f.end(out, &FetchError{Kind: ErrProtocol, Page: page, StatusCode: status,
				Err: fmt.Errorf("unexpected status %d", status)})
			return
		}

		pg, err := f.proto.ExtractPage(resp)
		if err != nil {
			// The VCO answers an invalid token with 200 and an empty or data-less body.
			f.logger.Error("No data in response, possibly an invalid token reported as HTTP 200",
				zap.Int("page", page),
				zap.Int("queue_size", len(out)),
				zap.ByteString("response", resp),
				zap.Error(err))
			f.end(out, &FetchError{Kind: ErrProtocol, Page: page, StatusCode: status, Err: err})
			return
		}

		f.logger.Info("Received items",
			zap.Int("page", page),
			zap.Int("items", len(pg.Items)),
			zap.Int("queue_size", len(out)))

		switch {
		case len(pg.Items) == 0:
			f.logger.Info("No data, page is empty", zap.Int("page", page))
			phase = PhaseNext
		case len(pg.Items) == 1 && f.proto.Suppress(pg.Items[0]):
			// Status-only page; the VCO may repeat it. Keep the first-page request shape.
			f.logger.Info("Only status page, not putting it on the queue", zap.Int("page", page))
			f.logger.Debug("Status page response", zap.ByteString("response", resp))
		default:
			f.logger.Info("Putting chunk on queue",
				zap.Int("page", page),
				zap.Int("items", len(pg.Items)),
				zap.Int("queue_size", len(out)))
			select {
			case out <- Batch(pg.Items):
			case <-ctx.Done():
				f.end(out, fmt.Errorf("fetch cancelled on page %d: %w", page, ctx.Err()))
				return
			}
			phase = PhaseNext
		}

		if !pg.HasMore {
			f.logger.Info("No more pages",
				zap.Int("pages", page),
				zap.Int("queue_size", len(out)))
			f.end(out, nil)
			return
		}
		if pg.Continuation == "" {
			f.logger.Error("More pages flagged without nextPageLink", zap.Int("page", page))
			f.end(out, &FetchError{Kind: ErrProtocol, Page: page, StatusCode: status,
				Err: errors.New("metaData.more is true but nextPageLink is missing")})
			return
		}
		continuation = pg.Continuation
	}
}

// end sends the StreamEnd. The receiver either reads it or drains out until it is closed.
func (f *Fetcher) end(out chan<- Message, err error) {
	out <- StreamEnd(err)
}

// Mbps returns the transfer rate in megabits per second, 0 for a zero duration.
func Mbps(bytes int, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(bytes) * 8 / (elapsed.Seconds() * 1_000_000)
}
