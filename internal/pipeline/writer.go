// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package pipeline

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/netSkope/vco-log-export/internal/metrics"
	"go.uber.org/zap"
)

// Indent is the per-level indentation of array elements in the output file.
const Indent = "    "

// Writer drains batches into a single JSON array document.
type Writer struct {
	out      *bufio.Writer
	name     string
	suppress func(json.RawMessage) bool
	logger   *zap.Logger
	metrics  *metrics.Metrics

	written int
	buf     bytes.Buffer
}

// NewWriter creates a writer on w. Items the protocol suppresses are dropped. m may be nil.
func NewWriter(w io.Writer, proto Protocol, logger *zap.Logger, m *metrics.Metrics) *Writer {
	return &Writer{
		out:      bufio.NewWriterSize(w, 64<<10),
		name:     proto.Name(),
		suppress: proto.Suppress,
		logger:   logger.With(zap.String("component", "writer"), zap.String("endpoint", proto.Name())),
		metrics:  m,
	}
}

// Run writes "[", every batch received on in, and "]" once the StreamEnd arrives.
// It returns the number of items written and the StreamEnd's error, or an ErrOutput error
// if writing failed, in which case the document is left incomplete.
func (w *Writer) Run(in <-chan Message) (int, error) {
	if _, err := w.out.WriteString("[\n"); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrOutput, err)
	}

	var endErr error
	for {
		w.logger.Debug("Waiting for data from queue", zap.Int("queue_size", len(in)))
		msg, ok := <-in
		if !ok {
			endErr = &FetchError{Kind: ErrProtocol, Err: errors.New("queue closed without end of stream")}
			break
		}
		if msg.End {
			w.logger.Info("Received end of stream, ending write loop",
				zap.Int("items", w.written),
				zap.Bool("failed", msg.Err != nil))
			endErr = msg.Err
			break
		}
		if err := w.writeBatch(msg.Items, len(in)); err != nil {
			return w.written, err
		}
	}

	if _, err := w.out.WriteString("\n]"); err != nil {
		return w.written, fmt.Errorf("%w: %w", ErrOutput, err)
	}
	if err := w.out.Flush(); err != nil {
		return w.written, fmt.Errorf("%w: %w", ErrOutput, err)
	}
	return w.written, endErr
}

func (w *Writer) writeBatch(items []json.RawMessage, queued int) error {
	start := time.Now()
	count, size, suppressed := 0, 0, 0

	for _, item := range items {
		if w.suppress(item) {
			suppressed++
			continue
		}
		if w.written > 0 {
			if _, err := w.out.WriteString(",\n"); err != nil {
				return fmt.Errorf("%w: %w", ErrOutput, err)
			}
		}
		if err := w.writeItem(item); err != nil {
			return err
		}
		w.written++
		count++
		size += len(item)
	}

	elapsed := time.Since(start)
	w.metrics.ObserveWritten(w.name, count, suppressed, size)
	w.logger.Info("Wrote chunk",
		zap.Int("items", count),
		zap.Int("suppressed", suppressed),
		zap.Int("bytes", size),
		zap.Float64("seconds", elapsed.Seconds()),
		zap.Float64("mbps", Mbps(size, elapsed)),
		zap.Int("queue_size", queued))
	return nil
}

// writeItem writes item pretty-printed, with every line indented one level.
func (w *Writer) writeItem(item json.RawMessage) error {
	w.buf.Reset()
	w.buf.WriteString(Indent)
	if err := json.Indent(&w.buf, item, Indent, Indent); err != nil {
		return fmt.Errorf("%w: invalid item: %w", ErrOutput, err)
	}
	if _, err := w.out.Write(w.buf.Bytes()); err != nil {
		return fmt.Errorf("%w: %w", ErrOutput, err)
	}
	return nil
}
