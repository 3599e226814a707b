// Copyright (c) 2024 Netskope, Inc. All rights reserved.

// Package pipeline streams a paginated API result into a JSON array file.
//
// One Fetcher goroutine issues requests one page at a time and hands each page's items to the
// Writer over a bounded channel. A slow Writer blocks the Fetcher, so memory stays within
// QueueSize pages regardless of the total result size.
package pipeline

import (
	"context"
	"errors"
)

// QueueSize is the number of batches that may wait between the fetcher and the writer.
const QueueSize = 4

// Run starts f in its own goroutine, drains it into w and waits for f to exit.
// If w fails, f is cancelled and the queue is drained so f can finish.
func Run(ctx context.Context, f *Fetcher, w *Writer, queueSize int) (int, error) {
	if queueSize <= 0 {
		queueSize = QueueSize
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan Message, queueSize)
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.Run(ctx, queue)
	}()

	n, err := w.Run(queue)
	if errors.Is(err, ErrOutput) {
		cancel()
		for range queue {
		}
	}
	<-done

	return n, err
}
