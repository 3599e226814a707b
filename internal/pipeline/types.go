// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Phase selects which request shape an endpoint builds.
type Phase int

const (
	// PhaseFirst requests carry the full filter (enterprise, interval, limit).
	PhaseFirst Phase = iota
	// PhaseNext requests carry the continuation token of the previous response.
	PhaseNext
)

func (p Phase) String() string {
	if p == PhaseNext {
		return "next"
	}
	return "first"
}

// Page is one decoded response of the pagination protocol.
// If HasMore is true, Continuation is the token for the next request, used verbatim.
type Page struct {
	Items        []json.RawMessage
	Continuation string
	HasMore      bool
}

// Protocol is the endpoint-specific vocabulary shared by the fetcher and the remote API.
type Protocol interface {
	// Name labels logs, metrics and output files.
	Name() string
	// BuildRequest returns the JSON request body for the given phase.
	// The continuation token is empty until a response provided one.
	BuildRequest(phase Phase, continuation string) any
	// ExtractPage decodes a 200 response body. An error means the body is unusable.
	ExtractPage(body []byte) (Page, error)
	// Suppress reports whether an item is a status marker rather than data.
	Suppress(item json.RawMessage) bool
}

// Poster sends one request and returns the status code and body.
type Poster interface {
	Post(ctx context.Context, url string, body []byte) (int, []byte, error)
}

// Message is a single hand-off from the fetcher to the writer: either a Batch or the StreamEnd.
type Message struct {
	Items []json.RawMessage
	End   bool
	// Err is set on a StreamEnd when fetching failed; nil means pagination finished cleanly.
	Err error
}

// Batch wraps a page's items. Ownership moves to the receiver.
func Batch(items []json.RawMessage) Message {
	return Message{Items: items}
}

// StreamEnd is the terminal message. A nil err is a clean end.
func StreamEnd(err error) Message {
	return Message{End: true, Err: err}
}

// Error classes, matched with errors.Is.
var (
	ErrTransport = errors.New("transport error")
	ErrProtocol  = errors.New("protocol error")
	ErrOutput    = errors.New("output error")
)

// FetchError describes why the fetcher ended the stream.
type FetchError struct {
	Kind       error // ErrTransport or ErrProtocol
	StatusCode int   // 0 when no response was received
	Page       int
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%v on page %d (status %d): %v", e.Kind, e.Page, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%v on page %d: %v", e.Kind, e.Page, e.Err)
}

// Is matches the error class.
func (e *FetchError) Is(target error) bool {
	return target == e.Kind
}

// Unwrap returns the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}
