// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"
)

func raw(items ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(items))
	for i, s := range items {
		out[i] = json.RawMessage(s)
	}
	return out
}

func feed(msgs ...Message) <-chan Message {
	ch := make(chan Message, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	close(ch)
	return ch
}

func TestWriter_Empty(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, testProtocol{}, zaptest.NewLogger(t), nil)

	n, err := w.Run(feed(StreamEnd(nil)))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Run() = %d, want 0", n)
	}
	if buf.String() != "[\n\n]" {
		t.Errorf("output = %q, want %q", buf.String(), "[\n\n]")
	}
	if !json.Valid(buf.Bytes()) {
		t.Error("empty output is not valid JSON")
	}
}

func TestWriter_NestedIndent(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, testProtocol{}, zaptest.NewLogger(t), nil)

	_, err := w.Run(feed(
		Batch(raw(`{"a":1,"b":[2,3],"c":{}}`)),
		StreamEnd(nil),
	))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := "[\n" +
		"    {\n" +
		"        \"a\": 1,\n" +
		"        \"b\": [\n" +
		"            2,\n" +
		"            3\n" +
		"        ],\n" +
		"        \"c\": {}\n" +
		"    }" +
		"\n]"
	if buf.String() != want {
		t.Errorf("output =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestWriter_SeparatorAcrossBatches(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, testProtocol{}, zaptest.NewLogger(t), nil)

	n, err := w.Run(feed(
		Batch(raw(`{"name":"other"}`, `{"id":1}`)),
		Batch(raw(`{"name":"other"}`)),
		Batch(raw(`{"id":2}`, `{"id":3}`)),
		StreamEnd(nil),
	))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Run() = %d, want 3", n)
	}

	var items []map[string]int
	if err := json.Unmarshal(buf.Bytes(), &items); err != nil {
		t.Fatalf("output is not a JSON array: %v\n%s", err, buf.String())
	}
	for i, item := range items {
		if item["id"] != i+1 {
			t.Errorf("item %d = %v", i, item)
		}
	}
}

func TestWriter_ReturnsStreamEndError(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, testProtocol{}, zaptest.NewLogger(t), nil)

	cause := &FetchError{Kind: ErrTransport, Page: 2, Err: errors.New("connection reset")}
	n, err := w.Run(feed(Batch(raw(`{"id":1}`)), StreamEnd(cause)))
	if !errors.Is(err, ErrTransport) {
		t.Errorf("Run() error = %v, want ErrTransport", err)
	}
	if n != 1 {
		t.Errorf("Run() = %d, want 1", n)
	}
	// A failed run still leaves a well-formed, truncated document.
	if !json.Valid(buf.Bytes()) {
		t.Errorf("output is not valid JSON: %s", buf.String())
	}
}

func TestWriter_QueueClosedWithoutEnd(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, testProtocol{}, zaptest.NewLogger(t), nil)

	_, err := w.Run(feed(Batch(raw(`{"id":1}`))))
	if !errors.Is(err, ErrProtocol) {
		t.Errorf("Run() error = %v, want ErrProtocol", err)
	}
	if !json.Valid(buf.Bytes()) {
		t.Errorf("output is not valid JSON: %s", buf.String())
	}
}

func TestWriter_OutputError(t *testing.T) {
	w := NewWriter(failingWriter{}, testProtocol{}, zaptest.NewLogger(t), nil)

	_, err := w.Run(feed(StreamEnd(nil)))
	if !errors.Is(err, ErrOutput) {
		t.Errorf("Run() error = %v, want ErrOutput", err)
	}
}
