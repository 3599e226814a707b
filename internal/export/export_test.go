// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package export

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/netSkope/vco-log-export/internal/config"
	"github.com/netSkope/vco-log-export/internal/pipeline"
	"github.com/netSkope/vco-log-export/internal/vco"
	"go.uber.org/zap/zaptest"
)

// fakeVCO serves two pages: a first page holding data and the sentinel, then a last page.
type fakeVCO struct {
	mu       sync.Mutex
	paths    []string
	requests []map[string]any
}

func (f *fakeVCO) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req map[string]any
	_ = json.Unmarshal(body, &req)

	f.mu.Lock()
	f.paths = append(f.paths, r.URL.Path)
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if r.Header.Get("Authorization") != "Token tok" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":-32000,"message":"tokenError"}}`))
		return
	}
	if _, next := req["nextPageLink"]; next {
		_, _ = w.Write([]byte(`{"data":[{"id":3}],"metaData":{"more":false}}`))
		return
	}
	_, _ = w.Write([]byte(`{"data":[{"id":1},{"name":"other","value":9},{"id":2}],"metaData":{"more":true,"nextPageLink":"T1"}}`))
}

func (f *fakeVCO) snapshot() ([]string, []map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...), append([]map[string]any(nil), f.requests...)
}

func testConfig(t *testing.T, url, endpoint string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Endpoint = endpoint
	cfg.VCO = url
	cfg.AuthToken = "tok"
	cfg.EnterpriseID = 42
	cfg.Start = "2024-02-20T03:04:00.000000000+00:00"
	cfg.Stop = "2025-02-22T15:04:00.000000000+00:00"
	cfg.StartMillis = 1708398240000
	cfg.StopMillis = 1740236640000
	cfg.OutputDir = filepath.Join(t.TempDir(), "out")
	cfg.HTTPTimeout = 10
	return cfg
}

func readIDs(t *testing.T, path string) []float64 {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	var items []map[string]any
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatalf("output is not a JSON array: %v\n%s", err, data)
	}
	ids := make([]float64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item["id"].(float64))
	}
	return ids
}

func TestOutputFileName(t *testing.T) {
	got := OutputFileName("EdgeFlowVisibilityMetrics", "2024-02-20 03:04:00", "2025-02-22 15:04:00")
	want := "output-EdgeFlowVisibilityMetrics_2024-02-20_03-04-00_to_2025-02-22_15-04-00.json"
	if got != want {
		t.Errorf("OutputFileName() = %q, want %q", got, want)
	}
}

func TestRun_Endpoints(t *testing.T) {
	tests := []struct {
		endpoint string
		name     string
		path     string
		firstKey string
	}{
		{vco.EndpointFlows, "EdgeFlowVisibilityMetrics", "/portal/rest/metrics/getEdgeFlowVisibilityMetrics", "edgeId"},
		{vco.EndpointEvents, "EnterpriseEvents", "/portal/rest/event/getEnterpriseEvents", "filter"},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			vcoSrv := &fakeVCO{}
			srv := httptest.NewServer(vcoSrv)
			defer srv.Close()

			cfg := testConfig(t, srv.URL, tt.endpoint)
			cfg.MetricsFile = filepath.Join(t.TempDir(), "vco_export.prom")

			res, err := Run(context.Background(), cfg, zaptest.NewLogger(t))
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if res.Items != 3 || res.Endpoint != tt.name {
				t.Errorf("Run() = %+v", res)
			}
			wantFile := filepath.Join(cfg.OutputDir, OutputFileName(tt.name, cfg.StartHuman, cfg.StopHuman))
			if res.OutputFile != wantFile {
				t.Errorf("OutputFile = %q, want %q", res.OutputFile, wantFile)
			}
			if ids := readIDs(t, res.OutputFile); len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
				t.Errorf("ids = %v, want [1 2 3]", ids)
			}

			paths, requests := vcoSrv.snapshot()
			if len(paths) != 2 {
				t.Fatalf("requests = %d, want 2", len(paths))
			}
			for _, p := range paths {
				if p != tt.path {
					t.Errorf("path = %q, want %q", p, tt.path)
				}
			}
			if _, ok := requests[0][tt.firstKey]; !ok {
				t.Errorf("first request %v lacks %q", requests[0], tt.firstKey)
			}
			if requests[1]["nextPageLink"] != "T1" {
				t.Errorf("second request = %v, want nextPageLink T1", requests[1])
			}

			prom, err := os.ReadFile(cfg.MetricsFile)
			if err != nil {
				t.Fatalf("metrics file not written: %v", err)
			}
			if !strings.Contains(string(prom), `vco_export_items_total{endpoint="`+tt.name+`"} 3`) {
				t.Errorf("metrics file lacks item count:\n%s", prom)
			}
			if !strings.Contains(string(prom), `vco_export_suppressed_items_total{endpoint="`+tt.name+`"} 1`) {
				t.Errorf("metrics file lacks suppressed count:\n%s", prom)
			}
		})
	}
}

func TestRun_EventsStatusOnlyFirstPage(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		_ = json.Unmarshal(body, &req)

		mu.Lock()
		requests = append(requests, req)
		n := len(requests)
		mu.Unlock()

		if n == 1 {
			_, _ = w.Write([]byte(`{"data":[{"name":"other","value":0}],"metaData":{"more":true,"nextPageLink":"T1"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"id":1},{"id":2}],"metaData":{"more":false}}`))
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL, vco.EndpointEvents)
	res, err := Run(context.Background(), cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Items != 2 {
		t.Errorf("Items = %d, want 2", res.Items)
	}
	if ids := readIDs(t, res.OutputFile); len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Errorf("ids = %v, want [1 2]", ids)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(requests) != 2 {
		t.Fatalf("requests = %d, want 2", len(requests))
	}
	second := requests[1]
	if _, ok := second["nextPageLink"]; ok {
		t.Errorf("second request %v carries nextPageLink after a status-only page", second)
	}
	filter, ok := second["filter"].(map[string]any)
	if !ok || filter["limit"] != float64(cfg.LimitEvent) {
		t.Errorf("second request %v, want filter.limit %d", second, cfg.LimitEvent)
	}
}

func TestRun_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(&fakeVCO{})
	defer srv.Close()

	cfg := testConfig(t, srv.URL, vco.EndpointEvents)
	cfg.AuthToken = "expired"

	res, err := Run(context.Background(), cfg, zaptest.NewLogger(t))
	if !errors.Is(err, pipeline.ErrProtocol) {
		t.Fatalf("Run() error = %v, want ErrProtocol", err)
	}
	var fe *pipeline.FetchError
	if !errors.As(err, &fe) || fe.StatusCode != http.StatusUnauthorized {
		t.Errorf("Run() error = %#v, want status 401", err)
	}

	data, rerr := os.ReadFile(res.OutputFile)
	if rerr != nil {
		t.Fatalf("failed to read output: %v", rerr)
	}
	if string(data) != "[\n\n]" {
		t.Errorf("output = %q, want empty array", data)
	}
}

func TestRun_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(&fakeVCO{})
	url := srv.URL
	srv.Close()

	res, err := Run(context.Background(), testConfig(t, url, vco.EndpointFlows), zaptest.NewLogger(t))
	if !errors.Is(err, pipeline.ErrTransport) {
		t.Fatalf("Run() error = %v, want ErrTransport", err)
	}
	if res.Items != 0 {
		t.Errorf("Items = %d, want 0", res.Items)
	}
	if data, _ := os.ReadFile(res.OutputFile); string(data) != "[\n\n]" {
		t.Errorf("output = %q, want empty array", data)
	}
}

func TestRun_JournalFailureIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(&fakeVCO{})
	defer srv.Close()

	cfg := testConfig(t, srv.URL, vco.EndpointEvents)
	cfg.JournalDSN = "not a dsn"

	res, err := Run(context.Background(), cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Items != 3 {
		t.Errorf("Items = %d, want 3", res.Items)
	}
}

func TestRun_Cancelled(t *testing.T) {
	vcoSrv := &fakeVCO{}
	srv := httptest.NewServer(vcoSrv)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Run(ctx, testConfig(t, srv.URL, vco.EndpointEvents), zaptest.NewLogger(t))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if paths, _ := vcoSrv.snapshot(); len(paths) != 0 {
		t.Errorf("requests = %d, want 0", len(paths))
	}
	if data, _ := os.ReadFile(res.OutputFile); string(data) != "[\n\n]" {
		t.Errorf("output = %q, want empty array", data)
	}
}
