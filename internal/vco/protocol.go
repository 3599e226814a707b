// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package vco

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/netSkope/vco-log-export/internal/config"
	"github.com/netSkope/vco-log-export/internal/pipeline"
	"github.com/tidwall/gjson"
)

// Endpoint names accepted in config.
const (
	EndpointFlows  = "flows"
	EndpointEvents = "events"
)

// EventIntervalType is required by getEnterpriseEvents next to the explicit start/end.
const EventIntervalType = "past12Months"

// sentinelName marks the summary element the VCO injects into result pages.
const sentinelName = "other"

// ErrNoData is returned for a response without a "data" field.
var ErrNoData = errors.New(`response has no "data" field`)

// Endpoint is a VCO API method plugged into the pagination pipeline.
type Endpoint interface {
	pipeline.Protocol
	// Path is relative to the portal base path.
	Path() string
}

// NewEndpoint returns the endpoint selected in cfg.
func NewEndpoint(cfg *config.Config) (Endpoint, error) {
	switch cfg.Endpoint {
	case EndpointFlows:
		return &FlowVisibility{
			EdgeID:       cfg.EdgeID,
			EnterpriseID: cfg.EnterpriseID,
			Start:        cfg.Start,
			Stop:         cfg.Stop,
			Limit:        cfg.LimitFlow,
		}, nil
	case EndpointEvents:
		return &EnterpriseEvents{
			EnterpriseID: cfg.EnterpriseID,
			Start:        cfg.StartMillis,
			Stop:         cfg.StopMillis,
			Limit:        cfg.LimitEvent,
		}, nil
	}
	return nil, fmt.Errorf("unknown endpoint %q (must be %s or %s)", cfg.Endpoint, EndpointFlows, EndpointEvents)
}

// IsSentinel reports whether item is an object whose "name" is "other".
func IsSentinel(item json.RawMessage) bool {
	name := gjson.GetBytes(item, "name")
	return name.Type == gjson.String && name.Str == sentinelName
}

// ExtractPage decodes {data: [...], metaData: {more, nextPageLink}}.
func ExtractPage(body []byte) (pipeline.Page, error) {
	if len(body) == 0 {
		return pipeline.Page{}, errors.New("empty response body")
	}
	if !gjson.ValidBytes(body) {
		return pipeline.Page{}, errors.New("response is not valid JSON")
	}
	// Items are copied to the output verbatim.
	if !utf8.Valid(body) {
		return pipeline.Page{}, errors.New("response is not valid UTF-8")
	}

	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return pipeline.Page{}, errors.New("response is not a JSON object")
	}
	data := root.Get("data")
	if !data.Exists() {
		return pipeline.Page{}, ErrNoData
	}
	if !data.IsArray() {
		return pipeline.Page{}, fmt.Errorf(`"data" is %s, not an array`, data.Type)
	}

	var page pipeline.Page
	data.ForEach(func(_, v gjson.Result) bool {
		page.Items = append(page.Items, json.RawMessage(v.Raw))
		return true
	})

	meta := root.Get("metaData")
	page.HasMore = meta.Get("more").Bool()
	if next := meta.Get("nextPageLink"); next.Exists() && next.Type != gjson.Null {
		page.Continuation = next.String()
	}
	return page, nil
}

type flowInterval struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type flowFirstPage struct {
	EdgeID       int          `json:"edgeId"`
	EnterpriseID int          `json:"enterpriseId"`
	Interval     flowInterval `json:"interval"`
	Limit        int          `json:"limit"`
	FilterSpec   bool         `json:"_filterSpec"`
}

type flowNextPage struct {
	EdgeID       int          `json:"edgeId"`
	Interval     flowInterval `json:"interval"`
	NextPageLink string       `json:"nextPageLink"`
}

// FlowVisibility is metrics/getEdgeFlowVisibilityMetrics. Start and Stop are RFC3339 nanosecond strings.
type FlowVisibility struct {
	EdgeID       int
	EnterpriseID int
	Start        string
	Stop         string
	Limit        int
}

func (e *FlowVisibility) Name() string { return "EdgeFlowVisibilityMetrics" }

func (e *FlowVisibility) Path() string { return "metrics/getEdgeFlowVisibilityMetrics" }

func (e *FlowVisibility) BuildRequest(phase pipeline.Phase, continuation string) any {
	interval := flowInterval{Start: e.Start, End: e.Stop}
	if phase == pipeline.PhaseFirst {
		return flowFirstPage{
			EdgeID:       e.EdgeID,
			EnterpriseID: e.EnterpriseID,
			Interval:     interval,
			Limit:        e.Limit,
		}
	}
	return flowNextPage{
		EdgeID:       e.EdgeID,
		Interval:     interval,
		NextPageLink: continuation,
	}
}

func (e *FlowVisibility) ExtractPage(body []byte) (pipeline.Page, error) { return ExtractPage(body) }

func (e *FlowVisibility) Suppress(item json.RawMessage) bool { return IsSentinel(item) }

type eventInterval struct {
	Start int64  `json:"start"`
	End   int64  `json:"end"`
	Type  string `json:"type"`
}

type eventFilter struct {
	Limit int `json:"limit"`
}

type eventFirstPage struct {
	Filter       eventFilter   `json:"filter"`
	Interval     eventInterval `json:"interval"`
	EnterpriseID int           `json:"enterpriseId"`
}

type eventNextPage struct {
	NextPageLink string        `json:"nextPageLink"`
	Limit        int           `json:"limit"`
	Interval     eventInterval `json:"interval"`
	EnterpriseID int           `json:"enterpriseId"`
}

// EnterpriseEvents is event/getEnterpriseEvents. Start and Stop are epoch milliseconds.
type EnterpriseEvents struct {
	EnterpriseID int
	Start        int64
	Stop         int64
	Limit        int
}

func (e *EnterpriseEvents) Name() string { return "EnterpriseEvents" }

func (e *EnterpriseEvents) Path() string { return "event/getEnterpriseEvents" }

func (e *EnterpriseEvents) BuildRequest(phase pipeline.Phase, continuation string) any {
	interval := eventInterval{Start: e.Start, End: e.Stop, Type: EventIntervalType}
	if phase == pipeline.PhaseFirst {
		return eventFirstPage{
			Filter:       eventFilter{Limit: e.Limit},
			Interval:     interval,
			EnterpriseID: e.EnterpriseID,
		}
	}
	return eventNextPage{
		NextPageLink: continuation,
		Limit:        e.Limit,
		Interval:     interval,
		EnterpriseID: e.EnterpriseID,
	}
}

func (e *EnterpriseEvents) ExtractPage(body []byte) (pipeline.Page, error) { return ExtractPage(body) }

func (e *EnterpriseEvents) Suppress(item json.RawMessage) bool { return IsSentinel(item) }
