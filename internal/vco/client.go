// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package vco

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Client is an authenticated HTTP session against a VCO. It is not shared between goroutines.
type Client struct {
	client *resty.Client
}

// ClientConfig holds the session settings.
type ClientConfig struct {
	AuthToken string
	SSLVerify bool
	Timeout   time.Duration // zero disables the per-request timeout
}

// NewClient creates a session that sends "Authorization: Token <token>" on every call.
// The session never retries; a failed call is reported to the caller.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	c := resty.New().
		SetLogger(logger.Sugar()).
		SetRetryCount(0).
		SetHeaders(map[string]string{
			"Authorization": "Token " + cfg.AuthToken,
			"Content-Type":  "application/json",
			"Connection":    "keep-alive",
		})
	if cfg.Timeout > 0 {
		c.SetTimeout(cfg.Timeout)
	}
	if !cfg.SSLVerify {
		logger.Warn("SSL certificate verification is disabled")
		c.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec // operator toggle
	}
	return &Client{client: c}
}

// Post sends body to url and reads the whole response.
// A non-nil error means no response was received; any status code is returned as is.
func (c *Client) Post(ctx context.Context, url string, body []byte) (int, []byte, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(url)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode(), resp.Body(), nil
}

// URL joins https://<host><basePath><path>, normalizing the slashes between the parts.
// A host that already carries a scheme is used as is.
func URL(host, basePath, path string) string {
	base := strings.TrimRight(host, "/")
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	bp := strings.Trim(basePath, "/")
	p := strings.TrimLeft(path, "/")
	if bp == "" {
		return base + "/" + p
	}
	return base + "/" + bp + "/" + p
}
