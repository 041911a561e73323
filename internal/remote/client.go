// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/logging"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/models"
)

// maxErrorBodySize bounds how much of an error response is kept.
const maxErrorBodySize = 4 * 1024

// Config configures the HTTP client.
type Config struct {
	BaseURL string
	Timeout time.Duration

	// Breaker settings. The breaker opens after FailureThreshold
	// consecutive failures and half-opens after OpenTimeout.
	BreakerName      string
	MaxRequests      uint32
	Interval         time.Duration
	OpenTimeout      time.Duration
	FailureThreshold uint32
}

// DefaultConfig returns client defaults for baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:          baseURL,
		Timeout:          10 * time.Second,
		BreakerName:      "remote-data",
		MaxRequests:      1,
		Interval:         time.Minute,
		OpenTimeout:      30 * time.Second,
		FailureThreshold: 3,
	}
}

// Client is the HTTP Service implementation.
type Client struct {
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker[models.Record]
	name    string
}

// NewClient creates a client. A zero Timeout means no client-side timeout.
func NewClient(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("remote: invalid base url %q", cfg.BaseURL)
	}
	if cfg.BreakerName == "" {
		cfg.BreakerName = "remote-data"
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 3
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		name:    cfg.BreakerName,
	}

	breakerState.WithLabelValues(cfg.BreakerName).Set(0)
	threshold := cfg.FailureThreshold
	c.cb = gobreaker.NewCircuitBreaker[models.Record](gobreaker.Settings{
		Name:        cfg.BreakerName,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Only transport-level failures count against the service.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state transition")
			breakerState.WithLabelValues(name).Set(stateToFloat(to))
			breakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
	return c, nil
}

// Insert implements Service.
func (c *Client) Insert(ctx context.Context, collection string, rec models.Record) error {
	_, err := c.execute(ctx, "insert", http.MethodPost, c.recordsPath(collection), rec)
	return err
}

// Upsert implements Service.
func (c *Client) Upsert(ctx context.Context, collection string, rec models.Record) error {
	id := rec.ID()
	if id == "" {
		return fmt.Errorf("%w: %v", ErrRejected, models.ErrMissingID)
	}
	_, err := c.execute(ctx, "upsert", http.MethodPut, c.recordPath(collection, id), rec)
	return err
}

// Remove implements Service.
func (c *Client) Remove(ctx context.Context, collection, id string, version int64) error {
	path := c.recordPath(collection, id) + "?version=" + strconv.FormatInt(version, 10)
	_, err := c.execute(ctx, "remove", http.MethodDelete, path, nil)
	return err
}

// Get implements Service.
func (c *Client) Get(ctx context.Context, collection, id string) (models.Record, error) {
	return c.execute(ctx, "get", http.MethodGet, c.recordPath(collection, id), nil)
}

// Ping checks the service health endpoint. It bypasses the breaker so a
// prober can detect recovery while the breaker is open.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	return err
}

// State returns the breaker state name.
func (c *Client) State() string {
	return c.cb.State().String()
}

func (c *Client) execute(ctx context.Context, op, method, path string, body models.Record) (models.Record, error) {
	start := time.Now()
	rec, err := c.cb.Execute(func() (models.Record, error) {
		return c.do(ctx, method, path, body)
	})
	requestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: circuit %s: %v", ErrUnavailable, c.name, err)
	}
	requestsTotal.WithLabelValues(op, resultLabel(err)).Inc()
	return rec, err
}

func (c *Client) do(ctx context.Context, method, path string, body models.Record) (models.Record, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: encode body: %v", ErrRejected, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrRejected, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := logging.RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if method != http.MethodGet {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil, nil
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
		}
		return models.DecodeRecord(data)
	}

	msg := readBodyForError(resp.Body)
	switch {
	case resp.StatusCode == http.StatusConflict:
		return nil, fmt.Errorf("%w: %s %s: %s", ErrStaleVersion, method, path, msg)
	case resp.StatusCode == http.StatusNotFound && method == http.MethodGet:
		return nil, ErrNotFound
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s %s: status %d: %s", ErrUnavailable, method, path, resp.StatusCode, msg)
	default:
		return nil, fmt.Errorf("%w: %s %s: status %d: %s", ErrRejected, method, path, resp.StatusCode, msg)
	}
}

func (c *Client) recordsPath(collection string) string {
	return "/collections/" + url.PathEscape(collection) + "/records"
}

func (c *Client) recordPath(collection, id string) string {
	return c.recordsPath(collection) + "/" + url.PathEscape(id)
}

func readBodyForError(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return "(failed to read response body)"
	}
	return strings.TrimSpace(string(body))
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrStaleVersion):
		return "stale"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrRejected):
		return "rejected"
	default:
		return "error"
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

var _ Service = (*Client)(nil)
