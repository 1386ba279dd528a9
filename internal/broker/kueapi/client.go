// Package kueapi implements broker.Broker against the JSON API a Kue
// deployment exposes over HTTP (GET /jobs/:type/:state/:from..:to/:order,
// DELETE /job/:id, PUT /job/:id/state/:state).
package kueapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jmylchreest/go-jobjanitor/internal/broker"
	"github.com/jmylchreest/go-jobjanitor/pkg/httpclient"
)

var _ broker.Broker = (*Client)(nil)

// Client talks to a Kue JSON API
type Client struct {
	baseURL string
	http    *httpclient.Client
	logger  *slog.Logger
}

// ClientConfig holds configuration for creating a Client
type ClientConfig struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
	SkipTLS  bool
	Logger   *slog.Logger
}

// NewClient creates a new Kue API client
func NewClient(cfg ClientConfig) *Client {
	httpCfg := httpclient.DefaultConfig()
	if cfg.Timeout > 0 {
		httpCfg.Timeout = cfg.Timeout
	}
	httpCfg.SkipTLSVerify = cfg.SkipTLS
	httpCfg.Username = cfg.Username
	httpCfg.Password = cfg.Password

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpclient.New(httpCfg),
		logger:  logger.With("component", "kue_api"),
	}
}

// RangeByType lists jobs through GET /jobs/:type/:state/:from..:to/:order
func (c *Client) RangeByType(ctx context.Context, jobType string, state broker.State, from, to int, order broker.Order) ([]broker.Job, error) {
	if err := broker.ValidateRange(jobType, state, from, to, order); err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/jobs/%s/%s/%d..%d/%s", url.PathEscape(jobType), state, from, to, order)

	var records []Job
	if err := c.request(ctx, http.MethodGet, path, &records); err != nil {
		return nil, fmt.Errorf("range %s/%s: %w", jobType, state, err)
	}

	c.logger.DebugContext(ctx, "retrieved jobs",
		"type", jobType,
		"state", state,
		"count", len(records))

	jobs := make([]broker.Job, 0, len(records))
	for _, r := range records {
		j, err := r.toBroker(jobType, state)
		if err != nil {
			return nil, fmt.Errorf("range %s/%s: %w", jobType, state, err)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// Remove deletes a job through DELETE /job/:id
func (c *Client) Remove(ctx context.Context, job broker.Job) error {
	path := "/job/" + url.PathEscape(job.ID)
	if err := c.request(ctx, http.MethodDelete, path, nil); err != nil {
		return fmt.Errorf("remove job %s: %w", job.ID, err)
	}

	c.logger.DebugContext(ctx, "removed job", "id", job.ID, "type", job.Type)
	return nil
}

// SetState moves a job through PUT /job/:id/state/:state
func (c *Client) SetState(ctx context.Context, job broker.Job, state broker.State) error {
	if !state.Valid() {
		return fmt.Errorf("set state: %w: %q", broker.ErrUnsupportedState, state)
	}
	path := fmt.Sprintf("/job/%s/state/%s", url.PathEscape(job.ID), state)
	if err := c.request(ctx, http.MethodPut, path, nil); err != nil {
		return fmt.Errorf("set job %s state %s: %w", job.ID, state, err)
	}

	c.logger.DebugContext(ctx, "updated job state", "id", job.ID, "state", state)
	return nil
}

// GetStats retrieves the queue-wide counters
func (c *Client) GetStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.request(ctx, http.MethodGet, "/stats", &stats); err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	return &stats, nil
}

// Ping checks that the API answers /stats
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.GetStats(ctx)
	return err
}

// Close closes the underlying HTTP client connections
func (c *Client) Close() error {
	c.http.Close()
	return nil
}

// request executes an API call and maps Kue's error bodies onto broker errors
func (c *Client) request(ctx context.Context, method, path string, result any) error {
	fullURL := c.baseURL + path

	c.logger.DebugContext(ctx, "API request",
		"method", method,
		"url", fullURL)

	target := result
	var msg Message
	if target == nil {
		target = &msg
	}

	err := c.http.DoJSON(ctx, method, fullURL, nil, target)
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) {
			c.logger.ErrorContext(ctx, "API error response",
				"status", statusErr.StatusCode,
				"body", statusErr.Body)
			if statusErr.StatusCode == http.StatusNotFound || strings.Contains(statusErr.Body, "doesnt exist") {
				return fmt.Errorf("%w: %s", broker.ErrJobNotFound, statusErr.Body)
			}
		}
		return err
	}

	// Kue reports some failures with a 200 and an error field
	if msg.Error != "" {
		if strings.Contains(msg.Error, "doesnt exist") {
			return fmt.Errorf("%w: %s", broker.ErrJobNotFound, msg.Error)
		}
		return fmt.Errorf("kue: %s", msg.Error)
	}
	return nil
}
