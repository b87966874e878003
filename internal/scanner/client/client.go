// Package client is the scanner's HTTP binding to the gateway API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"eventgate/internal/checkpoint/models"
	guestmodels "eventgate/internal/guest/models"
	"eventgate/internal/scanner"
	"eventgate/pkg/platform/circuit"
	"eventgate/pkg/platform/sentinel"
)

const (
	defaultTimeout = 5 * time.Second
	maxBodyBytes   = 1 << 20
)

var ErrCircuitOpen = errors.New("gateway unavailable: circuit open")

// StatusError is a non-2xx reply that is not a policy rejection.
type StatusError struct {
	Status      int
	Code        string
	Description string
}

func (e *StatusError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("gateway returned %d %s: %s", e.Status, e.Code, e.Description)
	}
	return fmt.Sprintf("gateway returned %d %s", e.Status, e.Code)
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithBearerToken sets the staff JWT sent on every request.
func WithBearerToken(token string) Option {
	return func(c *Client) {
		c.bearer = token
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client implements scanner.Gateway over HTTP. Server errors and transport
// failures trip the circuit breaker so a down server fails scans fast.
type Client struct {
	baseURL string
	http    *http.Client
	bearer  string
	breaker *circuit.Breaker
	logger  *slog.Logger
}

var _ scanner.Gateway = (*Client)(nil)

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		breaker: circuit.New("gateway"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
	Reason      string `json:"reason"`
	Message     string `json:"message"`
}

func (c *Client) FetchProfile(ctx context.Context, token string) (*guestmodels.Profile, error) {
	var out struct {
		Success bool                 `json:"success"`
		User    *guestmodels.Profile `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/user/token/"+url.PathEscape(token), nil, &out); err != nil {
		return nil, err
	}
	if !out.Success || out.User == nil {
		return nil, sentinel.ErrNotFound
	}
	return out.User, nil
}

func (c *Client) FetchStatus(ctx context.Context, token string) (*models.TokenRecord, error) {
	var out struct {
		Token  string          `json:"token"`
		Prasad map[string]bool `json:"prasad"`
	}
	path := "/api/prasad/status?token=" + url.QueryEscape(token)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return recordFromFlags(token, out.Prasad), nil
}

func (c *Client) RecordEntry(ctx context.Context, token string) (*models.TokenRecord, bool, error) {
	body := map[string]any{"token": token, "entryGate": true}
	var out struct {
		AlreadyRecorded bool            `json:"alreadyRecorded"`
		Prasad          map[string]bool `json:"prasad"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/prasad/entry", body, &out); err != nil {
		return nil, false, err
	}
	return recordFromFlags(token, out.Prasad), !out.AlreadyRecorded, nil
}

func (c *Client) RecordCheckpoint(ctx context.Context, token string, cp models.CheckpointID) (*models.TokenRecord, error) {
	body := map[string]string{"token": token, "prasadType": cp.String()}
	var out struct {
		Prasad map[string]bool `json:"prasad"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/prasad/update", body, &out); err != nil {
		return nil, err
	}
	return recordFromFlags(token, out.Prasad), nil
}

// Checkpoints lists the stations the server is configured for.
func (c *Client) Checkpoints(ctx context.Context) ([]models.CheckpointID, error) {
	var out struct {
		Checkpoints []string `json:"checkpoints"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/prasad/checkpoints", nil, &out); err != nil {
		return nil, err
	}
	ids := make([]models.CheckpointID, len(out.Checkpoints))
	for i, id := range out.Checkpoints {
		ids[i] = models.CheckpointID(id)
	}
	return ids, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if !c.breaker.Allow() {
		return ErrCircuitOpen
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.failure(ctx, err)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.failure(ctx, err)
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		c.failure(ctx, fmt.Errorf("status %d", resp.StatusCode))
		return statusError(resp.StatusCode, raw)
	}
	c.breaker.RecordSuccess()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return sentinel.ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil && eb.Reason != "" {
			return &scanner.RejectedError{Reason: eb.Reason, Message: eb.Message}
		}
		return statusError(resp.StatusCode, raw)
	case resp.StatusCode >= http.StatusBadRequest:
		return statusError(resp.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) failure(ctx context.Context, err error) {
	if c.breaker.RecordFailure() {
		c.logger.WarnContext(ctx, "gateway circuit opened", "error", err)
	}
}

func statusError(status int, raw []byte) error {
	se := &StatusError{Status: status}
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil {
		se.Code, se.Description = eb.Error, eb.Description
	}
	return se
}

func recordFromFlags(token string, flags map[string]bool) *models.TokenRecord {
	r := models.NewTokenRecord(token, time.Time{})
	for k, v := range flags {
		cp := models.CheckpointID(k)
		if cp.IsEntryGate() {
			r.EntryGate = v
			continue
		}
		r.Checkpoints[cp] = v
	}
	return r
}
