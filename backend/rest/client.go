// Package rest is the remote store for hosted PostgREST-style backends.
// Table reads and writes go over HTTP; change events arrive over a
// realtime websocket (see realtime.go).
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"clinicsync/backend"

	"github.com/golang-jwt/jwt/v5"
)

func init() {
	backend.RegisterType("rest", func(config backend.RemoteConfig) (backend.RemoteStore, error) {
		c, err := New(config)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}

// Client talks to {url}/rest/v1 and {url}/realtime/v1
type Client struct {
	baseURL   *url.URL
	accessKey string
	client    *http.Client

	// HeartbeatInterval is how often realtime sockets send a phoenix heartbeat
	HeartbeatInterval time.Duration
	// JoinTimeout bounds the wait for a channel join reply
	JoinTimeout time.Duration

	mu   sync.Mutex
	subs map[*subscription]struct{}

	now func() time.Time
}

var _ backend.RemoteStore = (*Client)(nil)

// New creates a client for config.URL authenticated with config.AccessKey
func New(config backend.RemoteConfig) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(config.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid remote URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote URL must be http or https, got %q", config.URL)
	}
	if config.AccessKey == "" {
		return nil, fmt.Errorf("remote access key is required")
	}
	return &Client{
		baseURL:   u,
		accessKey: config.AccessKey,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     30 * time.Second,
			},
			Timeout: 30 * time.Second,
		},
		HeartbeatInterval: 30 * time.Second,
		JoinTimeout:       10 * time.Second,
		subs:              make(map[*subscription]struct{}),
		now:               time.Now,
	}, nil
}

// KeyExpired reports whether the access key is a JWT whose exp has passed.
// Keys that are not JWTs, or carry no exp, never expire.
func (c *Client) KeyExpired() bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.accessKey, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !c.now().Before(exp.Time)
}

func (c *Client) tableURL(table string, query url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/rest/v1/" + table
	u.RawQuery = query.Encode()
	return u.String()
}

// makeAuthenticatedRequest creates and executes a request carrying the access key
func (c *Client) makeAuthenticatedRequest(ctx context.Context, method, target string, body any, headers map[string]string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.accessKey)
	req.Header.Set("Authorization", "Bearer "+c.accessKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

// checkHTTPResponse turns a non-2xx response into a *backend.BackendError
func checkHTTPResponse(resp *http.Response, operation string) *backend.BackendError {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch resp.StatusCode {
	case 401, 403:
		return backend.NewBackendError(operation, resp.StatusCode, "Authentication failed. Check the remote access key").
			WithBody(string(body))
	case 404:
		return backend.NewBackendError(operation, resp.StatusCode, "Resource not found. Check the remote URL and table names").
			WithBody(string(body))
	case 409:
		return backend.NewBackendError(operation, resp.StatusCode, "Record already exists").
			WithBody(string(body))
	default:
		return backend.NewBackendError(operation, resp.StatusCode, resp.Status).
			WithBody(string(body))
	}
}

func (c *Client) do(ctx context.Context, operation, table, id, method, target string, body any, headers map[string]string) (*http.Response, error) {
	if _, err := backend.LookupTable(table); err != nil {
		return nil, err
	}
	resp, err := c.makeAuthenticatedRequest(ctx, method, target, body, headers)
	if err != nil {
		return nil, backend.NewBackendError(operation, 0, "").WithTable(table).WithRecordID(id).WithError(err)
	}
	if berr := checkHTTPResponse(resp, operation); berr != nil {
		resp.Body.Close()
		return nil, berr.WithTable(table).WithRecordID(id)
	}
	return resp, nil
}

// Ping issues one minimal read. An expired access key fails without I/O.
func (c *Client) Ping(ctx context.Context) error {
	if c.KeyExpired() {
		return backend.NewBackendError("Ping", 0, "access key expired")
	}
	q := url.Values{"select": {"id"}, "limit": {"1"}}
	resp, err := c.do(ctx, "Ping", backend.TableSettings, "", http.MethodGet, c.tableURL(backend.TableSettings, q), nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// SelectAll returns every row of table
func (c *Client) SelectAll(ctx context.Context, table string) ([]backend.Row, error) {
	q := url.Values{"select": {"*"}}
	resp, err := c.do(ctx, "SelectAll", table, "", http.MethodGet, c.tableURL(table, q), nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var rows []backend.Row
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, backend.NewBackendError("SelectAll", resp.StatusCode, "").WithTable(table).
			WithError(fmt.Errorf("failed to decode rows: %w", err))
	}
	return rows, nil
}

// Insert creates a row
func (c *Client) Insert(ctx context.Context, table string, row backend.Row) error {
	resp, err := c.do(ctx, "Insert", table, row.ID(), http.MethodPost, c.tableURL(table, nil), row,
		map[string]string{"Prefer": "return=minimal"})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Update patches the row with the given id
func (c *Client) Update(ctx context.Context, table string, id string, row backend.Row) error {
	q := url.Values{"id": {"eq." + id}}
	resp, err := c.do(ctx, "Update", table, id, http.MethodPatch, c.tableURL(table, q), row,
		map[string]string{"Prefer": "return=minimal"})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Delete removes the row with the given id
func (c *Client) Delete(ctx context.Context, table string, id string) error {
	q := url.Values{"id": {"eq." + id}}
	resp, err := c.do(ctx, "Delete", table, id, http.MethodDelete, c.tableURL(table, q), nil, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Close ends every open subscription and drops idle connections
func (c *Client) Close() error {
	c.mu.Lock()
	subs := make([]*subscription, 0, len(c.subs))
	for s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	c.client.CloseIdleConnections()
	return nil
}
