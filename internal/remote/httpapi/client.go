// Package httpapi talks to a REST "expenses" collection over JSON.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"expensetracker/internal/remote"
)

const collection = "expenses"

// maxErrorBody bounds how much of a failed response ends up in an error.
const maxErrorBody = 512

type Client struct {
	base *url.URL
	http *http.Client
}

var _ remote.Remote = (*Client)(nil)

type Option func(*Client)

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a client for the collection under baseURL. timeout bounds a
// whole request; zero keeps the pooled client's default.
func New(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("missing remote base url")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse remote base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported remote base url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath, u.RawQuery, u.Fragment = "", "", ""

	c := &Client{base: u, http: newHTTPClientWithPooling()}
	for _, o := range opts {
		o(c)
	}
	if timeout > 0 {
		c.http.Timeout = timeout
	}
	return c, nil
}

// newHTTPClientWithPooling keeps a small pool of warm connections to the API host.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 30 * time.Second}
}

func (c *Client) endpoint(id string) string {
	target := c.base.String() + "/" + collection
	if id != "" {
		target += "/" + url.PathEscape(id)
	}
	return target
}

func (c *Client) List(ctx context.Context) ([]remote.Expense, error) {
	var out []remote.Expense
	if err := c.do(ctx, http.MethodGet, c.endpoint(""), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Create(ctx context.Context, e remote.Expense) (remote.Expense, error) {
	e.ID = ""
	var created remote.Expense
	if err := c.do(ctx, http.MethodPost, c.endpoint(""), e, &created); err != nil {
		return remote.Expense{}, err
	}
	return created, nil
}

func (c *Client) Update(ctx context.Context, id string, e remote.Expense) error {
	if id == "" {
		return remote.ErrNoRemoteID
	}
	e.ID = id
	return c.do(ctx, http.MethodPut, c.endpoint(id), e, nil)
}

func (c *Client) Delete(ctx context.Context, id string) error {
	if id == "" {
		return remote.ErrNoRemoteID
	}
	return c.do(ctx, http.MethodDelete, c.endpoint(id), nil, nil)
}

// do sends body as JSON and decodes a 2xx response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, target string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, target, remote.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &remote.StatusError{
			Method: method,
			URL:    target,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(msg)),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode %s %s: %w", method, target, err)
	}
	return nil
}
