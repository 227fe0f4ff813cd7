package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

type Connection interface {
	Request(ctx context.Context, endpoint *url.URL) (*http.Response, error)
}

type ClientHost struct {
	client  *http.Client
	scheme  string
	host    string
	limiter *rate.Limiter
}

type Client struct {
	Connection Connection
	ApiKey     string
}

func (conn *ClientHost) Request(ctx context.Context, endpoint *url.URL) (*http.Response, error) {
	if conn.limiter != nil {
		if err := conn.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("error waiting for rate limiter: %w", err)
		}
	}

	endpoint.Scheme = conn.scheme
	endpoint.Host = conn.host

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("error building request: %w", err)
	}
	return conn.client.Do(req)
}

// ClientFactory builds a client against https://host. requestsPerMinute <= 0 disables rate limiting.
func ClientFactory(host string, apiKey string, timeout time.Duration, requestsPerMinute int) *Client {
	return NewClient(&ClientHost{
		client:  &http.Client{Timeout: timeout},
		scheme:  "https",
		host:    host,
		limiter: newLimiter(requestsPerMinute),
	}, apiKey)
}

// NewClient wraps any connection, tests use it with an httptest server or a stub.
func NewClient(connection Connection, apiKey string) *Client {
	return &Client{
		Connection: connection,
		ApiKey:     apiKey,
	}
}

// NewHostConnection is a plain http connection against scheme://host.
func NewHostConnection(client *http.Client, scheme, host string) *ClientHost {
	return &ClientHost{client: client, scheme: scheme, host: host}
}

func newLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
}
