// internal/common/http/client.go
package http

import (
	"context"
	"net"
	"net/http"
	"time"
)

// Client is the outbound transport shared by the AWS SDK clients. It
// satisfies the SDK's HTTPClient interface through Do.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

type Option func(*Client)

// WithUserAgent appends a product token to every outbound request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithTransport replaces the pooled transport, mostly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.httpClient.Transport = rt }
}

// NewClient builds a client whose timeout bounds a whole exchange, body
// included. A zero timeout means no client-side limit.
func NewClient(timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          50,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   5 * time.Second,
				ExpectContinueTimeout: time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.userAgent != "" {
		if ua := req.Header.Get("User-Agent"); ua != "" {
			req.Header.Set("User-Agent", ua+" "+c.userAgent)
		} else {
			req.Header.Set("User-Agent", c.userAgent)
		}
	}
	return c.httpClient.Do(req)
}

func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.Do(req.WithContext(ctx))
}
