// Package upstream is the relay's HTTP client for the orchestrator. It is
// configured so redirects are terminal, inspectable outcomes: the client
// never follows a 3xx, and in strict mode it reports any non-2xx as a
// StatusError carrying the full response.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// maxBodyBytes bounds how much of an upstream body the relay will buffer.
const maxBodyBytes = 1 << 20

// Response is a fully buffered upstream response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// StatusError is the strict-mode encoding of a non-2xx response. The
// embedded response is complete; a 3xx inside a StatusError is the same
// redirect as a 3xx Response, just classified differently.
type StatusError struct {
	Status int
	Header http.Header
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream responded %d", e.Status)
}

// Client issues single GET requests against the orchestrator.
type Client struct {
	baseURL string
	http    *http.Client
	strict  bool
}

type Option func(*Client)

// WithStrictStatus makes the client treat any non-2xx response as a
// *StatusError instead of a Response.
func WithStrictStatus() Option {
	return func(c *Client) { c.strict = true }
}

// WithTimeout bounds the single outbound call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
			// Redirects are the payload here, not something to chase.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get performs one GET against the orchestrator, forwarding the given query
// and headers. Transport failures return a plain error; in strict mode any
// non-2xx status returns a *StatusError.
func (c *Client) Get(ctx context.Context, path string, query url.Values, headers http.Header) (*Response, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	for name, values := range headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call upstream: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}

	if c.strict && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		return nil, &StatusError{
			Status: resp.StatusCode,
			Header: resp.Header.Clone(),
			Body:   body,
		}
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   body,
	}, nil
}
