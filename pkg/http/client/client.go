package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// BrowserUserAgent is sent by default; the French tide sites block obvious bots.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

const (
	defaultTimeout      = 10 * time.Second
	defaultMaxBodyBytes = 5 << 20
)

// ErrBodyTooLarge is returned when a body exceeds Options.MaxBodyBytes.
var ErrBodyTooLarge = errors.New("response body too large")

type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the upstream answered with a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

type Interface interface {
	Get(ctx context.Context, path string) (*Response, error)
}

// Client performs a single GET per call. There is no retry: a failed request
// is final for the unit of work that issued it.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	headers      map[string]string
	maxBodyBytes int64
	GetFunc      func(ctx context.Context, path string) (*Response, error)
}

type Options struct {
	BaseURL      string
	Timeout      time.Duration
	Headers      map[string]string
	MaxBodyBytes int64
}

func New(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}

	if opts.MaxBodyBytes == 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}

	headers := map[string]string{"User-Agent": BrowserUserAgent}
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &Client{
		baseURL: opts.BaseURL,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		headers:      headers,
		maxBodyBytes: opts.MaxBodyBytes,
	}
}

// BaseURL returns the prefix prepended to relative paths.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	if c.GetFunc != nil {
		return c.GetFunc(ctx, path)
	}

	var fullURL string
	if c.baseURL == "" {
		fullURL = path // If no base URL, treat path as full URL
	} else {
		fullURL = c.baseURL + path
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	// one byte past the limit tells a full body from a cut one
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if int64(len(body)) > c.maxBodyBytes {
		return nil, fmt.Errorf("%w: over %d bytes", ErrBodyTooLarge, c.maxBodyBytes)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}
