package presigned

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client fetches documents from signed URLs
type Client struct {
	http     *http.Client
	attempts int
	delay    time.Duration
	progress ProgressFunc
}

// ProgressFunc receives the running byte count of a download
type ProgressFunc func(bytesDownloaded int64)

// ClientOption configures a Client
type ClientOption func(*Client)

// NewClient returns a client that tries each download three times
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		http:     &http.Client{Timeout: 5 * time.Minute},
		attempts: 3,
		delay:    time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.attempts < 1 {
		c.attempts = 1
	}
	return c
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.http = client
	}
}

// WithRetry sets the number of attempts and the base delay between them.
// The delay grows linearly with each attempt.
func WithRetry(attempts int, delay time.Duration) ClientOption {
	return func(c *Client) {
		c.attempts = attempts
		c.delay = delay
	}
}

func WithProgress(fn ProgressFunc) ClientOption {
	return func(c *Client) {
		c.progress = fn
	}
}

// DownloadError is a non-2xx answer from the download route
type DownloadError struct {
	Status  int
	Code    string
	Message string
}

func (e *DownloadError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("download failed: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("download failed: %d %s", e.Status, e.Message)
}

func (e *DownloadError) retryable() bool {
	return e.Status >= http.StatusInternalServerError && e.Status != http.StatusServiceUnavailable
}

// Download writes the document at url to w and returns the bytes written.
// Transport failures and 5xx answers are retried. Nothing reaches w before
// a 2xx response.
func (c *Client) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(c.delay * time.Duration(attempt)):
			}
		}

		resp, err := c.get(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			lastErr = err
			continue
		}
		if resp.StatusCode/100 == 2 {
			return c.copy(w, resp.Body)
		}

		derr := decodeError(resp)
		if !derr.retryable() {
			return 0, derr
		}
		lastErr = derr
	}
	return 0, fmt.Errorf("giving up after %d attempts: %w", c.attempts, lastErr)
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	return resp, nil
}

func (c *Client) copy(w io.Writer, body io.ReadCloser) (int64, error) {
	defer body.Close()
	if c.progress != nil {
		w = &progressWriter{w: w, fn: c.progress}
	}
	n, err := io.Copy(w, body)
	if err != nil {
		return n, fmt.Errorf("download interrupted: %w", err)
	}
	return n, nil
}

// decodeError reads the JSON error body written by the download route
func decodeError(resp *http.Response) *DownloadError {
	defer resp.Body.Close()
	derr := &DownloadError{Status: resp.StatusCode}
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err == nil {
		derr.Code = body.Error.Code
		derr.Message = body.Error.Message
	}
	return derr
}

type progressWriter struct {
	w     io.Writer
	total int64
	fn    ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	if n > 0 {
		p.total += int64(n)
		p.fn(p.total)
	}
	return n, err
}
