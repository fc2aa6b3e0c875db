package restapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const (
	DefaultTimeout    = 30 * time.Second
	DefaultRetries    = 3
	DefaultRetryDelay = time.Second
)

// ErrNotFound is returned when the API answers 404 for a table.
var ErrNotFound = errors.New("not found")

// StatusError is a non-2xx response that is not a 404.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP error %d", e.Code)
	}
	return fmt.Sprintf("HTTP error %d: %s", e.Code, e.Body)
}

type Options struct {
	// BaseURL is the REST root, e.g. https://<project>.supabase.co/rest/v1.
	BaseURL    string
	ServiceKey string
	// Timeout bounds every single HTTP call.
	Timeout time.Duration
	// Retries is the total number of attempts made for a rate-limited call;
	// zero means DefaultRetries.
	Retries int
	// RetryDelay is the base of the linear wait; zero retries immediately.
	RetryDelay time.Duration
	// HTTPClient overrides the default client; its Timeout is left alone.
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client reads tables through a PostgREST style API.
type Client struct {
	baseURL    string
	key        string
	http       *http.Client
	retries    int
	retryDelay time.Duration
	logger     zerolog.Logger
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Retries <= 0 {
		opts.Retries = DefaultRetries
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		key:        opts.ServiceKey,
		http:       hc,
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
		logger:     opts.Logger,
	}
}

// Page is one batch of rows. Total is only meaningful when TotalKnown is set.
type Page struct {
	Rows       []Row
	Total      int64
	TotalKnown bool
}

// FetchPage reads limit rows of table starting at offset, asking the server
// for an exact total count alongside.
func (c *Client) FetchPage(ctx context.Context, table string, offset, limit int) (*Page, error) {
	u := fmt.Sprintf("%s/%s?select=*&offset=%d&limit=%d", c.baseURL, url.PathEscape(table), offset, limit)
	resp, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}

	rows, err := DecodeRows(resp.body)
	if err != nil {
		return nil, fmt.Errorf("parsing rows of %s: %w", table, err)
	}
	total, known := ParseContentRange(resp.header.Get("Content-Range"))
	return &Page{Rows: rows, Total: total, TotalKnown: known}, nil
}

// Probe is the result of an existence check.
type Probe struct {
	Exists    bool
	Rows      int64
	RowsKnown bool
}

// Probe checks whether table exists. A 404 means the table is absent and is
// not reported as an error.
func (c *Client) Probe(ctx context.Context, table string) (*Probe, error) {
	u := fmt.Sprintf("%s/%s?select=id&limit=1", c.baseURL, url.PathEscape(table))
	resp, err := c.get(ctx, u)
	if errors.Is(err, ErrNotFound) {
		return &Probe{}, nil
	}
	if err != nil {
		return nil, err
	}
	total, known := ParseContentRange(resp.header.Get("Content-Range"))
	return &Probe{Exists: true, Rows: total, RowsKnown: known}, nil
}

func (c *Client) TableExists(ctx context.Context, table string) (bool, error) {
	p, err := c.Probe(ctx, table)
	if err != nil {
		return false, err
	}
	return p.Exists, nil
}

type response struct {
	header http.Header
	body   []byte
}

func (c *Client) get(ctx context.Context, rawURL string) (*response, error) {
	var out *response
	attempt := 0
	op := func() error {
		attempt++
		resp, err := c.do(ctx, rawURL)
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusTooManyRequests {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		out = resp
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Str("url", rawURL).Msg("rate limited, retrying")
	}

	policy := backoff.WithContext(newRetryPolicy(c.retryDelay, c.retries), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, rawURL string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("apikey", c.key)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "count=exact")

	c.logger.Debug().Str("url", rawURL).Msg("GET")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return &response{header: resp.Header, body: body}, nil
}

// ParseContentRange takes the total from a header such as "0-999/2500". The
// total is the text after the last slash; "*" or garbage means unknown.
func ParseContentRange(v string) (int64, bool) {
	if v == "" {
		return 0, false
	}
	total := v[strings.LastIndex(v, "/")+1:]
	n, err := strconv.ParseInt(strings.TrimSpace(total), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
