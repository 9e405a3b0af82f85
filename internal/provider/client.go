// Package provider is the HTTP client for the external search job provider.
//
// Every failure after a request is built is an *Error classified by Kind.
// GET requests are retried with exponential backoff; POST requests are not,
// since submitting a search twice creates two jobs.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/crmingest/internal/core"
)

// maxBody bounds how much of a response is read.
const maxBody = 16 << 20

// Export formats accepted by ExportURL.
var exportFormats = map[string]bool{"csv": true, "json": true, "jsonl": true}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	HTTPClient   *http.Client
	Logger       *slog.Logger

	// OnRetry is called before a GET is repeated.
	OnRetry func(op string, attempt int, err error)
}

// Client talks to the provider's /v1 API.
type Client struct {
	base       *url.URL
	http       *http.Client
	apiKey     string
	attempts   int
	backoff    time.Duration
	maxBackoff time.Duration
	logger     *slog.Logger
	onRetry    func(op string, attempt int, err error)
}

// NewHTTPClient returns an http.Client with a tuned transport.
func NewHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// New creates a Client.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("provider base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("provider base url %q: scheme must be http or https", opts.BaseURL)
	}
	if base.Path == "" {
		base.Path = "/"
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = NewHTTPClient(opts.Timeout)
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Client{
		base:       base,
		http:       opts.HTTPClient,
		apiKey:     opts.APIKey,
		attempts:   opts.MaxRetries + 1,
		backoff:    opts.RetryBackoff,
		maxBackoff: 16 * opts.RetryBackoff,
		logger:     opts.Logger,
		onRetry:    opts.OnRetry,
	}, nil
}

// CreateJob submits a search and returns the provider's job id.
func (c *Client) CreateJob(ctx context.Context, params core.SearchParams) (string, error) {
	var resp struct {
		JobID string `json:"jobId"`
	}
	if err := c.do(ctx, http.MethodPost, c.endpoint(nil, "v1", "search"), params, &resp); err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", &Error{Kind: KindBadResponse, Op: "POST /v1/search", Err: fmt.Errorf("missing jobId")}
	}
	return resp.JobID, nil
}

// GetJob fetches the current status of one job.
func (c *Client) GetJob(ctx context.Context, id string) (core.JobSnapshot, error) {
	var w jobWire
	if err := c.get(ctx, c.endpoint(nil, "v1", "jobs", id), &w); err != nil {
		return core.JobSnapshot{}, err
	}
	job, err := w.toJob("GET /v1/jobs/{id}")
	if err != nil {
		return core.JobSnapshot{}, err
	}
	if job.ID == "" {
		job.ID = id
	}
	return core.JobSnapshot{
		ID:         job.ID,
		Name:       job.Name,
		Status:     job.Status,
		Progress:   job.Progress,
		Error:      job.Error,
		ObservedAt: time.Now(),
	}, nil
}

// ListJobs returns the most recent jobs, newest first as ordered by the
// provider. The response may be a bare array or {"jobs": [...]}.
func (c *Client) ListJobs(ctx context.Context, limit int) ([]core.ScrapeJob, error) {
	q := url.Values{"limit": {strconv.Itoa(limit)}}

	var raw json.RawMessage
	if err := c.get(ctx, c.endpoint(q, "v1", "jobs"), &raw); err != nil {
		return nil, err
	}
	var wires []jobWire
	if err := decodeList(raw, "jobs", &wires); err != nil {
		return nil, &Error{Kind: KindBadResponse, Op: "GET /v1/jobs", Err: err}
	}

	jobs := make([]core.ScrapeJob, 0, len(wires))
	for _, w := range wires {
		job, err := w.toJob("GET /v1/jobs")
		if err != nil {
			c.logger.Warn("skipping malformed job in list", "job_id", w.ID, "error", err)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// ListPlaces returns one page of a job's results. The response may be a bare
// array or {"items": [...]}.
func (c *Client) ListPlaces(ctx context.Context, id string, limit, offset int) ([]core.PlaceResult, error) {
	q := url.Values{
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
	}

	var raw json.RawMessage
	if err := c.get(ctx, c.endpoint(q, "v1", "jobs", id, "places"), &raw); err != nil {
		return nil, err
	}
	places := []core.PlaceResult{}
	if err := decodeList(raw, "items", &places); err != nil {
		return nil, &Error{Kind: KindBadResponse, Op: "GET /v1/jobs/{id}/places", Err: err}
	}
	return places, nil
}

// CountPlaces returns the number of results stored for a job.
func (c *Client) CountPlaces(ctx context.Context, id string) (int, error) {
	var resp struct {
		Total int `json:"total"`
	}
	if err := c.get(ctx, c.endpoint(nil, "v1", "jobs", id, "count"), &resp); err != nil {
		return 0, err
	}
	return resp.Total, nil
}

// ExportURL returns the download URL of a job's results. No request is made.
func (c *Client) ExportURL(id, format string) (string, error) {
	if format == "" {
		format = "csv"
	}
	if !exportFormats[format] {
		return "", fmt.Errorf("unsupported export format %q", format)
	}
	return c.endpoint(url.Values{"format": {format}}, "v1", "export", id).String(), nil
}

// EnrichRequest asks the provider for contact emails of a business.
type EnrichRequest struct {
	Website string   `json:"website,omitempty"`
	Domain  string   `json:"domain,omitempty"`
	Emails  []string `json:"emails,omitempty"`
}

// EnrichContacts returns the emails found for req. When only a website is
// given its registrable domain is sent along.
func (c *Client) EnrichContacts(ctx context.Context, req EnrichRequest) ([]string, error) {
	if req.Domain == "" && req.Website != "" {
		if d, err := RegistrableDomain(req.Website); err == nil {
			req.Domain = d
		} else {
			c.logger.Debug("no registrable domain for website", "website", req.Website, "error", err)
		}
	}

	var resp struct {
		Emails []string `json:"emails"`
	}
	if err := c.do(ctx, http.MethodPost, c.endpoint(nil, "v1", "enrich-contacts"), req, &resp); err != nil {
		return nil, err
	}
	if resp.Emails == nil {
		resp.Emails = []string{}
	}
	return resp.Emails, nil
}

// endpoint joins escaped path segments onto the base URL.
func (c *Client) endpoint(q url.Values, segments ...string) *url.URL {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u := c.base.JoinPath(escaped...)
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return u
}

func (c *Client) get(ctx context.Context, u *url.URL, out any) error {
	op := "GET " + u.Path
	onRetry := func(attempt int, err error) {
		c.logger.Debug("retrying provider request", "op", op, "attempt", attempt, "error", err)
		if c.onRetry != nil {
			c.onRetry(op, attempt, err)
		}
	}
	return retry(ctx, c.attempts, c.backoff, c.maxBackoff, onRetry, func() error {
		return c.do(ctx, http.MethodGet, u, nil, out)
	})
}

func (c *Client) do(ctx context.Context, method string, u *url.URL, body, out any) error {
	op := method + " " + u.Path

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classify(op, err, 0)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return classify(op, err, 0)
	}
	if err := classify(op, nil, resp.StatusCode); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: KindBadResponse, Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

// decodeList accepts either a JSON array or an object holding the array
// under key.
func decodeList(raw json.RawMessage, key string, out any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '[' {
		return json.Unmarshal(trimmed, out)
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return err
	}
	inner, ok := wrapper[key]
	if !ok {
		return fmt.Errorf("expected array or object with %q", key)
	}
	if bytes.Equal(bytes.TrimSpace(inner), []byte("null")) {
		return nil
	}
	return json.Unmarshal(inner, out)
}

// jobWire is the provider's job document. Optional fields may be null.
type jobWire struct {
	ID        string          `json:"id"`
	Name      *string         `json:"name"`
	Status    string          `json:"status"`
	Progress  float64         `json:"progress"`
	Error     *string         `json:"error"`
	CreatedAt string          `json:"created_at"`
	Params    json.RawMessage `json:"params"`
}

var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (w jobWire) toJob(op string) (core.ScrapeJob, error) {
	status := core.JobStatus(strings.ToLower(strings.TrimSpace(w.Status)))
	switch status {
	case core.JobQueued, core.JobRunning, core.JobCompleted, core.JobFailed:
	default:
		return core.ScrapeJob{}, &Error{Kind: KindBadResponse, Op: op, Err: fmt.Errorf("unknown job status %q", w.Status)}
	}

	job := core.ScrapeJob{
		ID:       w.ID,
		Status:   status,
		Progress: int(math.Round(math.Max(0, math.Min(100, w.Progress)))),
	}
	if w.Name != nil {
		job.Name = *w.Name
	}
	if w.Error != nil {
		job.Error = *w.Error
	}
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, w.CreatedAt); err == nil {
			job.CreatedAt = t
			break
		}
	}
	if len(w.Params) > 0 {
		// params are informational; a shape mismatch is not an error
		_ = json.Unmarshal(w.Params, &job.Params)
	}
	return job, nil
}
