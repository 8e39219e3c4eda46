package transport

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

	"departureboard/pkg/metrics"
	internalotel "departureboard/pkg/otel"
	"departureboard/pkg/types"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultBaseURL = "https://v6.bvg.transport.rest"
	DefaultTimeout = 30 * time.Second
	UserAgent      = "departureboard/1.0.0"
)

// ErrTransient marks failures that may succeed when retried: network errors,
// timeouts and overloaded upstream responses.
var ErrTransient = errors.New("transient fetch error")

// StatusError is returned for a non-200 API response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the status is worth retrying.
func (e *StatusError) Transient() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Request describes one departures query for a single (stop, direction) pair.
type Request struct {
	StopID    string
	Direction string // empty queries all directions
	Products  types.Products
	MinTime   float64 // minutes from now the window starts
	Duration  float64 // window length in minutes
	Results   int     // advisory result count
}

// Query returns the URL query parameters of the request.
func (r Request) Query() url.Values {
	q := url.Values{}
	q.Set("when", "in "+formatMinutes(r.MinTime)+" minutes")
	q.Set("duration", formatMinutes(r.Duration))
	q.Set("results", strconv.Itoa(r.Results))
	for _, p := range types.AllProducts {
		q.Set(string(p), strconv.FormatBool(r.Products.Has(p)))
	}
	if r.Direction != "" {
		q.Set("direction", r.Direction)
	}
	return q
}

func formatMinutes(m float64) string {
	return strconv.FormatFloat(m, 'f', -1, 64)
}

// Response is a raw departures payload.
type Response struct {
	Body      []byte
	StopID    string
	Direction string
	Timestamp time.Time
	Attempts  int
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL        string
	Timeout        time.Duration // per attempt
	MaxRetries     int           // additional attempts after the first for transient failures
	InitialBackoff time.Duration
}

// Client fetches departures from a HAFAS REST endpoint. It is safe for
// concurrent use; the underlying http.Client is shared read-only.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	maxRetries     uint64
	initialBackoff time.Duration
	tracer         trace.Tracer
}

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}

	// Create HTTP client with OpenTelemetry instrumentation
	client := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   opts.Timeout,
	}

	return &Client{
		httpClient:     client,
		baseURL:        strings.TrimSuffix(opts.BaseURL, "/"),
		maxRetries:     uint64(opts.MaxRetries),
		initialBackoff: opts.InitialBackoff,
		tracer:         otel.Tracer("transport-client"),
	}
}

// URL returns the full request URL for req.
func (c *Client) URL(req Request) string {
	return fmt.Sprintf("%s/stops/%s/departures?%s", c.baseURL, url.PathEscape(req.StopID), req.Query().Encode())
}

// FetchDepartures performs the departures query, retrying transient failures
// with exponential backoff inside this call only.
func (c *Client) FetchDepartures(ctx context.Context, req Request) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, "transport.fetch_departures",
		trace.WithAttributes(
			attribute.String("stop_id", req.StopID),
			attribute.String("direction", req.Direction),
			attribute.String("api.endpoint", c.baseURL),
		),
	)
	defer span.End()

	reqURL := c.URL(req)
	span.SetAttributes(
		attribute.String("http.url", reqURL),
		attribute.String("http.method", "GET"),
	)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialBackoff
	policy.MaxElapsedTime = 0

	attempts := 0
	var body []byte
	operation := func() error {
		attempts++
		var err error
		body, err = c.get(ctx, reqURL)
		if err != nil && !errors.Is(err, ErrTransient) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		metrics.FetchRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("stop_id", req.StopID)))
		span.AddEvent("retry", trace.WithAttributes(
			attribute.Int("attempt", attempts),
			attribute.String("wait", wait.String()),
			attribute.String("error", err.Error()),
		))
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx), notify)
	span.SetAttributes(attribute.Int("attempts", attempts))
	if err != nil {
		var statusErr *StatusError
		switch {
		case errors.As(err, &statusErr):
			internalotel.RecordError(span, err, internalotel.ErrorTypeHTTP, statusErr.Transient())
		default:
			internalotel.RecordError(span, err, internalotel.ClassifyError(err), errors.Is(err, ErrTransient))
		}
		return nil, err
	}

	span.SetAttributes(attribute.Int("response.size_bytes", len(body)))
	internalotel.SetSpanOk(span)

	return &Response{
		Body:      body,
		StopID:    req.StopID,
		Direction: req.Direction,
		Timestamp: time.Now(),
		Attempts:  attempts,
	}, nil
}

// get performs a single attempt.
func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Public APIs often block default Go user agents
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		recordRequest(ctx, start, 0, -1)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request aborted: %w", err)
		}
		return nil, fmt.Errorf("%w: failed to make request: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	recordRequest(ctx, start, resp.StatusCode, int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrTransient, err)
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
		if statusErr.Transient() {
			return nil, fmt.Errorf("%w: %w", ErrTransient, statusErr)
		}
		return nil, statusErr
	}

	return body, nil
}

func recordRequest(ctx context.Context, start time.Time, status int, size int64) {
	attrs := metric.WithAttributes(
		attribute.String("http.request.method", http.MethodGet),
		attribute.Int("http.response.status_code", status),
	)
	metrics.HTTPClientRequestDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	if size >= 0 {
		metrics.HTTPClientResponseBodySize.Record(ctx, size, attrs)
	}
	metrics.APIRequestsTotal.Add(ctx, 1, attrs)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
