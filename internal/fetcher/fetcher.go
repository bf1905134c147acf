// Package fetcher pulls raw tweet payloads from the remote source.
//
// A Fetcher issues a fixed number of serial GET requests and exposes the
// successful response bodies as a lazy, single-use iter.Seq[string]. Failed
// attempts (non-200 status, transport or read errors) are logged and skipped;
// they never abort the remaining attempts. There is no retry or backoff: each
// attempt is independent.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/tbourn/twola/internal/observability"
)

// DefaultAttempts is the number of requests issued per Fetch when the
// caller passes a non-positive count.
const DefaultAttempts = 3

// maxBodyBytes caps a single response body.
const maxBodyBytes = 8 << 20

// fetchAttempts counts attempts by outcome (ok|http_error|transport_error).
var fetchAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "twola_fetch_attempts_total",
		Help: "Requests issued to the tweet source, by outcome.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(fetchAttempts)
}

// Fetcher issues up to Attempts GET requests to URL per Fetch call.
type Fetcher struct {
	url      string
	attempts int
	client   *http.Client
	limiter  *rate.Limiter
	logger   zerolog.Logger
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets the client used for requests. Timeouts are the
// client's responsibility.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithInterval spaces consecutive attempts at least d apart. Zero disables
// pacing.
func WithInterval(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithLogger sets the logger used for skipped attempts.
func WithLogger(l zerolog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// New returns a Fetcher for url. attempts <= 0 selects DefaultAttempts.
func New(url string, attempts int, opts ...Option) *Fetcher {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	f := &Fetcher{
		url:      url,
		attempts: attempts,
		client:   &http.Client{Timeout: 10 * time.Second},
		limiter:  rate.NewLimiter(rate.Inf, 1),
		logger:   log.Logger,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Attempts returns the number of requests issued per Fetch.
func (f *Fetcher) Attempts() int { return f.attempts }

// Fetch returns a lazy sequence of raw response bodies. Requests are only
// issued while the sequence is being ranged over, one at a time. The sequence
// is single-use: ranging over it again yields nothing; call Fetch again to
// start a new round. Cancelling ctx stops further attempts.
func (f *Fetcher) Fetch(ctx context.Context) iter.Seq[string] {
	var used atomic.Bool
	return func(yield func(string) bool) {
		if used.Swap(true) {
			return
		}
		for i := 1; i <= f.attempts; i++ {
			if err := f.limiter.Wait(ctx); err != nil {
				f.logger.Warn().Err(err).Int("attempt", i).Msg("fetch stopped")
				return
			}
			body, err := f.fetchOnce(ctx, i)
			if err != nil {
				if ctx.Err() != nil {
					f.logger.Warn().Err(ctx.Err()).Int("attempt", i).Msg("fetch stopped")
					return
				}
				f.logger.Warn().Err(err).Int("attempt", i).Str("url", f.url).Msg("fetch attempt failed, skipping")
				continue
			}
			if !yield(body) {
				return
			}
		}
	}
}

// StatusError reports a non-200 response from the source.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %s", e.Status)
}

// fetchOnce performs a single attempt and returns the body of a 200 response.
func (f *Fetcher) fetchOnce(ctx context.Context, attempt int) (string, error) {
	ctx, span := observability.Tracer("fetcher").Start(ctx, "fetcher.attempt")
	defer span.End()
	span.SetAttributes(
		attribute.String("url.full", f.url),
		attribute.Int("fetch.attempt", attempt),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		fetchAttempts.WithLabelValues("transport_error").Inc()
		return "", observability.Fail(span, err, "build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		fetchAttempts.WithLabelValues("transport_error").Inc()
		return "", observability.Fail(span, err, "request failed")
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		fetchAttempts.WithLabelValues("http_error").Inc()
		err := &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
		return "", observability.Fail(span, err, err.Error())
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		fetchAttempts.WithLabelValues("transport_error").Inc()
		return "", observability.Fail(span, err, "read body")
	}
	fetchAttempts.WithLabelValues("ok").Inc()
	return string(body), nil
}
