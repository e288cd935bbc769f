// Package courtsite provides the resilient HTTP client the ingestion
// pipeline uses against the court listings website. All HTTP error
// classification and retry policy lives here
package courtsite

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	perr "cacdarchive/internal/platform/errors"
	"cacdarchive/internal/platform/logger"
)

const (
	defaultTimeout = 30 * time.Second
	defaultUA      = "cacd-archive-scraper"

	// maxBody caps the page body we are willing to buffer
	maxBody = 8 << 20
)

// backoffSchedule is the fixed retry spacing: base attempt plus up to three
// retries spaced 5s, 10s, 20s apart
var backoffSchedule = []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}

// Options configures the Client
type Options struct {
	UserAgent string
	Timeout   time.Duration
}

// Client fetches listing pages with a per-attempt timeout and a fixed
// retry schedule for transient failures
type Client struct {
	http  *http.Client
	opts  Options
	log   logger.Logger
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// StatusError is returned for non-2xx responses so callers can branch on the
// upstream status without string matching
type StatusError struct {
	Status int
	Body   string
	Err    error
}

// Error implements the error interface
func (e *StatusError) Error() string { return e.Err.Error() }

// Unwrap exposes the wrapped typed error
func (e *StatusError) Unwrap() error { return e.Err }

// NewClient creates a Client with sane defaults
func NewClient(o Options) *Client {
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	return &Client{
		// per-attempt timeouts come from the request context, not the
		// transport, so cancellation stays deterministic
		http:  &http.Client{},
		opts:  o,
		log:   *logger.Named("courtsite"),
		now:   time.Now,
		sleep: sleepCtx,
	}
}

// sleepCtx waits for d or returns early when ctx is done
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Fetch GETs url and returns the body. Transient failures (attempt timeout,
// 5xx) are retried on the fixed schedule; any 4xx is fatal immediately.
// Cancelling ctx aborts the in-flight request and stops the retry loop
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		body, err := c.attempt(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			// outer cancellation, not a per-attempt timeout
			return nil, ctx.Err()
		}
		if !retryable(err) {
			return nil, err
		}
		if attempt >= len(backoffSchedule) {
			return nil, perr.Wrapf(lastErr, perr.ErrorCodeUnavailable,
				"fetch failed after %d attempts", attempt+1)
		}

		back := backoffSchedule[attempt]
		c.log.Warn().
			Str("url", url).
			Int("attempt", attempt+1).
			Dur("retry_in", back).
			Err(err).
			Msg("transient fetch error retrying")
		if err := c.sleep(ctx, back); err != nil {
			return nil, err
		}
	}
}

// attempt issues one GET with its own timeout derived from ctx
func (c *Client) attempt(ctx context.Context, url string) ([]byte, error) {
	actx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodGet, url, nil)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "courtsite new request failed")
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)

	start := c.now()
	resp, err := c.http.Do(req)
	lat := c.now().Sub(start)

	if err != nil {
		if actx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "courtsite request timed out")
		}
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "courtsite request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	c.log.Debug().
		Str("url", url).
		Int("status", resp.StatusCode).
		Dur("latency", lat).
		Msg("courtsite http response")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "courtsite body read failed")
		}
		return body, nil
	}

	return nil, &StatusError{
		Status: resp.StatusCode,
		Body:   readSmall(resp.Body),
		Err:    perr.Newf(mapPerrCode(resp.StatusCode), "courtsite unexpected status %d", resp.StatusCode),
	}
}

// retryable classifies errors per the fetch policy: per-attempt timeouts and
// 5xx retry, everything else is fatal for the step
func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status >= 500
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	// non-status transport errors: only per-attempt timeouts and body-read
	// failures carry Unavailable; DNS, dial and protocol errors do not
	return perr.IsCode(err, perr.ErrorCodeUnavailable)
}

// mapPerrCode maps upstream HTTP status onto platform error codes
func mapPerrCode(status int) perr.ErrorCode {
	switch {
	case status == http.StatusNotFound:
		return perr.ErrorCodeNotFound
	case status == http.StatusTooManyRequests:
		return perr.ErrorCodeTooManyRequests
	case status >= 500:
		return perr.ErrorCodeUnavailable
	case status >= 400:
		return perr.ErrorCodeInvalidArgument
	default:
		return perr.ErrorCodeUnknown
	}
}

// readSmall reads up to the first 2KB of the body for diagnostics
func readSmall(rc io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(rc, 2048))
	s := strings.TrimSpace(string(b))
	return strings.ReplaceAll(s, "\n", " ")
}
