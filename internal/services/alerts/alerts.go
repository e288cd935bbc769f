// Package alerts defines the email sink contract the pipeline and the
// notification matcher dispatch into. Delivery mechanics live behind the
// Sink seam; failures to dispatch are logged by callers and never fail a run
package alerts

import (
	"context"
	"time"

	"cacdarchive/internal/platform/logger"
)

// DataErrorKind labels the pipeline stage that produced an error report
type DataErrorKind string

// Data error kinds reported by the ingestion pipeline
const (
	KindLinkDiscovery DataErrorKind = "link-discovery"
	KindTableParsing  DataErrorKind = "table-parsing"
)

// maxHTMLSample bounds the HTML excerpt attached to parse error reports
const maxHTMLSample = 2 << 10

// DataErrorEvent describes a scrape-time failure worth a human look
type DataErrorEvent struct {
	Kind       DataErrorKind
	Err        error
	Date       string
	URL        string
	HTMLSample string
	Context    string
}

// DigestMatch is one hearing inside a saved search digest
type DigestMatch struct {
	CaseName      string
	DateFormatted string
	Time          string
	Venue         string
	HearingType   string
	Judge         string
}

// DigestSearch is one saved search section inside a digest
type DigestSearch struct {
	Text    string
	Matches []DigestMatch
}

// DigestEvent is the per-user saved search digest
type DigestEvent struct {
	UserEmail string
	UserName  string
	Searches  []DigestSearch
	BaseURL   string
}

// Sink receives pipeline error reports and saved search digests
type Sink interface {
	DataError(ctx context.Context, ev DataErrorEvent) error
	SavedSearchDigest(ctx context.Context, ev DigestEvent) error
}

// TruncateHTMLSample clips a page sample to the size we are willing to mail
func TruncateHTMLSample(s string) string {
	if len(s) > maxHTMLSample {
		return s[:maxHTMLSample]
	}
	return s
}

// LogSink writes every event to the structured log. It is the default sink
// when no mail transport is configured
type LogSink struct {
	log logger.Logger
}

// NewLogSink constructs a LogSink
func NewLogSink() *LogSink {
	return &LogSink{log: *logger.Named("alerts")}
}

// DataError logs the error report
func (s *LogSink) DataError(ctx context.Context, ev DataErrorEvent) error {
	s.log.Error().
		Str("kind", string(ev.Kind)).
		Str("date", ev.Date).
		Str("url", ev.URL).
		Str("context", ev.Context).
		Int("html_sample_len", len(ev.HTMLSample)).
		Err(ev.Err).
		Msg("scrape data error")
	return nil
}

// SavedSearchDigest logs the digest headline
func (s *LogSink) SavedSearchDigest(ctx context.Context, ev DigestEvent) error {
	total := 0
	for _, sr := range ev.Searches {
		total += len(sr.Matches)
	}
	s.log.Info().
		Str("user", ev.UserEmail).
		Int("searches", len(ev.Searches)).
		Int("matches", total).
		Msg("saved search digest dispatched")
	return nil
}

// NoopSink drops every event. Useful in tests and one-shot CLI runs
type NoopSink struct{}

// DataError discards the event
func (NoopSink) DataError(context.Context, DataErrorEvent) error { return nil }

// SavedSearchDigest discards the event
func (NoopSink) SavedSearchDigest(context.Context, DigestEvent) error { return nil }

// Recorder captures events for assertions in tests
type Recorder struct {
	DataErrors []DataErrorEvent
	Digests    []DigestEvent
	FailWith   error
	// stamps let tests observe dispatch ordering
	LastAt time.Time
}

// DataError records the event
func (r *Recorder) DataError(_ context.Context, ev DataErrorEvent) error {
	r.DataErrors = append(r.DataErrors, ev)
	r.LastAt = time.Now()
	return r.FailWith
}

// SavedSearchDigest records the event
func (r *Recorder) SavedSearchDigest(_ context.Context, ev DigestEvent) error {
	r.Digests = append(r.Digests, ev)
	r.LastAt = time.Now()
	return r.FailWith
}
