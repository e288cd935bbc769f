// Package discovery locates the daily cause list links on the court
// listings summary page
package discovery

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"cacdarchive/internal/core/causelist"
	perr "cacdarchive/internal/platform/errors"
	"cacdarchive/internal/platform/logger"
	"cacdarchive/internal/services/alerts"
)

// Fetcher is the page fetch seam discovery consumes
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Link is one discovered cause list page
type Link struct {
	URL        string
	Text       string
	TargetDate causelist.ListDate
	Division   causelist.Division
}

// Options configures discovery
type Options struct {
	SummaryURL string
	// BaseURL resolves relative hrefs; defaults to the summary URL origin
	BaseURL string
	// AllowedHosts is the expected set of link hostnames; links outside it
	// are logged, not rejected
	AllowedHosts []string
	Division     causelist.Division
}

// Service finds today's and tomorrow's cause list links
type Service struct {
	fetch Fetcher
	sink  alerts.Sink
	opts  Options
	log   logger.Logger
}

// New constructs a discovery service
func New(fetch Fetcher, sink alerts.Sink, opts Options) *Service {
	if fetch == nil {
		panic("discovery.Service requires a Fetcher")
	}
	if sink == nil {
		sink = alerts.NoopSink{}
	}
	if opts.Division == "" {
		opts.Division = causelist.DivisionCriminal
	}
	if opts.BaseURL == "" {
		opts.BaseURL = opts.SummaryURL
	}
	return &Service{fetch: fetch, sink: sink, opts: opts, log: *logger.Named("discovery")}
}

// Discover fetches the summary page and returns the cause list links for
// today and tomorrow (in that order). An empty result is not an error;
// a fetch failure is reported to the alert sink and propagated
func (s *Service) Discover(ctx context.Context, now time.Time) ([]Link, error) {
	body, err := s.fetch.Fetch(ctx, s.opts.SummaryURL)
	if err != nil {
		_ = s.sink.DataError(ctx, alerts.DataErrorEvent{
			Kind: alerts.KindLinkDiscovery,
			Err:  err,
			URL:  s.opts.SummaryURL,
		})
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "summary page fetch failed")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		_ = s.sink.DataError(ctx, alerts.DataErrorEvent{
			Kind: alerts.KindLinkDiscovery,
			Err:  err,
			URL:  s.opts.SummaryURL,
		})
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "summary page parse failed")
	}

	type anchor struct {
		href string
		text string
	}
	var anchors []anchor
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		anchors = append(anchors, anchor{href: href, text: strings.TrimSpace(sel.Text())})
	})

	base, err := url.Parse(s.opts.BaseURL)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "bad base url %q", s.opts.BaseURL)
	}

	var out []Link
	seen := map[string]bool{}
	for _, target := range []causelist.ListDate{causelist.Today(now), causelist.Tomorrow(now)} {
		for _, a := range anchors {
			if !matchesDate(a.text, s.opts.Division, target) {
				continue
			}
			ref, err := url.Parse(a.href)
			if err != nil {
				s.log.Warn().Str("href", a.href).Msg("unparseable href skipped")
				continue
			}
			resolved := base.ResolveReference(ref)
			if !s.hostAllowed(resolved.Hostname()) {
				s.log.Warn().
					Str("host", resolved.Hostname()).
					Str("url", resolved.String()).
					Msg("cause list link points off the expected host")
			}
			if seen[resolved.String()] {
				break
			}
			seen[resolved.String()] = true
			out = append(out, Link{
				URL:        resolved.String(),
				Text:       a.text,
				TargetDate: target,
				Division:   s.opts.Division,
			})
			break // first matching anchor wins for this date
		}
	}

	s.log.Info().
		Int("links", len(out)).
		Str("division", s.opts.Division.String()).
		Msg("cause list discovery complete")
	return out, nil
}

func (s *Service) hostAllowed(host string) bool {
	if len(s.opts.AllowedHosts) == 0 {
		return true
	}
	for _, h := range s.opts.AllowedHosts {
		if strings.EqualFold(h, host) {
			return true
		}
	}
	return false
}

// matchesDate reports whether the anchor text names the division's cause
// list for the target date. Every test is case-insensitive; day, month, and
// year must appear as whole words
func matchesDate(text string, div causelist.Division, d causelist.ListDate) bool {
	lower := strings.ToLower(text)
	if !strings.Contains(lower, "court of appeal") {
		return false
	}
	if !strings.Contains(lower, strings.ToLower(div.String())) {
		return false
	}

	day := fmt.Sprintf("%d", d.Day)
	dayPadded := fmt.Sprintf("%02d", d.Day)
	if !containsWord(lower, day) && !containsWord(lower, dayPadded) {
		return false
	}

	monthFull := strings.ToLower(d.Month.String())
	monthAbbr := monthFull[:3]
	if !containsWord(lower, monthFull) && !containsWord(lower, monthAbbr) {
		return false
	}

	return containsWord(lower, fmt.Sprintf("%d", d.Year))
}

// containsWord reports whether w occurs in s delimited by non-alphanumerics
func containsWord(s, w string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], w)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(w)
		leftOK := start == 0 || !isWordByte(s[start-1])
		rightOK := end == len(s) || !isWordByte(s[end])
		if leftOK && rightOK {
			return true
		}
		i = start + 1
		if i >= len(s) {
			return false
		}
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
