// Package tableparse turns a cause list HTML page into validated hearing rows
package tableparse

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"cacdarchive/internal/core/causelist"
	perr "cacdarchive/internal/platform/errors"
	"cacdarchive/internal/platform/logger"
	"cacdarchive/internal/services/alerts"
)

// canonical column names, keyed by substring match on lowercased headers
const (
	colVenue       = "venue"
	colJudge       = "judge"
	colTime        = "time"
	colCaseNumber  = "case number"
	colCaseDetails = "case details"
	colHearingType = "hearing type"
	colAdditional  = "additional information"
)

// headerOrder lists the multi-word columns before the one-word ones; a header
// cell takes the first unclaimed column whose name it contains
var headerOrder = []string{
	colAdditional, colCaseDetails, colCaseNumber, colHearingType, colVenue, colJudge, colTime,
}

// inheritable columns repeat the value above them when a cell is empty
var inheritable = map[string]bool{colVenue: true, colJudge: true}

// Input carries everything the parser needs beside the page body
type Input struct {
	ListDate  causelist.ListDate
	SourceURL string
	Division  causelist.Division
	// Now stamps ScrapedAt on produced rows
	Now time.Time
}

// Parser parses cause list tables
type Parser struct {
	sink alerts.Sink
	log  logger.Logger
}

// New constructs a Parser
func New(sink alerts.Sink) *Parser {
	if sink == nil {
		sink = alerts.NoopSink{}
	}
	return &Parser{sink: sink, log: *logger.Named("tableparse")}
}

// Parse extracts validated hearings from the page. A missing critical column
// or a malformed first row is fatal; invalid rows are dropped with a warning.
// On fatal failure a table-parsing report with an HTML sample goes to the sink
func (p *Parser) Parse(ctx context.Context, body []byte, in Input) ([]causelist.Hearing, error) {
	rows, err := p.parse(body, in)
	if err != nil {
		_ = p.sink.DataError(ctx, alerts.DataErrorEvent{
			Kind:       alerts.KindTableParsing,
			Err:        err,
			Date:       in.ListDate.String(),
			URL:        in.SourceURL,
			HTMLSample: alerts.TruncateHTMLSample(string(body)),
		})
		return nil, err
	}
	return rows, nil
}

func (p *Parser) parse(body []byte, in Input) ([]causelist.Hearing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "cause list html unreadable")
	}

	tables := doc.Find("table.govuk-table")
	if tables.Length() == 0 {
		return nil, perr.Newf(perr.ErrorCodeInvalidArgument, "no govuk-table found in cause list page")
	}
	if tables.Length() > 1 {
		p.log.Warn().
			Int("tables", tables.Length()).
			Str("url", in.SourceURL).
			Msg("multiple govuk tables found, using the first")
	}
	table := tables.First()

	colByIndex, present, err := mapHeaders(table)
	if err != nil {
		return nil, err
	}

	var out []causelist.Hearing
	// last non-empty value per inheritable column within this table
	carry := map[string]string{}

	var rowErr error
	table.Find("tbody tr").EachWithBreak(func(rowIdx int, tr *goquery.Selection) bool {
		fields := map[string]string{}
		tr.Find("td").Each(func(cellIdx int, td *goquery.Selection) {
			col, ok := colByIndex[cellIdx]
			if !ok {
				return
			}
			fields[col] = strings.TrimSpace(td.Text())
		})
		if len(fields) == 0 {
			return true // header-only or empty row
		}

		for col := range inheritable {
			if !present[col] {
				continue
			}
			v := fields[col]
			if v == "" {
				prev, ok := carry[col]
				if !ok {
					if rowIdx == 0 {
						rowErr = perr.Newf(perr.ErrorCodeInvalidArgument,
							"first row has empty %s column, table malformed", col)
						return false
					}
					// no prior value mid-table: leave the field empty
					continue
				}
				fields[col] = prev
			} else {
				carry[col] = v
			}
		}

		h, ok := p.buildRow(fields, in, rowIdx)
		if ok {
			out = append(out, h)
		}
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}

	return out, nil
}

// buildRow validates a parsed row and stamps metadata. Invalid rows are
// dropped with a warning rather than failing the table
func (p *Parser) buildRow(fields map[string]string, in Input, rowIdx int) (causelist.Hearing, bool) {
	timeStr := fields[colTime]
	ht, err := causelist.ParseHearingTime(timeStr)
	if err != nil {
		p.log.Warn().
			Int("row", rowIdx).
			Str("time", timeStr).
			Str("url", in.SourceURL).
			Msg("row dropped: unparseable time")
		return causelist.Hearing{}, false
	}

	caseNumber := fields[colCaseNumber]
	if caseNumber == "" {
		p.log.Warn().
			Int("row", rowIdx).
			Str("url", in.SourceURL).
			Msg("row dropped: empty case number")
		return causelist.Hearing{}, false
	}
	if !causelist.CaseNumberLooksValid(caseNumber) {
		p.log.Warn().
			Int("row", rowIdx).
			Str("case_number", caseNumber).
			Msg("case number does not match the usual shape")
	}

	return causelist.Hearing{
		ListDate:        in.ListDate,
		CaseNumber:      caseNumber,
		Time:            ht.String(),
		HearingDateTime: causelist.Combine(in.ListDate, ht),
		Venue:           fields[colVenue],
		Judge:           fields[colJudge],
		CaseDetails:     fields[colCaseDetails],
		HearingType:     fields[colHearingType],
		AdditionalInfo:  fields[colAdditional],
		Division:        in.Division,
		SourceURL:       in.SourceURL,
		ScrapedAt:       in.Now,
	}, true
}

// mapHeaders maps cell positions onto canonical columns by substring match.
// time and case number are required
func mapHeaders(table *goquery.Selection) (map[int]string, map[string]bool, error) {
	out := map[int]string{}
	claimed := map[string]bool{}
	table.Find("thead th, thead td").Each(func(i int, th *goquery.Selection) {
		label := strings.ToLower(strings.TrimSpace(th.Text()))
		for _, col := range headerOrder {
			if claimed[col] {
				continue
			}
			if strings.Contains(label, col) {
				out[i] = col
				claimed[col] = true
				break
			}
		}
	})

	if !claimed[colTime] {
		return nil, nil, perr.Newf(perr.ErrorCodeInvalidArgument, "cause list table is missing the time column")
	}
	if !claimed[colCaseNumber] {
		return nil, nil, perr.Newf(perr.ErrorCodeInvalidArgument, "cause list table is missing the case number column")
	}
	return out, claimed, nil
}
