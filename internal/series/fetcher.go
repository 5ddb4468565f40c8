// Package series downloads a resolved catalog resource and turns it into a
// normalized series. Row-level problems are absorbed here: rows that fail
// period or numeric parsing are dropped, never surfaced.
package series

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"sgmacro/internal/model"
	"sgmacro/internal/period"
)

var ErrFetchFailed = errors.New("series: fetch failed")

const defaultTimeout = 30 * time.Second

type Fetcher struct {
	client *http.Client
}

func New(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

func NewWithClient(client *http.Client) *Fetcher {
	return &Fetcher{client: client}
}

// Fetch downloads the resource and produces the normalized series for the
// intent. Zero surviving rows is not a failure; the caller decides what an
// empty series means for status purposes.
func (f *Fetcher) Fetch(ctx context.Context, intent model.SeriesIntent, pkg model.CatalogPackage, resource model.Resource) (model.NormalizedSeries, error) {
	out := model.NormalizedSeries{
		DisplayName: intent.DisplayName,
		Frequency:   intent.Frequency,
		Unit:        intent.Unit,
		Source: model.SourceRef{
			Name:         "data.gov.sg",
			DatasetTitle: pkg.Title,
			ResourceURL:  resource.URL,
		},
		Data: []model.Point{},
	}

	body, err := f.download(ctx, resource.URL)
	if err != nil {
		return out, err
	}

	headers, rows, err := parseTable(body)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	rows = applyFilters(headers, rows, intent.Filters)

	dateColumn, err := period.SelectDateColumn(headers, intent.PreferredDateColumns)
	if err != nil {
		return out, fmt.Errorf("%w: no date column in %q", ErrFetchFailed, resource.URL)
	}
	valueColumn, err := period.SelectValueColumn(headers, rows, intent.PreferredValueColumns, dateColumn)
	if err != nil {
		return out, fmt.Errorf("%w: no value column in %q", ErrFetchFailed, resource.URL)
	}

	dateIndex := columnIndex(headers, dateColumn)
	valueIndex := columnIndex(headers, valueColumn)

	out.Data = normalizeRows(rows, dateIndex, valueIndex, intent.Frequency)
	if len(out.Data) > 0 {
		last := out.Data[len(out.Data)-1].Period
		out.LastObservationPeriod = &last
	}
	return out, nil
}

func (f *Fetcher) download(ctx context.Context, resourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: download failed (%s)", ErrFetchFailed, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body from %q", ErrFetchFailed, resourceURL)
	}
	return body, nil
}

// parseTable parses delimited tabular data with a header row. The delimiter
// is sniffed from the header line; comma is the default.
func parseTable(body []byte) ([]string, [][]string, error) {
	reader := csv.NewReader(strings.NewReader(string(body)))
	reader.Comma = detectDelimiter(body)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, errors.New("no rows")
	}

	headers := make([]string, len(records[0]))
	for i, header := range records[0] {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(header, "\ufeff"))
	}
	return headers, records[1:], nil
}

func detectDelimiter(body []byte) rune {
	line := string(body)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	best := ','
	bestCount := strings.Count(line, ",")
	for _, delim := range []rune{';', '\t'} {
		if count := strings.Count(line, string(delim)); count > bestCount {
			best = delim
			bestCount = count
		}
	}
	return best
}

// applyFilters keeps only rows whose hinted column matches the configured
// pattern. Hints that match no column and patterns that fail to compile are
// skipped rather than treated as errors.
func applyFilters(headers []string, rows [][]string, filters map[string]string) [][]string {
	if len(filters) == 0 {
		return rows
	}

	hints := make([]string, 0, len(filters))
	for hint := range filters {
		hints = append(hints, hint)
	}
	sort.Strings(hints)

	for _, hint := range hints {
		column, err := period.SelectColumn(headers, []string{hint})
		if err != nil {
			continue
		}
		pattern, err := regexp.Compile("(?i)" + filters[hint])
		if err != nil {
			continue
		}
		index := columnIndex(headers, column)

		kept := rows[:0]
		for _, row := range rows {
			if index < len(row) && pattern.MatchString(row[index]) {
				kept = append(kept, row)
			}
		}
		rows = kept
	}
	return rows
}

// normalizeRows drops unparseable rows, deduplicates by period keeping the
// last occurrence in original row order, and sorts ascending by period.
func normalizeRows(rows [][]string, dateIndex, valueIndex int, freq model.Frequency) []model.Point {
	latest := make(map[string]float64)
	for _, row := range rows {
		if dateIndex >= len(row) || valueIndex >= len(row) {
			continue
		}
		key, err := period.NormalizePeriod(row[dateIndex], freq)
		if err != nil {
			continue
		}
		value, ok := period.ParseNumeric(row[valueIndex])
		if !ok {
			continue
		}
		latest[key] = value
	}

	periods := make([]string, 0, len(latest))
	for key := range latest {
		periods = append(periods, key)
	}
	sort.Strings(periods)

	points := make([]model.Point, 0, len(periods))
	for _, key := range periods {
		points = append(points, model.Point{Period: key, Value: latest[key]})
	}
	return points
}

func columnIndex(headers []string, column string) int {
	for i, header := range headers {
		if header == column {
			return i
		}
	}
	return -1
}
