// Package period converts raw source spellings into canonical period strings
// and numeric values. Daily and monthly periods normalize to YYYY-MM-DD,
// quarterly periods to YYYY-Q#.
package period

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"sgmacro/internal/model"
)

var ErrUnparseablePeriod = errors.New("period: unparseable period")
var ErrColumnNotFound = errors.New("period: no matching column")

var (
	yearQuarterPattern    = regexp.MustCompile(`(?i)(\d{4})[^0-9]*Q([1-4])`)
	quarterYearPattern    = regexp.MustCompile(`(?i)Q([1-4])[^0-9]*(\d{4})`)
	yearAltQuarterPattern = regexp.MustCompile(`(?i)(\d{4})[^0-9]*([1-4])Q`)
	bareYearPattern       = regexp.MustCompile(`\b(\d{4})\b`)
)

var dateLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-1-2",
	"2006/01/02",
	"2006/1/2",
	"02 Jan 2006",
	"2 Jan 2006",
	"Jan 2006",
	"January 2006",
	"2006-01",
	"2006/01",
	"200601",
	"2006",
}

// NormalizePeriod maps a raw cell value to the canonical period string for
// the given frequency. Matchers run in priority order; the first hit wins.
// Unparseable input fails with ErrUnparseablePeriod so the caller can drop
// the row without aborting the series.
func NormalizePeriod(raw string, freq model.Frequency) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty value", ErrUnparseablePeriod)
	}

	if match := yearQuarterPattern.FindStringSubmatch(trimmed); match != nil {
		return match[1] + "-Q" + match[2], nil
	}
	if match := quarterYearPattern.FindStringSubmatch(trimmed); match != nil {
		return match[2] + "-Q" + match[1], nil
	}
	if match := yearAltQuarterPattern.FindStringSubmatch(trimmed); match != nil {
		return match[1] + "-Q" + match[2], nil
	}

	if when, ok := parseDate(trimmed); ok {
		return formatPeriod(when, freq), nil
	}
	if when, ok := parseExcelSerial(trimmed); ok {
		return formatPeriod(when, freq), nil
	}

	if freq == model.FrequencyQuarterly {
		if match := bareYearPattern.FindStringSubmatch(trimmed); match != nil {
			return match[1] + "-Q1", nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnparseablePeriod, trimmed)
}

func formatPeriod(when time.Time, freq model.Frequency) string {
	switch freq {
	case model.FrequencyQuarterly:
		quarter := (int(when.Month())-1)/3 + 1
		return fmt.Sprintf("%04d-Q%d", when.Year(), quarter)
	case model.FrequencyMonthly:
		return fmt.Sprintf("%04d-%02d-01", when.Year(), int(when.Month()))
	default:
		return when.Format("2006-01-02")
	}
}

func parseDate(value string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		when, err := time.Parse(layout, value)
		if err == nil {
			return when, true
		}
	}
	return time.Time{}, false
}

// parseExcelSerial recognizes spreadsheet day serials (epoch 1899-12-30).
// The accepted range covers roughly 1954 through 2078, which keeps four
// digit years and yyyymm spellings out of reach of this matcher.
func parseExcelSerial(value string) (time.Time, bool) {
	serial, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return time.Time{}, false
	}
	if serial < 20000 || serial > 65000 {
		return time.Time{}, false
	}
	epoch := time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)
	return epoch.AddDate(0, 0, int(serial)), true
}

var notAvailableTokens = map[string]struct{}{
	"":     {},
	"-":    {},
	"—":    {},
	"–":    {},
	"na":   {},
	"n/a":  {},
	"n.a.": {},
	"nil":  {},
	"null": {},
}

// ParseNumeric parses a raw cell value, stripping thousands separators and
// currency or percent symbols. Not-available tokens and anything else
// unparseable report ok=false rather than an error; the caller drops the row.
func ParseNumeric(raw string) (float64, bool) {
	trimmed := strings.TrimSpace(raw)
	if _, ok := notAvailableTokens[strings.ToLower(trimmed)]; ok {
		return 0, false
	}

	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ',', '$', '%', ' ', ' ':
			return -1
		default:
			return r
		}
	}, trimmed)
	cleaned = strings.TrimPrefix(strings.TrimPrefix(cleaned, "S"), "s")

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// SelectColumn picks the first header matching one of the preferred names:
// exact case-insensitive match first, then substring containment, in
// preference order.
func SelectColumn(headers, preferred []string) (string, error) {
	for _, want := range preferred {
		needle := strings.ToLower(strings.TrimSpace(want))
		if needle == "" {
			continue
		}
		for _, header := range headers {
			if strings.ToLower(strings.TrimSpace(header)) == needle {
				return header, nil
			}
		}
		for _, header := range headers {
			if strings.Contains(strings.ToLower(strings.TrimSpace(header)), needle) {
				return header, nil
			}
		}
	}
	return "", ErrColumnNotFound
}

var dateHeuristics = []string{"date", "month", "quarter", "period", "year", "time"}

// SelectDateColumn tries the intent's preferred names, then the generic
// date-ish heuristics.
func SelectDateColumn(headers, preferred []string) (string, error) {
	if column, err := SelectColumn(headers, preferred); err == nil {
		return column, nil
	}
	return SelectColumn(headers, dateHeuristics)
}

// SelectValueColumn tries the intent's preferred names, then falls back to
// the column with the most numeric cells in the sampled rows. The exclude
// argument keeps the already-chosen date column out of the fallback.
func SelectValueColumn(headers []string, rows [][]string, preferred []string, exclude string) (string, error) {
	if column, err := SelectColumn(headers, preferred); err == nil && column != exclude {
		return column, nil
	}

	bestIndex := -1
	bestCount := 0
	for i := range headers {
		if headers[i] == exclude {
			continue
		}
		count := 0
		for _, row := range rows {
			if i >= len(row) {
				continue
			}
			if _, ok := ParseNumeric(row[i]); ok {
				count++
			}
		}
		if count > bestCount {
			bestIndex = i
			bestCount = count
		}
	}
	if bestIndex == -1 {
		return "", ErrColumnNotFound
	}
	return headers[bestIndex], nil
}
