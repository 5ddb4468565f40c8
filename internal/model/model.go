package model

import "time"

type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyMonthly, FrequencyQuarterly:
		return true
	default:
		return false
	}
}

// SeriesIntent is an author-declared description of a desired dataset. It
// carries no catalog identifiers; resolution happens fresh on every run.
type SeriesIntent struct {
	ID                    string            `yaml:"id"`
	DisplayName           string            `yaml:"display_name"`
	Frequency             Frequency         `yaml:"frequency"`
	Unit                  string            `yaml:"unit"`
	Source                string            `yaml:"source"`
	CandidateQueries      []string          `yaml:"candidate_queries"`
	PreferredDateColumns  []string          `yaml:"preferred_date_columns"`
	PreferredValueColumns []string          `yaml:"preferred_value_columns"`
	Filters               map[string]string `yaml:"filters,omitempty"`
}

type Resource struct {
	URL    string
	Format string
}

type CatalogPackage struct {
	Title        string
	Agency       string
	LastModified time.Time
	Resources    []Resource
}

type Point struct {
	Period string  `json:"period"`
	Value  float64 `json:"value"`
}

type SourceRef struct {
	Name         string `json:"name"`
	DatasetTitle string `json:"dataset_title"`
	ResourceURL  string `json:"resource_url"`
}

// NormalizedSeries is the per-intent output. Data is strictly ascending by
// period and deduplicated (last write wins); rows that failed period or
// numeric parsing were dropped before construction.
type NormalizedSeries struct {
	DisplayName           string    `json:"display_name"`
	Frequency             Frequency `json:"frequency"`
	Unit                  string    `json:"unit,omitempty"`
	Source                SourceRef `json:"source"`
	LastObservationPeriod *string   `json:"last_observation_period"`
	Data                  []Point   `json:"data"`
	Note                  string    `json:"note,omitempty"`
}

type SeriesStatus struct {
	OK         bool    `json:"ok"`
	LastPeriod *string `json:"last_period"`
	Error      string  `json:"error"`
}

type SourceStatus struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type Meta struct {
	GeneratedUTC string            `json:"generated_utc"`
	Sources      map[string]string `json:"sources"`
	Notes        []string          `json:"notes"`
}

// MacroDocument is the macro.json payload consumed by the dashboard.
type MacroDocument struct {
	Meta   Meta                        `json:"meta"`
	Series map[string]NormalizedSeries `json:"series"`
}

// StatusDocument is the status.json payload consumed by the dashboard.
type StatusDocument struct {
	LastRunUTC   string                  `json:"last_run_utc"`
	OK           bool                    `json:"ok"`
	SeriesStatus map[string]SeriesStatus `json:"series_status"`
	SourceStatus map[string]SourceStatus `json:"source_status"`
	Errors       []string                `json:"errors"`
}
