// Package intent declares the series intents the pipeline resolves each run.
// A built-in Singapore macro set ships with the binary; an optional YAML file
// replaces it for ad-hoc runs.
package intent

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"sgmacro/internal/model"
)

// Validation errors.
var (
	ErrNoIntents        = errors.New("at least one series intent is required")
	ErrMissingID        = errors.New("intent id is required")
	ErrDuplicateID      = errors.New("intent id must be unique")
	ErrMissingName      = errors.New("display_name is required")
	ErrInvalidFrequency = errors.New("frequency must be one of: daily, monthly, quarterly")
	ErrNoQueries        = errors.New("at least one candidate query is required")
)

// File is the YAML document shape for an intents override file.
type File struct {
	Series []model.SeriesIntent `yaml:"series"`
}

// Load reads and validates an intents file.
func Load(path string) ([]model.SeriesIntent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read intents file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := Validate(file.Series); err != nil {
		return nil, fmt.Errorf("intents validation failed: %w", err)
	}
	return file.Series, nil
}

// Validate checks structural requirements on a set of intents.
func Validate(intents []model.SeriesIntent) error {
	if len(intents) == 0 {
		return ErrNoIntents
	}

	seen := make(map[string]struct{}, len(intents))
	for i, it := range intents {
		if it.ID == "" {
			return fmt.Errorf("%w: series[%d]", ErrMissingID, i)
		}
		if _, dup := seen[it.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateID, it.ID)
		}
		seen[it.ID] = struct{}{}

		if it.DisplayName == "" {
			return fmt.Errorf("%w: series[%d]", ErrMissingName, i)
		}
		if !it.Frequency.Valid() {
			return fmt.Errorf("%w: series[%d] has %q", ErrInvalidFrequency, i, it.Frequency)
		}
		if len(it.CandidateQueries) == 0 {
			return fmt.Errorf("%w: series[%d]", ErrNoQueries, i)
		}
	}
	return nil
}

// Defaults returns the built-in Singapore macro intent set, in run order.
func Defaults() []model.SeriesIntent {
	return []model.SeriesIntent{
		{
			ID:                    "sora_level",
			DisplayName:           "SORA Level",
			Frequency:             model.FrequencyDaily,
			Unit:                  "%",
			Source:                "data_gov_sg",
			CandidateQueries:      []string{"SORA", "Singapore Overnight Rate Average", "interbank rate singapore"},
			PreferredDateColumns:  []string{"date", "month", "period", "end_of_month"},
			PreferredValueColumns: []string{"sora", "rate", "interest rate", "value"},
		},
		{
			ID:                    "sgs_yield_2y",
			DisplayName:           "SGS Yield 2Y",
			Frequency:             model.FrequencyDaily,
			Unit:                  "%",
			Source:                "data_gov_sg",
			CandidateQueries:      []string{"SGS yield 2-year", "Singapore government securities yield", "MAS SGS yield"},
			PreferredDateColumns:  []string{"date", "month", "period"},
			PreferredValueColumns: []string{"2-year", "2 year", "2y", "yield_2y", "value"},
		},
		{
			ID:                    "sgs_yield_10y",
			DisplayName:           "SGS Yield 10Y",
			Frequency:             model.FrequencyDaily,
			Unit:                  "%",
			Source:                "data_gov_sg",
			CandidateQueries:      []string{"SGS yield 10-year", "Singapore government bond yield 10y", "MAS SGS yield"},
			PreferredDateColumns:  []string{"date", "month", "period"},
			PreferredValueColumns: []string{"10-year", "10 year", "10y", "yield_10y", "value"},
		},
		{
			ID:                    "sgs_yield_1y",
			DisplayName:           "T-bill / SGS Yield 1Y",
			Frequency:             model.FrequencyDaily,
			Unit:                  "%",
			Source:                "data_gov_sg",
			CandidateQueries:      []string{"SGS yield 1-year", "T-bill yield singapore", "MAS treasury bill"},
			PreferredDateColumns:  []string{"date", "month", "period"},
			PreferredValueColumns: []string{"1-year", "1 year", "1y", "yield_1y", "value"},
		},
		{
			ID:                    "private_resi_price_index",
			DisplayName:           "Private Residential Property Price Index",
			Frequency:             model.FrequencyQuarterly,
			Unit:                  "index",
			Source:                "data_gov_sg",
			CandidateQueries:      []string{"private residential property price index singapore", "URA private residential price index"},
			PreferredDateColumns:  []string{"quarter", "period", "date", "financial_quarter"},
			PreferredValueColumns: []string{"index", "price index", "residential property price", "value"},
		},
		{
			ID:                    "private_resi_rental_index",
			DisplayName:           "Private Residential Rental Index",
			Frequency:             model.FrequencyQuarterly,
			Unit:                  "index",
			Source:                "data_gov_sg",
			CandidateQueries:      []string{"private residential rental index singapore", "URA rental index private"},
			PreferredDateColumns:  []string{"quarter", "period", "date"},
			PreferredValueColumns: []string{"index", "rental index", "value"},
		},
		{
			ID:                    "private_resi_transactions",
			DisplayName:           "Private Residential Transactions",
			Frequency:             model.FrequencyQuarterly,
			Unit:                  "transactions",
			Source:                "data_gov_sg",
			CandidateQueries:      []string{"private residential transactions singapore", "URA private residential sales transactions"},
			PreferredDateColumns:  []string{"quarter", "period", "date"},
			PreferredValueColumns: []string{"transactions", "no. of transactions", "volume", "value"},
		},
		{
			ID:                    "dev_sales_uncompleted_sold",
			DisplayName:           "Uncompleted Private Residential Units Sold by Developers",
			Frequency:             model.FrequencyQuarterly,
			Unit:                  "units",
			Source:                "data_gov_sg",
			CandidateQueries:      []string{"uncompleted private residential units sold developers", "developers sales uncompleted units singapore"},
			PreferredDateColumns:  []string{"quarter", "period", "date"},
			PreferredValueColumns: []string{"uncompleted", "units sold", "sold", "value"},
		},
		{
			ID:                    "dev_sales_completed_sold",
			DisplayName:           "Completed Private Residential Units Sold by Developers",
			Frequency:             model.FrequencyQuarterly,
			Unit:                  "units",
			Source:                "data_gov_sg",
			CandidateQueries:      []string{"completed private residential units sold developers", "developers sales completed units singapore"},
			PreferredDateColumns:  []string{"quarter", "period", "date"},
			PreferredValueColumns: []string{"completed", "units sold", "sold", "value"},
		},
		{
			ID:                    "supply_starts",
			DisplayName:           "Private Residential Units Started",
			Frequency:             model.FrequencyQuarterly,
			Unit:                  "units",
			Source:                "data_gov_sg",
			CandidateQueries:      []string{"private residential units started singapore", "housing starts private residential singapore"},
			PreferredDateColumns:  []string{"quarter", "period", "date", "year"},
			PreferredValueColumns: []string{"starts", "units started", "value"},
		},
		{
			ID:                    "supply_completions",
			DisplayName:           "Private Residential Units Completed",
			Frequency:             model.FrequencyQuarterly,
			Unit:                  "units",
			Source:                "data_gov_sg",
			CandidateQueries:      []string{"private residential units completed singapore", "housing completions private residential singapore"},
			PreferredDateColumns:  []string{"quarter", "period", "date", "year"},
			PreferredValueColumns: []string{"completions", "units completed", "value"},
		},
		{
			ID:                    "supply_under_construction",
			DisplayName:           "Private Residential Units Under Construction",
			Frequency:             model.FrequencyQuarterly,
			Unit:                  "units",
			Source:                "data_gov_sg",
			CandidateQueries:      []string{"private residential units under construction singapore", "private housing under construction singapore"},
			PreferredDateColumns:  []string{"quarter", "period", "date", "year"},
			PreferredValueColumns: []string{"under construction", "units", "value"},
		},
		{
			ID:                    "supply_available_vacant",
			DisplayName:           "Available-Vacant Private Residential Units",
			Frequency:             model.FrequencyQuarterly,
			Unit:                  "units",
			Source:                "data_gov_sg",
			CandidateQueries:      []string{"available vacant private residential units singapore", "vacant private housing stock singapore"},
			PreferredDateColumns:  []string{"quarter", "period", "date", "year"},
			PreferredValueColumns: []string{"available-vacant", "vacant", "available", "value"},
		},
		{
			ID:                    "construction_material_prices",
			DisplayName:           "Construction Material Market Prices",
			Frequency:             model.FrequencyMonthly,
			Unit:                  "index_or_price",
			Source:                "data_gov_sg",
			CandidateQueries:      []string{"Construction Material Market Prices", "BCA construction material prices singapore", "construction materials market prices monthly"},
			PreferredDateColumns:  []string{"month", "date", "period"},
			PreferredValueColumns: []string{"price", "index", "value", "average"},
		},
	}
}
