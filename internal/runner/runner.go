// Package runner drives the per-intent resolve and fetch pipeline and
// assembles the two output documents. The run is best-effort: a failure in
// one series or source is recorded and the run continues; only an inability
// to write the output documents is fatal to the process.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sgmacro/internal/catalog"
	"sgmacro/internal/derive"
	"sgmacro/internal/logger"
	"sgmacro/internal/model"
	"sgmacro/internal/store"
)

const (
	errorLimit      = 220
	maxRunErrors    = 20
	timestampLayout = "2006-01-02T15:04:05Z"
)

var runNotes = []string{
	"Series are resolved dynamically from data.gov.sg using keyword queries.",
	"Missing datasets are tolerated; series remain present with empty data arrays.",
}

// Resolver matches an intent to a catalog package and resource.
type Resolver interface {
	Resolve(ctx context.Context, intent model.SeriesIntent) (model.CatalogPackage, model.Resource, error)
}

// Fetcher downloads and normalizes the resolved resource.
type Fetcher interface {
	Fetch(ctx context.Context, intent model.SeriesIntent, pkg model.CatalogPackage, resource model.Resource) (model.NormalizedSeries, error)
}

type Runner struct {
	resolver       Resolver
	fetcher        Fetcher
	archive        store.Store
	log            *logger.Logger
	searchEndpoint string
	now            func() time.Time
}

func New(resolver Resolver, fetcher Fetcher, archive store.Store, log *logger.Logger, searchEndpoint string) *Runner {
	if archive == nil {
		archive = &store.NopStore{}
	}
	if log == nil {
		log = logger.New("info")
	}
	return &Runner{
		resolver:       resolver,
		fetcher:        fetcher,
		archive:        archive,
		log:            log,
		searchEndpoint: searchEndpoint,
		now:            time.Now,
	}
}

// Run processes every intent in declared order and returns both documents.
// Every intent id ends up with exactly one entry in series and series_status
// regardless of success.
func (r *Runner) Run(ctx context.Context, intents []model.SeriesIntent) (model.MacroDocument, model.StatusDocument) {
	now := r.now().UTC().Format(timestampLayout)

	seriesMap := make(map[string]model.NormalizedSeries, len(intents))
	seriesStatus := make(map[string]model.SeriesStatus, len(intents))
	sourceStatus := make(map[string]model.SourceStatus)
	orderedIDs := make([]string, 0, len(intents))

	for _, it := range intents {
		if _, ok := sourceStatus[it.Source]; !ok && it.Source != "" {
			sourceStatus[it.Source] = model.SourceStatus{OK: true}
		}
	}

	var archived []store.Observation
	for _, it := range intents {
		orderedIDs = append(orderedIDs, it.ID)
		result, status := r.processIntent(ctx, it, sourceStatus)
		seriesMap[it.ID] = result
		seriesStatus[it.ID] = status

		if status.OK {
			for _, point := range result.Data {
				archived = append(archived, store.Observation{
					SeriesID:  it.ID,
					Frequency: string(it.Frequency),
					Period:    point.Period,
					Value:     point.Value,
				})
			}
		}
	}

	orderedIDs = append(orderedIDs, r.applyDerived(seriesMap, seriesStatus)...)

	if len(archived) > 0 {
		if err := r.archive.UpsertObservations(ctx, archived); err != nil {
			r.log.Warn("observation archive failed", "error", err)
		}
	}

	macro := model.MacroDocument{
		Meta: model.Meta{
			GeneratedUTC: now,
			Sources:      map[string]string{"data_gov_sg": r.searchEndpoint},
			Notes:        runNotes,
		},
		Series: seriesMap,
	}

	ok := true
	for _, status := range sourceStatus {
		if !status.OK {
			ok = false
		}
	}
	runErrors := make([]string, 0)
	for _, id := range orderedIDs {
		status := seriesStatus[id]
		if !status.OK {
			ok = false
		}
		if status.Error != "" && len(runErrors) < maxRunErrors {
			runErrors = append(runErrors, status.Error)
		}
	}

	status := model.StatusDocument{
		LastRunUTC:   now,
		OK:           ok,
		SeriesStatus: seriesStatus,
		SourceStatus: sourceStatus,
		Errors:       runErrors,
	}
	return macro, status
}

func (r *Runner) processIntent(ctx context.Context, it model.SeriesIntent, sourceStatus map[string]model.SourceStatus) (model.NormalizedSeries, model.SeriesStatus) {
	log := r.log.With("series", it.ID)

	pkg, resource, err := r.resolver.Resolve(ctx, it)
	if err != nil {
		if errors.Is(err, catalog.ErrSourceUnavailable) {
			markSourceDown(sourceStatus, it.Source, err)
		}
		log.Warn("resolution failed", "error", err)
		return emptySeries(it, "No matching CSV dataset resource found"),
			failedStatus(truncateError(resolutionMessage(err)))
	}
	log.Debug("resolved dataset", "title", pkg.Title, "resource", resource.URL)

	result, err := r.fetcher.Fetch(ctx, it, pkg, resource)
	if err != nil {
		log.Warn("fetch failed", "error", err)
		return emptySeries(it, "Fetch failed"), failedStatus(truncateError(err.Error()))
	}

	if len(result.Data) == 0 {
		log.Warn("resolved dataset has no parseable data points", "title", pkg.Title)
		result.Note = "Resolved dataset but no parseable data points"
		return result, failedStatus("No parseable data points")
	}

	log.Info("series fetched", "points", len(result.Data), "last_period", result.Data[len(result.Data)-1].Period)
	return result, model.SeriesStatus{OK: true, LastPeriod: result.LastObservationPeriod}
}

// applyDerived registers the derived series over whatever raw series
// succeeded. Missing inputs silently produce no derived output.
func (r *Runner) applyDerived(seriesMap map[string]model.NormalizedSeries, seriesStatus map[string]model.SeriesStatus) []string {
	added := make([]string, 0, 3)

	if slope := derive.CurveSlope(seriesMap); slope != nil {
		seriesMap["yield_curve_slope"] = *slope
		seriesStatus["yield_curve_slope"] = model.SeriesStatus{OK: true, LastPeriod: slope.LastObservationPeriod}
		added = append(added, "yield_curve_slope")
	}

	for _, pair := range [][2]string{
		{"private_resi_transactions", "private_resi_transactions_ma3"},
		{"dev_sales_uncompleted_sold", "dev_sales_uncompleted_sold_ma3"},
	} {
		source, ok := seriesMap[pair[0]]
		if !ok {
			continue
		}
		if derived := derive.MovingAverage(source, 3); derived != nil {
			seriesMap[pair[1]] = *derived
			seriesStatus[pair[1]] = model.SeriesStatus{OK: true, LastPeriod: derived.LastObservationPeriod}
			added = append(added, pair[1])
		}
	}
	return added
}

// WriteDocuments writes both output files. This is the only failure that
// should take the process down.
func WriteDocuments(macroPath, statusPath string, macro model.MacroDocument, status model.StatusDocument) error {
	if err := writeJSON(macroPath, macro); err != nil {
		return fmt.Errorf("write %s: %w", macroPath, err)
	}
	if err := writeJSON(statusPath, status); err != nil {
		return fmt.Errorf("write %s: %w", statusPath, err)
	}
	return nil
}

func writeJSON(path string, value any) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func emptySeries(it model.SeriesIntent, note string) model.NormalizedSeries {
	return model.NormalizedSeries{
		DisplayName: it.DisplayName,
		Frequency:   it.Frequency,
		Unit:        it.Unit,
		Source:      model.SourceRef{Name: "unavailable"},
		Data:        []model.Point{},
		Note:        note,
	}
}

func failedStatus(message string) model.SeriesStatus {
	return model.SeriesStatus{OK: false, Error: message}
}

func markSourceDown(sourceStatus map[string]model.SourceStatus, tag string, err error) {
	if tag == "" {
		tag = "data_gov_sg"
	}
	sourceStatus[tag] = model.SourceStatus{OK: false, Error: truncateError(err.Error())}
}

func resolutionMessage(err error) string {
	if errors.Is(err, catalog.ErrSourceUnavailable) {
		return err.Error()
	}
	return "No dataset match"
}

func truncateError(text string) string {
	if len(text) <= errorLimit {
		return text
	}
	return text[:errorLimit] + "..."
}
