package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"sgmacro/internal/catalog"
	"sgmacro/internal/model"
	"sgmacro/internal/series"
)

type fakeResolver struct {
	failWith map[string]error
}

func (f *fakeResolver) Resolve(ctx context.Context, intent model.SeriesIntent) (model.CatalogPackage, model.Resource, error) {
	_ = ctx
	if err, ok := f.failWith[intent.ID]; ok {
		return model.CatalogPackage{}, model.Resource{}, err
	}
	pkg := model.CatalogPackage{Title: "Dataset for " + intent.ID}
	resource := model.Resource{URL: "https://example.com/" + intent.ID + ".csv", Format: "CSV"}
	return pkg, resource, nil
}

type fakeFetcher struct {
	data     map[string][]model.Point
	failWith map[string]error
}

func (f *fakeFetcher) Fetch(ctx context.Context, intent model.SeriesIntent, pkg model.CatalogPackage, resource model.Resource) (model.NormalizedSeries, error) {
	_ = ctx
	out := model.NormalizedSeries{
		DisplayName: intent.DisplayName,
		Frequency:   intent.Frequency,
		Unit:        intent.Unit,
		Source:      model.SourceRef{Name: "data.gov.sg", DatasetTitle: pkg.Title, ResourceURL: resource.URL},
		Data:        []model.Point{},
	}
	if err, ok := f.failWith[intent.ID]; ok {
		return out, err
	}
	points := f.data[intent.ID]
	out.Data = append(out.Data, points...)
	if len(out.Data) > 0 {
		last := out.Data[len(out.Data)-1].Period
		out.LastObservationPeriod = &last
	}
	return out, nil
}

func dailyIntent(id string) model.SeriesIntent {
	return model.SeriesIntent{
		ID:               id,
		DisplayName:      id,
		Frequency:        model.FrequencyDaily,
		Unit:             "%",
		Source:           "data_gov_sg",
		CandidateQueries: []string{id},
	}
}

func TestRunIsolatesSingleSeriesFailure(t *testing.T) {
	intents := []model.SeriesIntent{
		dailyIntent("sora_level"),
		dailyIntent("sgs_yield_10y"),
	}

	fetchErr := fmt.Errorf("%w: timeout", series.ErrFetchFailed)
	r := New(
		&fakeResolver{},
		&fakeFetcher{
			failWith: map[string]error{"sora_level": fetchErr},
			data: map[string][]model.Point{
				"sgs_yield_10y": {{Period: "2024-01-02", Value: 3.0}},
			},
		},
		nil, nil, "https://data.gov.sg/api/action/package_search",
	)

	macro, status := r.Run(context.Background(), intents)

	soraStatus := status.SeriesStatus["sora_level"]
	if soraStatus.OK {
		t.Error("sora_level status should not be ok")
	}
	if soraStatus.Error == "" {
		t.Error("sora_level status should carry an error message")
	}
	if len(macro.Series["sora_level"].Data) != 0 {
		t.Errorf("sora_level data = %v, want empty", macro.Series["sora_level"].Data)
	}

	yieldStatus := status.SeriesStatus["sgs_yield_10y"]
	if !yieldStatus.OK {
		t.Errorf("sgs_yield_10y should be ok, got error %q", yieldStatus.Error)
	}
	if len(macro.Series["sgs_yield_10y"].Data) != 1 {
		t.Errorf("sgs_yield_10y data = %v", macro.Series["sgs_yield_10y"].Data)
	}

	if status.OK {
		t.Error("aggregate ok should be false when a series failed")
	}
	if len(status.Errors) != 1 {
		t.Errorf("run errors = %v, want one entry", status.Errors)
	}
}

func TestRunEveryIntentHasEntries(t *testing.T) {
	intents := []model.SeriesIntent{
		dailyIntent("a"),
		dailyIntent("b"),
		dailyIntent("c"),
	}

	r := New(
		&fakeResolver{failWith: map[string]error{"b": errors.New("no match")}},
		&fakeFetcher{data: map[string][]model.Point{
			"a": {{Period: "2024-01-02", Value: 1}},
			"c": {{Period: "2024-01-02", Value: 2}},
		}},
		nil, nil, "",
	)

	macro, status := r.Run(context.Background(), intents)
	for _, id := range []string{"a", "b", "c"} {
		if _, ok := macro.Series[id]; !ok {
			t.Errorf("series map missing %s", id)
		}
		if _, ok := status.SeriesStatus[id]; !ok {
			t.Errorf("series status missing %s", id)
		}
	}
}

func TestRunMarksSourceDownOnCatalogFailure(t *testing.T) {
	intents := []model.SeriesIntent{dailyIntent("sora_level")}

	r := New(
		&fakeResolver{failWith: map[string]error{
			"sora_level": fmt.Errorf("%w: connection refused", catalog.ErrSourceUnavailable),
		}},
		&fakeFetcher{},
		nil, nil, "",
	)

	_, status := r.Run(context.Background(), intents)
	source := status.SourceStatus["data_gov_sg"]
	if source.OK {
		t.Error("source status should be down after a catalog failure")
	}
	if source.Error == "" {
		t.Error("source status should carry an error message")
	}
}

func TestRunResolvedButEmptySeries(t *testing.T) {
	intents := []model.SeriesIntent{dailyIntent("sora_level")}

	r := New(&fakeResolver{}, &fakeFetcher{}, nil, nil, "")
	macro, status := r.Run(context.Background(), intents)

	entry := macro.Series["sora_level"]
	if entry.Source.DatasetTitle != "Dataset for sora_level" {
		t.Errorf("resolved source should be kept, got %q", entry.Source.DatasetTitle)
	}
	if entry.Note == "" {
		t.Error("empty series should carry a note")
	}
	if status.SeriesStatus["sora_level"].OK {
		t.Error("empty series should not be marked ok")
	}
}

func TestRunAppliesDerivedSeries(t *testing.T) {
	intents := []model.SeriesIntent{
		dailyIntent("sgs_yield_10y"),
		dailyIntent("sgs_yield_2y"),
	}

	r := New(
		&fakeResolver{},
		&fakeFetcher{data: map[string][]model.Point{
			"sgs_yield_10y": {{Period: "2024-01-02", Value: 3.0}, {Period: "2024-01-03", Value: 3.1}},
			"sgs_yield_2y":  {{Period: "2024-01-02", Value: 2.5}, {Period: "2024-01-03", Value: 2.4}},
		}},
		nil, nil, "",
	)

	macro, status := r.Run(context.Background(), intents)

	slope, ok := macro.Series["yield_curve_slope"]
	if !ok {
		t.Fatal("yield_curve_slope missing from series map")
	}
	if len(slope.Data) != 2 {
		t.Errorf("slope data = %v", slope.Data)
	}
	if !status.SeriesStatus["yield_curve_slope"].OK {
		t.Error("derived series status should be ok")
	}
	if !status.OK {
		t.Error("aggregate ok should be true when everything succeeded")
	}
}

func TestWriteDocuments(t *testing.T) {
	dir := t.TempDir()
	macroPath := filepath.Join(dir, "nested", "macro.json")
	statusPath := filepath.Join(dir, "nested", "status.json")

	macro := model.MacroDocument{
		Meta:   model.Meta{GeneratedUTC: "2025-01-01T00:00:00Z", Sources: map[string]string{}, Notes: []string{}},
		Series: map[string]model.NormalizedSeries{},
	}
	status := model.StatusDocument{
		LastRunUTC:   "2025-01-01T00:00:00Z",
		OK:           true,
		SeriesStatus: map[string]model.SeriesStatus{},
		SourceStatus: map[string]model.SourceStatus{},
		Errors:       []string{},
	}

	if err := WriteDocuments(macroPath, statusPath, macro, status); err != nil {
		t.Fatalf("WriteDocuments failed: %v", err)
	}

	raw, err := os.ReadFile(statusPath)
	if err != nil {
		t.Fatalf("reading status file: %v", err)
	}
	var decoded model.StatusDocument
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("status file is not valid JSON: %v", err)
	}
	if !decoded.OK {
		t.Error("decoded status ok = false, want true")
	}
}

func TestWriteDocumentsFailure(t *testing.T) {
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	if err := os.WriteFile(blocked, []byte("file"), 0o644); err != nil {
		t.Fatal(err)
	}

	macroPath := filepath.Join(blocked, "macro.json")
	statusPath := filepath.Join(dir, "status.json")
	err := WriteDocuments(macroPath, statusPath, model.MacroDocument{}, model.StatusDocument{})
	if err == nil {
		t.Error("WriteDocuments should fail when the output directory cannot be created")
	}
}
