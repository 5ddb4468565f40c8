// Package derive computes cross-series metrics from already-normalized
// series. Derived metrics never mutate their inputs; each one yields a fresh
// series, or nil when its inputs are missing or too short.
package derive

import (
	"fmt"
	"sort"

	"sgmacro/internal/model"
)

const (
	TenYearID = "sgs_yield_10y"
	TwoYearID = "sgs_yield_2y"
	OneYearID = "sgs_yield_1y"
)

// CurveSlope subtracts a short-tenor yield from the 10-year yield, matched
// by exact period (inner join). The 2-year series is preferred; the 1-year
// series is the fallback when the 2-year is absent or empty.
func CurveSlope(series map[string]model.NormalizedSeries) *model.NormalizedSeries {
	ten, ok := series[TenYearID]
	if !ok || len(ten.Data) == 0 {
		return nil
	}

	base, baseName := shortTenor(series)
	if baseName == "" {
		return nil
	}

	baseByPeriod := make(map[string]float64, len(base.Data))
	for _, point := range base.Data {
		baseByPeriod[point.Period] = point.Value
	}

	shared := make([]model.Point, 0)
	for _, point := range ten.Data {
		baseValue, ok := baseByPeriod[point.Period]
		if !ok {
			continue
		}
		shared = append(shared, model.Point{Period: point.Period, Value: point.Value - baseValue})
	}
	if len(shared) == 0 {
		return nil
	}
	sort.Slice(shared, func(i, j int) bool { return shared[i].Period < shared[j].Period })

	last := shared[len(shared)-1].Period
	return &model.NormalizedSeries{
		DisplayName:           fmt.Sprintf("Yield Curve Slope (10Y-%s)", baseName),
		Frequency:             ten.Frequency,
		Unit:                  "percentage_points",
		Source:                derivedSource("Derived from fetched yields"),
		LastObservationPeriod: &last,
		Data:                  shared,
	}
}

func shortTenor(series map[string]model.NormalizedSeries) (model.NormalizedSeries, string) {
	if two, ok := series[TwoYearID]; ok && len(two.Data) > 0 {
		return two, "2Y"
	}
	if one, ok := series[OneYearID]; ok && len(one.Data) > 0 {
		return one, "1Y"
	}
	return model.NormalizedSeries{}, ""
}

// MovingAverage computes a simple trailing mean. Output only starts once a
// full window is available, so a series shorter than the window yields nil.
func MovingAverage(source model.NormalizedSeries, window int) *model.NormalizedSeries {
	if window <= 0 || len(source.Data) < window {
		return nil
	}

	points := make([]model.Point, 0, len(source.Data)-window+1)
	for i := window - 1; i < len(source.Data); i++ {
		sum := 0.0
		for j := i - window + 1; j <= i; j++ {
			sum += source.Data[j].Value
		}
		points = append(points, model.Point{
			Period: source.Data[i].Period,
			Value:  sum / float64(window),
		})
	}

	last := points[len(points)-1].Period
	return &model.NormalizedSeries{
		DisplayName:           fmt.Sprintf("%s (%d-period MA)", source.DisplayName, window),
		Frequency:             source.Frequency,
		Unit:                  source.Unit,
		Source:                derivedSource("Moving average"),
		LastObservationPeriod: &last,
		Data:                  points,
	}
}

func derivedSource(title string) model.SourceRef {
	return model.SourceRef{Name: "derived", DatasetTitle: title}
}
