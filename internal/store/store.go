package store

import (
	"context"
	"time"
)

// Observation is one archived data point from a run.
type Observation struct {
	SeriesID  string
	Frequency string
	Period    string
	Value     float64
	FetchedAt time.Time
}

// Store archives normalized observations for local inspection. The output
// contract of the run stays the flat JSON documents; archiving is optional
// and disabled by default.
type Store interface {
	UpsertObservations(ctx context.Context, observations []Observation) error
	ListPeriods(ctx context.Context, seriesID string) ([]string, error)
	Close() error
}

type NopStore struct{}

func (s *NopStore) UpsertObservations(ctx context.Context, observations []Observation) error {
	_ = ctx
	_ = observations
	return nil
}

func (s *NopStore) ListPeriods(ctx context.Context, seriesID string) ([]string, error) {
	_ = ctx
	_ = seriesID
	return nil, nil
}

func (s *NopStore) Close() error {
	return nil
}
