// Package resolver matches a series intent to a concrete catalog package and
// downloadable resource. Matching is a pure scoring function over
// (query, candidate) pairs with explicit tie-breaking, so results are
// deterministic and testable against a stub catalog.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sgmacro/internal/model"
)

var ErrResolutionFailed = errors.New("resolver: no acceptable dataset match")

const (
	agencyBonus      = 0.25
	freshnessBonus   = 0.1
	freshnessWindow  = 5 * 365 * 24 * time.Hour
	minAcceptScore   = 0.3
	strongMatchScore = 1.2
)

// Searcher is the slice of the catalog client the resolver needs. Tests
// inject a stub; production wires internal/catalog.
type Searcher interface {
	SearchPackages(ctx context.Context, query string) ([]model.CatalogPackage, error)
}

type Resolver struct {
	searcher Searcher
	now      func() time.Time
}

func New(searcher Searcher) *Resolver {
	return &Resolver{searcher: searcher, now: time.Now}
}

type candidate struct {
	pkg        model.CatalogPackage
	resource   model.Resource
	score      float64
	queryIndex int
	order      int
}

// Resolve queries the catalog with each candidate query in order, pools the
// returned packages, scores them, and picks the single best tabular resource.
// A catalog error on one query does not abort resolution while other queries
// can still be tried; if every query fails the last error propagates.
func (r *Resolver) Resolve(ctx context.Context, intent model.SeriesIntent) (model.CatalogPackage, model.Resource, error) {
	var pool []candidate
	var lastSearchErr error
	order := 0
	searched := 0

	for queryIndex, query := range intent.CandidateQueries {
		packages, err := r.searcher.SearchPackages(ctx, query)
		if err != nil {
			lastSearchErr = err
			continue
		}
		searched++

		strong := false
		for _, pkg := range packages {
			resource, ok := chooseResource(pkg.Resources)
			if !ok {
				continue
			}
			score := r.Score(pkg, query, intent.Source)
			pool = append(pool, candidate{
				pkg:        pkg,
				resource:   resource,
				score:      score,
				queryIndex: queryIndex,
				order:      order,
			})
			order++
			if score >= strongMatchScore {
				strong = true
			}
		}
		if strong {
			break
		}
	}

	if searched == 0 && lastSearchErr != nil {
		return model.CatalogPackage{}, model.Resource{}, lastSearchErr
	}

	best, ok := selectBest(pool)
	if !ok || best.score < minAcceptScore {
		return model.CatalogPackage{}, model.Resource{},
			fmt.Errorf("%w: intent %s", ErrResolutionFailed, intent.ID)
	}
	return best.pkg, best.resource, nil
}

// Score combines title token overlap (primary), a fixed agency bonus, and a
// small freshness bonus used to break near-ties.
func (r *Resolver) Score(pkg model.CatalogPackage, query, sourceTag string) float64 {
	score := tokenOverlap(query, pkg.Title)
	if agencyMatches(sourceTag, pkg.Agency) {
		score += agencyBonus
	}
	score += r.freshness(pkg.LastModified)
	return score
}

func (r *Resolver) freshness(lastModified time.Time) float64 {
	if lastModified.IsZero() {
		return 0
	}
	age := r.now().Sub(lastModified)
	if age < 0 {
		age = 0
	}
	if age >= freshnessWindow {
		return 0
	}
	return freshnessBonus * (1 - float64(age)/float64(freshnessWindow))
}

func tokenOverlap(query, title string) float64 {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return 0
	}
	titleLower := strings.ToLower(title)
	matched := 0
	for _, token := range tokens {
		if strings.Contains(titleLower, token) {
			matched++
		}
	}
	return float64(matched) / float64(len(tokens))
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		if len(field) > 2 {
			tokens = append(tokens, field)
		}
	}
	return tokens
}

var agencyHints = map[string][]string{
	"mas":      {"monetary authority", "mas"},
	"ura":      {"urban redevelopment", "ura"},
	"singstat": {"department of statistics", "singstat"},
	"bca":      {"building and construction", "bca"},
}

var allAgencyHints = []string{
	"monetary authority", "mas",
	"urban redevelopment", "ura",
	"department of statistics", "singstat",
	"building and construction", "bca",
}

func agencyMatches(sourceTag, agency string) bool {
	agencyLower := strings.ToLower(agency)
	if agencyLower == "" {
		return false
	}
	hints, ok := agencyHints[strings.ToLower(strings.TrimSpace(sourceTag))]
	if !ok {
		hints = allAgencyHints
	}
	for _, hint := range hints {
		if strings.Contains(agencyLower, hint) {
			return true
		}
	}
	return false
}

// selectBest picks the highest score; ties go to the earlier candidate
// query, then the more recently modified package, then catalog return order.
func selectBest(pool []candidate) (candidate, bool) {
	if len(pool) == 0 {
		return candidate{}, false
	}
	best := pool[0]
	for _, cand := range pool[1:] {
		if betterCandidate(cand, best) {
			best = cand
		}
	}
	return best, true
}

func betterCandidate(a, b candidate) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if a.queryIndex != b.queryIndex {
		return a.queryIndex < b.queryIndex
	}
	if !a.pkg.LastModified.Equal(b.pkg.LastModified) {
		return a.pkg.LastModified.After(b.pkg.LastModified)
	}
	return a.order < b.order
}

// chooseResource prefers CSV; TSV is accepted as a fallback tabular format.
func chooseResource(resources []model.Resource) (model.Resource, bool) {
	for _, resource := range resources {
		if isFormat(resource, "csv") {
			return resource, true
		}
	}
	for _, resource := range resources {
		if isFormat(resource, "tsv") {
			return resource, true
		}
	}
	return model.Resource{}, false
}

func isFormat(resource model.Resource, format string) bool {
	if strings.EqualFold(strings.TrimSpace(resource.Format), format) {
		return true
	}
	return strings.HasSuffix(strings.ToLower(resource.URL), "."+format)
}
