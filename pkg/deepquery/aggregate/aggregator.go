// Package aggregate folds per-window match records into ranked whole-file candidates.
package aggregate

import "github.com/himanishpuri/DeepQuery/pkg/models"

// Aggregator accumulates evidence per candidate path for a single deep query.
// It is not safe for concurrent use; the pipeline has exactly one writer.
type Aggregator struct {
	byPath map[string]*models.CandidateAccumulator
	order  []string
}

func NewAggregator() *Aggregator {
	return &Aggregator{byPath: make(map[string]*models.CandidateAccumulator)}
}

// Add records every match of one window. Repeated matches to the same candidate
// within a window each count as a separate hit.
func (a *Aggregator) Add(w models.Window, records []models.MatchRecord) {
	for _, rec := range records {
		acc, ok := a.byPath[rec.CandidatePath]
		if !ok {
			acc = &models.CandidateAccumulator{Path: rec.CandidatePath}
			a.byPath[rec.CandidatePath] = acc
			a.order = append(a.order, rec.CandidatePath)
		}
		acc.HitCount++
		acc.TotalScore += rec.Score
		acc.Hits = append(acc.Hits, models.Hit{
			WindowStart: w.Start,
			WindowEnd:   w.End,
			Score:       rec.Score,
		})
	}
}

// Len returns the number of distinct candidates seen so far.
func (a *Aggregator) Len() int {
	return len(a.order)
}

// Candidates returns the accumulators in the order their candidates were first observed.
func (a *Aggregator) Candidates() []*models.CandidateAccumulator {
	out := make([]*models.CandidateAccumulator, len(a.order))
	for i, path := range a.order {
		out[i] = a.byPath[path]
	}
	return out
}
