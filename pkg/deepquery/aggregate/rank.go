package aggregate

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/himanishpuri/DeepQuery/pkg/models"
)

// Rank drops candidates with fewer than minSegments hits and orders the rest by
// hit count, then total score, both descending. Ties keep first-observed order.
func Rank(cands []*models.CandidateAccumulator, totalWindows, minSegments int, overlap float64) []models.RankedResult {
	results := make([]models.RankedResult, 0, len(cands))
	for _, c := range cands {
		if c.HitCount < minSegments {
			continue
		}
		results = append(results, models.RankedResult{
			CandidatePath: c.Path,
			HitCount:      c.HitCount,
			TotalWindows:  totalWindows,
			HitPercentage: percentage(c.HitCount, totalWindows),
			TotalScore:    c.TotalScore,
			MeanScore:     meanScore(c.Hits),
			Spans:         MergeHits(c.Hits, overlap),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].HitCount != results[j].HitCount {
			return results[i].HitCount > results[j].HitCount
		}
		return results[i].TotalScore > results[j].TotalScore
	})
	return results
}

func percentage(hits, total int) float64 {
	if total <= 0 {
		return 0
	}
	return 100 * float64(hits) / float64(total)
}

func meanScore(hits []models.Hit) float64 {
	if len(hits) == 0 {
		return 0
	}
	scores := make([]float64, len(hits))
	for i, h := range hits {
		scores[i] = float64(h.Score)
	}
	return stat.Mean(scores, nil)
}
