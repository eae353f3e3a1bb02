package aggregate

import (
	"sort"

	"github.com/himanishpuri/DeepQuery/pkg/models"
)

// MergeHits collapses a candidate's window hits into disjoint spans. A hit starting
// no later than overlap seconds after the current span's end extends that span.
func MergeHits(hits []models.Hit, overlap float64) []models.MatchSpan {
	if len(hits) == 0 {
		return nil
	}

	sorted := make([]models.Hit, len(hits))
	copy(sorted, hits)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].WindowStart < sorted[j].WindowStart
	})

	spans := make([]models.MatchSpan, 0, len(sorted))
	for _, h := range sorted {
		if n := len(spans); n > 0 && h.WindowStart <= spans[n-1].End+overlap {
			if h.WindowEnd > spans[n-1].End {
				spans[n-1].End = h.WindowEnd
			}
			continue
		}
		spans = append(spans, models.MatchSpan{Start: h.WindowStart, End: h.WindowEnd})
	}
	return spans
}
