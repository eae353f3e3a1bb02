package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/himanishpuri/DeepQuery/pkg/models"
)

func win(i int, start, end float64) models.Window {
	return models.Window{Index: i, Start: start, End: end}
}

func rec(path string, score int) models.MatchRecord {
	return models.MatchRecord{QueryPath: "clip.wav", CandidatePath: path, Score: score}
}

func TestAggregatorCountsEveryRecord(t *testing.T) {
	agg := NewAggregator()
	windows := []models.Window{win(0, 0, 15), win(1, 13, 28), win(2, 26, 40)}
	perWindow := [][]models.MatchRecord{
		{rec("A", 5), rec("B", 3), rec("A", 2)},
		{},
		{rec("B", 4), rec("C", 1)},
	}

	want := map[string]int{}
	for i, w := range windows {
		agg.Add(w, perWindow[i])
		for _, r := range perWindow[i] {
			want[r.CandidatePath]++
		}
	}

	cands := agg.Candidates()
	require.Len(t, cands, 3)
	assert.Equal(t, 3, agg.Len())
	for _, c := range cands {
		assert.Equal(t, want[c.Path], c.HitCount, c.Path)
		assert.Len(t, c.Hits, c.HitCount)
	}

	assert.Equal(t, []string{"A", "B", "C"}, []string{cands[0].Path, cands[1].Path, cands[2].Path})
	assert.Equal(t, 7, cands[0].TotalScore)
	assert.Equal(t, []models.Hit{{WindowStart: 0, WindowEnd: 15, Score: 5}, {WindowStart: 0, WindowEnd: 15, Score: 2}}, cands[0].Hits)
	assert.Equal(t, []models.Hit{{WindowStart: 0, WindowEnd: 15, Score: 3}, {WindowStart: 26, WindowEnd: 40, Score: 4}}, cands[1].Hits)
}

func TestMergeHitsOverlappingWindows(t *testing.T) {
	spans := MergeHits([]models.Hit{{WindowStart: 13, WindowEnd: 28, Score: 1}, {WindowStart: 0, WindowEnd: 15, Score: 1}}, 2)
	assert.Equal(t, []models.MatchSpan{{Start: 0, End: 28}}, spans)
}

func TestMergeHitsDisjointWindows(t *testing.T) {
	spans := MergeHits([]models.Hit{{WindowStart: 0, WindowEnd: 15, Score: 1}, {WindowStart: 20, WindowEnd: 35, Score: 1}}, 2)
	assert.Equal(t, []models.MatchSpan{{Start: 0, End: 15}, {Start: 20, End: 35}}, spans)
}

func TestMergeHitsGapWithinTolerance(t *testing.T) {
	spans := MergeHits([]models.Hit{{WindowStart: 0, WindowEnd: 15, Score: 1}, {WindowStart: 17, WindowEnd: 30, Score: 1}}, 2)
	assert.Equal(t, []models.MatchSpan{{Start: 0, End: 30}}, spans)
}

func TestMergeHitsContainedAndDuplicate(t *testing.T) {
	hits := []models.Hit{{WindowStart: 0, WindowEnd: 15, Score: 1}, {WindowStart: 0, WindowEnd: 15, Score: 9}, {WindowStart: 13, WindowEnd: 28, Score: 1}, {WindowStart: 14, WindowEnd: 20, Score: 1}}
	spans := MergeHits(hits, 2)
	assert.Equal(t, []models.MatchSpan{{Start: 0, End: 28}}, spans)
	assert.Equal(t, models.Hit{WindowStart: 0, WindowEnd: 15, Score: 1}, hits[0], "input must not be reordered")
}

func TestMergeHitsEmpty(t *testing.T) {
	assert.Nil(t, MergeHits(nil, 2))
}

func TestRankFiltersAndOrders(t *testing.T) {
	cands := []*models.CandidateAccumulator{
		{Path: "low", HitCount: 1, TotalScore: 100, Hits: []models.Hit{{WindowStart: 0, WindowEnd: 15, Score: 100}}},
		{Path: "tieA", HitCount: 2, TotalScore: 10, Hits: []models.Hit{{WindowStart: 0, WindowEnd: 15, Score: 5}, {WindowStart: 13, WindowEnd: 28, Score: 5}}},
		{Path: "best", HitCount: 3, TotalScore: 9, Hits: []models.Hit{{WindowStart: 0, WindowEnd: 15, Score: 3}, {WindowStart: 13, WindowEnd: 28, Score: 3}, {WindowStart: 26, WindowEnd: 40, Score: 3}}},
		{Path: "tieB", HitCount: 2, TotalScore: 10, Hits: []models.Hit{{WindowStart: 26, WindowEnd: 40, Score: 4}, {WindowStart: 0, WindowEnd: 15, Score: 6}}},
		{Path: "higher", HitCount: 2, TotalScore: 20, Hits: []models.Hit{{WindowStart: 0, WindowEnd: 15, Score: 10}, {WindowStart: 26, WindowEnd: 40, Score: 10}}},
	}

	results := Rank(cands, 3, 2, 2)

	paths := make([]string, len(results))
	for i, r := range results {
		paths[i] = r.CandidatePath
		assert.GreaterOrEqual(t, r.HitCount, 2)
		if i > 0 {
			prev := results[i-1]
			ordered := prev.HitCount > r.HitCount ||
				(prev.HitCount == r.HitCount && prev.TotalScore >= r.TotalScore)
			assert.True(t, ordered, "%s before %s", prev.CandidatePath, r.CandidatePath)
		}
	}
	assert.Equal(t, []string{"best", "higher", "tieA", "tieB"}, paths)

	assert.Equal(t, []models.MatchSpan{{Start: 0, End: 15}, {Start: 26, End: 40}}, results[1].Spans)
	assert.InDelta(t, 66.666, results[1].HitPercentage, 0.01)
	assert.InDelta(t, 10.0, results[1].MeanScore, 1e-9)
}

func TestRankEmpty(t *testing.T) {
	assert.Empty(t, Rank(nil, 5, 1, 2))
	assert.Empty(t, Rank([]*models.CandidateAccumulator{{Path: "x", HitCount: 1, Hits: []models.Hit{{WindowStart: 0, WindowEnd: 15, Score: 1}}}}, 5, 2, 2))
}

func TestEndToEndFortySecondScenario(t *testing.T) {
	agg := NewAggregator()
	agg.Add(win(0, 0, 15), []models.MatchRecord{rec("X", 10)})
	agg.Add(win(1, 13, 28), []models.MatchRecord{rec("X", 8)})
	agg.Add(win(2, 26, 40), []models.MatchRecord{rec("X", 12)})

	results := Rank(agg.Candidates(), 3, 1, 2)
	require.Len(t, results, 1)
	x := results[0]
	assert.Equal(t, 3, x.HitCount)
	assert.Equal(t, 30, x.TotalScore)
	assert.Equal(t, 100.0, x.HitPercentage)
	assert.Equal(t, []models.MatchSpan{{Start: 0, End: 40}}, x.Spans)
	assert.Equal(t, "0:00-0:40", x.SpanSummary())
}

func TestPipelineIsIdempotent(t *testing.T) {
	run := func() []models.RankedResult {
		agg := NewAggregator()
		agg.Add(win(0, 0, 15), []models.MatchRecord{rec("B", 3), rec("A", 3)})
		agg.Add(win(1, 13, 28), []models.MatchRecord{rec("A", 1), rec("C", 9)})
		agg.Add(win(2, 26, 40), []models.MatchRecord{rec("B", 1), rec("C", 1)})
		return Rank(agg.Candidates(), 3, 1, 2)
	}
	assert.Equal(t, run(), run())
}
