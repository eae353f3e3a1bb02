package models

import (
	"strings"
	"time"
)

// MatchSpan is a contiguous stretch of the query recording attributed to a candidate.
type MatchSpan struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (s MatchSpan) String() string {
	return FormatClock(s.Start) + "-" + FormatClock(s.End)
}

// RankedResult is the final, read-only verdict for one candidate.
type RankedResult struct {
	CandidatePath string      `json:"candidate_path"`
	HitCount      int         `json:"hit_count"`
	TotalWindows  int         `json:"total_windows"`
	HitPercentage float64     `json:"hit_percentage"` // 100 * HitCount / TotalWindows
	TotalScore    int         `json:"total_score"`
	MeanScore     float64     `json:"mean_score"`
	Spans         []MatchSpan `json:"spans"`
}

// SpanSummary joins the spans as "0:00-0:28, 1:10-1:40".
func (r RankedResult) SpanSummary() string {
	parts := make([]string, len(r.Spans))
	for i, s := range r.Spans {
		parts[i] = s.String()
	}
	return strings.Join(parts, ", ")
}

// Params controls windowing and the reporting threshold of a deep query.
type Params struct {
	SegmentLength float64 `json:"segment_length" validate:"gt=0"`
	Overlap       float64 `json:"overlap" validate:"gte=0,ltfield=SegmentLength"`
	MinSegments   int     `json:"min_segments" validate:"gte=0"`
}

// DefaultParams mirrors the CLI defaults: 15s windows, 2s overlap, one hit minimum.
func DefaultParams() Params {
	return Params{SegmentLength: 15, Overlap: 2, MinSegments: 1}
}

// Report is the outcome of one successful deep query.
type Report struct {
	RunID          string         `json:"run_id"`
	QueryPath      string         `json:"query_path"`
	Duration       float64        `json:"duration"`
	Params         Params         `json:"params"`
	TotalWindows   int            `json:"total_windows"`
	DroppedWindows int            `json:"dropped_windows"`
	FailedQueries  int            `json:"failed_queries"`
	Results        []RankedResult `json:"results"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
}

// WindowReport describes how one window fared; emitted to progress observers.
type WindowReport struct {
	Window   Window
	Total    int
	Records  []MatchRecord
	QueryErr error
}

// RunSummary is the list view of a recorded deep query.
type RunSummary struct {
	RunID        string    `json:"run_id"`
	QueryPath    string    `json:"query_path"`
	Duration     float64   `json:"duration"`
	TotalWindows int       `json:"total_windows"`
	Candidates   int       `json:"candidates"`
	StartedAt    time.Time `json:"started_at"`
}

// IndexedFile is a manifest entry for a file stored in the engine's index.
type IndexedFile struct {
	Path      string    `json:"path"`
	StoredAs  string    `json:"stored_as"`
	Digest    string    `json:"digest"`
	SizeBytes int64     `json:"size_bytes"`
	IndexedAt time.Time `json:"indexed_at"`
}
