package models

import "fmt"

// Window is one time slice of the query recording, already cut to a clip.
type Window struct {
	Index int     // Position among the retained windows, 0-based
	Start float64 // Seconds from the start of the recording
	End   float64 // Seconds, always > Start
	Clip  string  // Path of the extracted audio artifact
}

func (w Window) String() string {
	return fmt.Sprintf("window %d: %s-%s", w.Index, FormatClock(w.Start), FormatClock(w.End))
}

// MatchRecord is one hit reported by a single point query.
type MatchRecord struct {
	QueryPath      string
	CandidatePath  string
	CandidateStart float64
	CandidateStop  float64
	Score          int
}

// Hit is a MatchRecord reduced to the window it was found in.
type Hit struct {
	WindowStart float64
	WindowEnd   float64
	Score       int
}

// CandidateAccumulator collects the evidence for one candidate during a single run.
// HitCount always equals len(Hits).
type CandidateAccumulator struct {
	Path       string
	HitCount   int
	TotalScore int
	Hits       []Hit
}

// FormatClock renders seconds as m:ss.
func FormatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
