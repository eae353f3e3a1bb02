package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/himanishpuri/DeepQuery/pkg/models"
)

const maxDisplay = 10

func printReport(w io.Writer, r *models.Report) {
	fmt.Fprintf(w, "\n📊 %s: %s, %d window(s)", filepath.Base(r.QueryPath), models.FormatClock(r.Duration), r.TotalWindows)
	if r.DroppedWindows > 0 || r.FailedQueries > 0 {
		fmt.Fprintf(w, " (%d dropped, %d failed)", r.DroppedWindows, r.FailedQueries)
	}
	fmt.Fprintln(w)

	if len(r.Results) == 0 {
		fmt.Fprintln(w, "\n❌ No matches found")
		return
	}

	fmt.Fprintf(w, "\n✅ Found %d candidate(s)!\n\n", len(r.Results))
	shown := len(r.Results)
	if shown > maxDisplay {
		shown = maxDisplay
	}
	for i, res := range r.Results[:shown] {
		printResult(w, i+1, res)
	}
	if len(r.Results) > shown {
		fmt.Fprintf(w, "... and %d more candidates (runs show %s)\n", len(r.Results)-shown, shortID(r.RunID))
	}
	if r.RunID != "" {
		fmt.Fprintf(w, "Run ID: %s\n", r.RunID)
	}
}

func printResult(w io.Writer, rank int, res models.RankedResult) {
	fmt.Fprintf(w, "%d. %s\n", rank, res.CandidatePath)
	fmt.Fprintf(w, "   Segments: %d/%d (%.1f%%) | Total score: %d | Mean score: %.1f\n",
		res.HitCount, res.TotalWindows, res.HitPercentage, res.TotalScore, res.MeanScore)
	fmt.Fprintf(w, "   Matched at: %s\n\n", res.SpanSummary())
}

func printWindow(w io.Writer, wr models.WindowReport) {
	fmt.Fprintf(w, "  [%d/%d] %s-%s", wr.Window.Index+1, wr.Total,
		models.FormatClock(wr.Window.Start), models.FormatClock(wr.Window.End))
	switch {
	case wr.QueryErr != nil:
		fmt.Fprintf(w, " query failed: %v\n", wr.QueryErr)
	case len(wr.Records) == 0:
		fmt.Fprintln(w, " no match")
	default:
		fmt.Fprintln(w)
		for _, rec := range wr.Records {
			fmt.Fprintf(w, "      %s (score %d, at %s)\n",
				rec.CandidatePath, rec.Score, models.FormatClock(rec.CandidateStart))
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
