package deepquery

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/himanishpuri/DeepQuery/pkg/deepquery/aggregate"
	"github.com/himanishpuri/DeepQuery/pkg/deepquery/parser"
	"github.com/himanishpuri/DeepQuery/pkg/models"
)

// runner queries windows one at a time. A window whose query fails yields
// no records; only cancellation stops the run.
type runner struct {
	querier  PointQuerier
	parser   *parser.Parser
	timeout  time.Duration
	log      Logger
	observer Observer
	progress ProgressFunc
}

func (r *runner) run(ctx context.Context, windows []models.Window, agg *aggregate.Aggregator) (int, error) {
	failed := 0
	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return failed, err
		}

		records, err := r.query(ctx, w)
		if err != nil {
			if ctx.Err() != nil {
				return failed, ctx.Err()
			}
			failed++
			r.log.Warnf("Query failed for %s: %v", w, err)
			r.observer.WindowOutcome(OutcomeFailed)
		} else {
			r.observer.WindowOutcome(OutcomeQueried)
		}

		agg.Add(w, records)

		if r.progress != nil {
			r.progress(models.WindowReport{
				Window:   w,
				Total:    len(windows),
				Records:  records,
				QueryErr: err,
			})
		}
	}
	return failed, nil
}

func (r *runner) query(ctx context.Context, w models.Window) ([]models.MatchRecord, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := r.querier.Query(ctx, w.Clip)
	r.observer.EngineCall(time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(w.Clip), err)
	}

	records, stats := r.parser.Parse(out)
	r.log.Debugf("Window %d: %d data lines, %d malformed, %d self, %d scratch, %d kept",
		w.Index, stats.DataLines, stats.Malformed, stats.SelfMatches, stats.ScratchMatches, stats.Records)
	return records, nil
}
