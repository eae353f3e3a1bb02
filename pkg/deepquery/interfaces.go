package deepquery

import (
	"context"
	"time"

	"github.com/himanishpuri/DeepQuery/pkg/models"
)

type Service interface {
	DeepQuery(ctx context.Context, filePath string, params models.Params) (*models.Report, error)
	Close() error
}

type DurationProber interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

type Extractor interface {
	ExtractClip(ctx context.Context, src, dst string, start, length float64) error
}

// PointQuerier asks the engine about one clip and returns its raw output.
type PointQuerier interface {
	Query(ctx context.Context, clip string) (string, error)
}

// RunStore persists finished runs and knows which library entries are
// aliases of a given file.
type RunStore interface {
	SaveRun(ctx context.Context, report *models.Report) error
	Aliases(ctx context.Context, path string) ([]string, error)
	Close() error
}

// Observer receives pipeline measurements.
type Observer interface {
	RunFinished(status string, elapsed time.Duration)
	WindowOutcome(outcome string)
	EngineCall(elapsed time.Duration)
}

// ProgressFunc is called once per queried window, in window order.
type ProgressFunc func(models.WindowReport)

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}

const (
	StatusOK        = "ok"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"

	OutcomeQueried = "queried"
	OutcomeDropped = "dropped"
	OutcomeFailed  = "failed"
)

type nopObserver struct{}

func (nopObserver) RunFinished(string, time.Duration) {}
func (nopObserver) WindowOutcome(string)              {}
func (nopObserver) EngineCall(time.Duration)          {}
