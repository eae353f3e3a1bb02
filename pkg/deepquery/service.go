package deepquery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/himanishpuri/DeepQuery/pkg/deepquery/aggregate"
	"github.com/himanishpuri/DeepQuery/pkg/deepquery/audio"
	"github.com/himanishpuri/DeepQuery/pkg/deepquery/engine"
	"github.com/himanishpuri/DeepQuery/pkg/deepquery/parser"
	"github.com/himanishpuri/DeepQuery/pkg/deepquery/segment"
	"github.com/himanishpuri/DeepQuery/pkg/logger"
	"github.com/himanishpuri/DeepQuery/pkg/models"
	"github.com/himanishpuri/DeepQuery/pkg/utils"
)

// ScratchPrefix names the per-call extraction directory under TempDir.
const ScratchPrefix = "deepquery_"

// deepQueryService is the default implementation of the Service interface.
type deepQueryService struct {
	config    *Config
	log       Logger
	observer  Observer
	segmenter *segment.Segmenter
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger().WithPrefix("deepquery")
	}
	if cfg.Prober == nil {
		cfg.Prober = audio.NewFFProbe()
	}
	if cfg.Extractor == nil {
		cfg.Extractor = audio.NewFFmpegExtractor(audio.ExtractConfig{
			SampleRate: cfg.SampleRate,
			Channels:   1,
		})
	}
	if cfg.Querier == nil {
		cfg.Querier = engine.NewCommandQuerier(nil, nil)
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}

	if err := utils.MakeDir(cfg.TempDir); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	return &deepQueryService{
		config:   cfg,
		log:      cfg.Logger,
		observer: cfg.Observer,
		segmenter: &segment.Segmenter{
			Extractor: cfg.Extractor,
			Timeout:   cfg.ExtractTimeout,
		},
	}, nil
}

// DeepQuery splits filePath into overlapping windows, queries each one and
// ranks the candidates that matched. A report without results is a success.
func (s *deepQueryService) DeepQuery(ctx context.Context, filePath string, params models.Params) (*models.Report, error) {
	started := time.Now()
	report, err := s.deepQuery(ctx, filePath, params, started)

	status := StatusOK
	switch {
	case err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		status = StatusCancelled
	case err != nil:
		status = StatusFailed
	}
	s.observer.RunFinished(status, time.Since(started))

	return report, err
}

func (s *deepQueryService) deepQuery(ctx context.Context, filePath string, params models.Params, started time.Time) (*models.Report, error) {
	if err := ValidateParams(params); err != nil {
		return nil, err
	}

	path, err := resolvePath(filePath)
	if err != nil {
		return nil, err
	}

	// 1. Probe duration
	duration, err := s.probe(ctx, path)
	if err != nil {
		return nil, err
	}
	s.log.Infof("Deep query: %s (%s, %.0fs windows, %.0fs overlap)",
		filepath.Base(path), models.FormatClock(duration), params.SegmentLength, params.Overlap)

	// 2. Plan windows
	plan := segment.Plan(duration, params.SegmentLength, params.Overlap)
	if len(plan) == 0 {
		return nil, fmt.Errorf("%w: %.2fs recording is shorter than %.0fs", ErrNoWindows, duration, segment.MinWindowLength)
	}

	// 3. Extract clips into a private scratch dir
	scratch, err := os.MkdirTemp(s.config.TempDir, ScratchPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer func() {
		if err := utils.DeleteDir(scratch); err != nil {
			s.log.Warnf("Failed to remove scratch dir %s: %v", scratch, err)
		}
	}()

	windows, failures, err := s.segmenter.Materialize(ctx, path, plan, scratch)
	for _, f := range failures {
		s.log.Warnf("Dropping window: %v", f)
		s.observer.WindowOutcome(OutcomeDropped)
	}
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return nil, fmt.Errorf("%w: all %d windows failed extraction", ErrNoWindows, len(plan))
	}
	s.log.Debugf("Extracted %d/%d windows into %s", len(windows), len(plan), scratch)

	// 4. Query each window and aggregate
	agg := aggregate.NewAggregator()
	r := &runner{
		querier:  s.config.Querier,
		parser:   parser.New(s.exclusions(ctx, filePath, path)...),
		timeout:  s.config.QueryTimeout,
		log:      s.log,
		observer: s.observer,
		progress: s.config.Progress,
	}
	failed, err := r.run(ctx, windows, agg)
	if err != nil {
		return nil, err
	}

	// 5. Rank
	results := aggregate.Rank(agg.Candidates(), len(windows), params.MinSegments, params.Overlap)

	report := &models.Report{
		RunID:          uuid.NewString(),
		QueryPath:      path,
		Duration:       duration,
		Params:         params,
		TotalWindows:   len(windows),
		DroppedWindows: len(failures),
		FailedQueries:  failed,
		Results:        results,
		StartedAt:      started,
		FinishedAt:     time.Now(),
	}
	s.log.Infof("Deep query finished: %d candidate(s) over %d windows (%d dropped, %d failed)",
		len(results), report.TotalWindows, report.DroppedWindows, report.FailedQueries)

	if s.config.Store != nil {
		if err := s.config.Store.SaveRun(ctx, report); err != nil {
			s.log.Warnf("Failed to record run %s: %v", report.RunID, err)
		}
	}

	return report, nil
}

func (s *deepQueryService) probe(ctx context.Context, path string) (float64, error) {
	pctx := ctx
	if s.config.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, s.config.ProbeTimeout)
		defer cancel()
	}

	duration, err := s.config.Prober.ProbeDuration(pctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("%w: %s: %v", ErrDurationUnknown, filepath.Base(path), err)
	}
	if duration < 0 {
		return 0, fmt.Errorf("%w: %s: negative duration %v", ErrDurationUnknown, filepath.Base(path), duration)
	}
	return duration, nil
}

// exclusions lists every identity under which the query file itself may be
// reported by the engine.
func (s *deepQueryService) exclusions(ctx context.Context, given, resolved string) []string {
	ids := []string{resolved}
	if given != resolved {
		ids = append(ids, given)
	}
	ids = append(ids, s.config.ExcludedPaths...)

	if s.config.Store != nil {
		aliases, err := s.config.Store.Aliases(ctx, resolved)
		if err != nil {
			s.log.Warnf("Failed to look up manifest aliases for %s: %v", resolved, err)
		}
		ids = append(ids, aliases...)
	}
	return ids
}

func (s *deepQueryService) Close() error {
	if s.config.Store != nil {
		return s.config.Store.Close()
	}
	return nil
}

func resolvePath(filePath string) (string, error) {
	path, err := utils.ExpandPath(filePath)
	if err != nil {
		return "", err
	}
	path, err = filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", filePath, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("query file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("query file %s is a directory", path)
	}
	return path, nil
}
