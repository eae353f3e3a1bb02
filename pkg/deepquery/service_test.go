package deepquery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/himanishpuri/DeepQuery/pkg/logger"
	"github.com/himanishpuri/DeepQuery/pkg/models"
)

type fakeProber struct {
	duration float64
	err      error
}

func (p fakeProber) ProbeDuration(context.Context, string) (float64, error) {
	return p.duration, p.err
}

// fakeExtractor writes a placeholder clip and remembers where it put it.
type fakeExtractor struct {
	mu       sync.Mutex
	failAt   map[float64]bool
	clipDirs map[string]bool
}

func (e *fakeExtractor) ExtractClip(_ context.Context, _, dst string, start, _ float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.clipDirs == nil {
		e.clipDirs = map[string]bool{}
	}
	e.clipDirs[filepath.Dir(dst)] = true
	if e.failAt[start] {
		return errors.New("decoder exploded")
	}
	return os.WriteFile(dst, []byte("RIFF"), 0o644)
}

// fakeQuerier answers by clip base name.
type fakeQuerier struct {
	mu      sync.Mutex
	answers map[string]string
	errs    map[string]error
	calls   []string
	onQuery func(clip string)
}

func (q *fakeQuerier) Query(_ context.Context, clip string) (string, error) {
	q.mu.Lock()
	q.calls = append(q.calls, filepath.Base(clip))
	onQuery := q.onQuery
	q.mu.Unlock()

	if onQuery != nil {
		onQuery(clip)
	}
	name := filepath.Base(clip)
	if err := q.errs[name]; err != nil {
		return "", err
	}
	// Real engine output names the clip it was given.
	return strings.ReplaceAll(q.answers[name], "{clip}", clip), nil
}

type fakeStore struct {
	saved   []*models.Report
	aliases []string
	closed  bool
}

func (s *fakeStore) SaveRun(_ context.Context, r *models.Report) error {
	s.saved = append(s.saved, r)
	return nil
}

func (s *fakeStore) Aliases(context.Context, string) ([]string, error) {
	return s.aliases, nil
}

func (s *fakeStore) Close() error {
	s.closed = true
	return nil
}

type countingObserver struct {
	mu       sync.Mutex
	runs     map[string]int
	outcomes map[string]int
	engine   int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{runs: map[string]int{}, outcomes: map[string]int{}}
}

func (o *countingObserver) RunFinished(status string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs[status]++
}

func (o *countingObserver) WindowOutcome(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes[outcome]++
}

func (o *countingObserver) EngineCall(time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.engine++
}

func match(candidate string, score int) string {
	return fmt.Sprintf("1;1;{clip};0;15;%s;7;0;15;%d;1.0;1.0;90", candidate, score)
}

func lines(ls ...string) string {
	return strings.Join(append([]string{"[panako] query results"}, ls...), "\n")
}

type fixture struct {
	query     string
	tempDir   string
	extractor *fakeExtractor
	querier   *fakeQuerier
	store     *fakeStore
	observer  *countingObserver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	query := filepath.Join(dir, "recording.wav")
	require.NoError(t, os.WriteFile(query, []byte("RIFF"), 0o644))

	tempDir := filepath.Join(dir, "tmp")
	require.NoError(t, os.MkdirAll(tempDir, 0o755))

	return &fixture{
		query:     query,
		tempDir:   tempDir,
		extractor: &fakeExtractor{},
		querier:   &fakeQuerier{answers: map[string]string{}, errs: map[string]error{}},
		store:     &fakeStore{},
		observer:  newCountingObserver(),
	}
}

func (f *fixture) service(t *testing.T, duration float64, opts ...Option) Service {
	t.Helper()
	base := []Option{
		WithLogger(logger.Nop()),
		WithTempDir(f.tempDir),
		WithProber(fakeProber{duration: duration}),
		WithExtractor(f.extractor),
		WithQuerier(f.querier),
		WithStore(f.store),
		WithObserver(f.observer),
	}
	svc, err := NewService(append(base, opts...)...)
	require.NoError(t, err)
	return svc
}

func (f *fixture) assertScratchRemoved(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch directory should be removed")
}

func TestDeepQueryFortySeconds(t *testing.T) {
	f := newFixture(t)
	f.querier.answers["segment_0000.wav"] = lines(match("/lib/A.mp3", 10))
	f.querier.answers["segment_0001.wav"] = lines(match("/lib/A.mp3", 8))
	f.querier.answers["segment_0002.wav"] = lines(match("/lib/A.mp3", 12))

	var progress []models.WindowReport
	svc := f.service(t, 40, WithProgress(func(wr models.WindowReport) {
		progress = append(progress, wr)
	}))

	report, err := svc.DeepQuery(context.Background(), f.query, models.DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, 40.0, report.Duration)
	assert.Equal(t, 3, report.TotalWindows)
	assert.Zero(t, report.DroppedWindows)
	assert.Zero(t, report.FailedQueries)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, f.query, report.QueryPath)

	require.Len(t, report.Results, 1)
	res := report.Results[0]
	assert.Equal(t, "/lib/A.mp3", res.CandidatePath)
	assert.Equal(t, 3, res.HitCount)
	assert.Equal(t, 30, res.TotalScore)
	assert.InDelta(t, 100.0, res.HitPercentage, 1e-9)
	assert.Equal(t, []models.MatchSpan{{Start: 0, End: 40}}, res.Spans)

	assert.Equal(t, []string{"segment_0000.wav", "segment_0001.wav", "segment_0002.wav"}, f.querier.calls)

	require.Len(t, progress, 3)
	assert.Equal(t, 13.0, progress[1].Window.Start)
	assert.Equal(t, 28.0, progress[1].Window.End)
	assert.Equal(t, 3, progress[2].Total)

	require.Len(t, f.store.saved, 1)
	assert.Equal(t, report.RunID, f.store.saved[0].RunID)

	assert.Equal(t, 1, f.observer.runs[StatusOK])
	assert.Equal(t, 3, f.observer.outcomes[OutcomeQueried])
	assert.Equal(t, 3, f.observer.engine)

	f.assertScratchRemoved(t)
}

func TestDeepQueryFiltersSelfAndScratchMatches(t *testing.T) {
	f := newFixture(t)
	f.store.aliases = []string{"/library/stored/recording.wav"}
	f.querier.answers["segment_0000.wav"] = lines(
		match("{clip}", 99),
		match(f.query, 50),
		match("/library/stored/recording.wav", 40),
		match("/tmp/deepquery_999/clip.wav", 30),
		match("/old/segment_0004.wav", 20),
		match("/lib/B.flac", 5),
		match("/lib/segment_intro.wav", 3),
	)

	svc := f.service(t, 10)
	report, err := svc.DeepQuery(context.Background(), f.query, models.DefaultParams())
	require.NoError(t, err)

	require.Len(t, report.Results, 2)
	assert.Equal(t, "/lib/B.flac", report.Results[0].CandidatePath)
	assert.Equal(t, "/lib/segment_intro.wav", report.Results[1].CandidatePath)
}

func TestDeepQueryExcludedPathsOption(t *testing.T) {
	f := newFixture(t)
	f.querier.answers["segment_0000.wav"] = lines(match("/mirror/recording.wav", 9), match("/lib/C.ogg", 4))

	svc := f.service(t, 10, WithExcludedPaths("/mirror/recording.wav"))
	report, err := svc.DeepQuery(context.Background(), f.query, models.DefaultParams())
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, "/lib/C.ogg", report.Results[0].CandidatePath)
}

func TestDeepQueryProbeFailure(t *testing.T) {
	f := newFixture(t)
	svc, err := NewService(
		WithLogger(logger.Nop()),
		WithTempDir(f.tempDir),
		WithProber(fakeProber{err: errors.New("moov atom not found")}),
		WithExtractor(f.extractor),
		WithQuerier(f.querier),
		WithObserver(f.observer),
	)
	require.NoError(t, err)

	_, err = svc.DeepQuery(context.Background(), f.query, models.DefaultParams())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDurationUnknown)
	assert.Empty(t, f.querier.calls)
	assert.Equal(t, 1, f.observer.runs[StatusFailed])
	f.assertScratchRemoved(t)
}

func TestDeepQueryZeroDuration(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, 0)

	_, err := svc.DeepQuery(context.Background(), f.query, models.DefaultParams())
	assert.ErrorIs(t, err, ErrNoWindows)
	assert.Empty(t, f.store.saved)
}

func TestDeepQueryShortRecording(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, 2.5)

	_, err := svc.DeepQuery(context.Background(), f.query, models.DefaultParams())
	assert.ErrorIs(t, err, ErrNoWindows)
}

func TestDeepQueryAllExtractionsFail(t *testing.T) {
	f := newFixture(t)
	f.extractor.failAt = map[float64]bool{0: true, 13: true, 26: true}
	svc := f.service(t, 40)

	_, err := svc.DeepQuery(context.Background(), f.query, models.DefaultParams())
	assert.ErrorIs(t, err, ErrNoWindows)
	assert.Equal(t, 3, f.observer.outcomes[OutcomeDropped])
	f.assertScratchRemoved(t)
}

func TestDeepQueryDroppedWindowIsReindexed(t *testing.T) {
	f := newFixture(t)
	f.extractor.failAt = map[float64]bool{13: true}
	f.querier.answers["segment_0000.wav"] = lines(match("/lib/A.mp3", 10))
	f.querier.answers["segment_0002.wav"] = lines(match("/lib/A.mp3", 12))

	var starts []float64
	svc := f.service(t, 40, WithProgress(func(wr models.WindowReport) {
		starts = append(starts, wr.Window.Start)
		assert.Equal(t, len(starts)-1, wr.Window.Index)
	}))

	report, err := svc.DeepQuery(context.Background(), f.query, models.DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 26}, starts)
	assert.Equal(t, 2, report.TotalWindows)
	assert.Equal(t, 1, report.DroppedWindows)

	require.Len(t, report.Results, 1)
	assert.Equal(t, 2, report.Results[0].HitCount)
	assert.InDelta(t, 100.0, report.Results[0].HitPercentage, 1e-9)
	assert.Equal(t, []models.MatchSpan{{Start: 0, End: 15}, {Start: 26, End: 40}}, report.Results[0].Spans)
}

func TestDeepQueryToleratesQueryFailures(t *testing.T) {
	f := newFixture(t)
	f.querier.answers["segment_0000.wav"] = lines(match("/lib/A.mp3", 10))
	f.querier.errs["segment_0001.wav"] = errors.New("exit status 1")
	f.querier.answers["segment_0002.wav"] = lines(match("/lib/A.mp3", 12), match("/lib/B.mp3", 40))

	svc := f.service(t, 40)
	report, err := svc.DeepQuery(context.Background(), f.query, models.Params{SegmentLength: 15, Overlap: 2, MinSegments: 2})
	require.NoError(t, err)

	assert.Equal(t, 1, report.FailedQueries)
	assert.Equal(t, 3, report.TotalWindows)
	require.Len(t, report.Results, 1, "B has a single hit and falls below the threshold")
	assert.Equal(t, "/lib/A.mp3", report.Results[0].CandidatePath)
	assert.Equal(t, 1, f.observer.outcomes[OutcomeFailed])
}

func TestDeepQueryNoMatchesIsSuccess(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, 40)

	report, err := svc.DeepQuery(context.Background(), f.query, models.DefaultParams())
	require.NoError(t, err)
	assert.Empty(t, report.Results)
	assert.Len(t, f.store.saved, 1)
}

func TestDeepQueryInvalidParams(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, 40)

	for _, p := range []models.Params{
		{SegmentLength: 0, Overlap: 0, MinSegments: 1},
		{SegmentLength: 15, Overlap: -1, MinSegments: 1},
		{SegmentLength: 15, Overlap: 15, MinSegments: 1},
		{SegmentLength: 15, Overlap: 2, MinSegments: -1},
	} {
		_, err := svc.DeepQuery(context.Background(), f.query, p)
		assert.ErrorIs(t, err, ErrInvalidParams, "params %+v", p)
	}
	assert.Empty(t, f.querier.calls)
}

func TestDeepQueryMissingFile(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, 40)

	_, err := svc.DeepQuery(context.Background(), filepath.Join(f.tempDir, "nope.wav"), models.DefaultParams())
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestDeepQueryCancellation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.querier.answers["segment_0000.wav"] = lines(match("/lib/A.mp3", 10))
	f.querier.onQuery = func(clip string) {
		if filepath.Base(clip) == "segment_0000.wav" {
			cancel()
		}
	}

	svc := f.service(t, 40)
	report, err := svc.DeepQuery(ctx, f.query, models.DefaultParams())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, report)
	assert.Equal(t, []string{"segment_0000.wav"}, f.querier.calls)
	assert.Empty(t, f.store.saved)
	assert.Equal(t, 1, f.observer.runs[StatusCancelled])
	f.assertScratchRemoved(t)
}

func TestDeepQueryUsesFreshScratchPerCall(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, 10)

	for i := 0; i < 2; i++ {
		_, err := svc.DeepQuery(context.Background(), f.query, models.DefaultParams())
		require.NoError(t, err)
	}

	require.Len(t, f.extractor.clipDirs, 2)
	for dir := range f.extractor.clipDirs {
		assert.True(t, strings.HasPrefix(filepath.Base(dir), ScratchPrefix))
	}
	f.assertScratchRemoved(t)
}

func TestCloseClosesStore(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, 10)
	require.NoError(t, svc.Close())
	assert.True(t, f.store.closed)
}
