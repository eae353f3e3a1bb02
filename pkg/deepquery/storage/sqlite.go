// Package storage keeps the run history and the manifest of indexed files in sqlite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/himanishpuri/DeepQuery/pkg/models"
)

const DefaultDBFile = "deepquery.sqlite3"
const errDBClientNil = "db client is nil"

var (
	ErrRunNotFound  = errors.New("run not found")
	ErrAmbiguousRun = errors.New("run id prefix is ambiguous")
	ErrNotIndexed   = errors.New("file is not in the manifest")
)

type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

type Run struct {
	ID             string `gorm:"primaryKey;type:varchar(36)"`
	QueryPath      string `gorm:"index:idx_run_query"`
	Duration       float64
	SegmentLength  float64
	Overlap        float64
	MinSegments    int
	TotalWindows   int
	DroppedWindows int
	FailedQueries  int
	StartedAt      time.Time `gorm:"index:idx_run_started"`
	FinishedAt     time.Time
	Matches        []RunMatch `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

type RunMatch struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	RunID         string `gorm:"type:varchar(36);index:idx_match_run"`
	Position      int
	CandidatePath string `gorm:"index:idx_match_candidate"`
	HitCount      int
	TotalWindows  int
	HitPercentage float64
	TotalScore    int
	MeanScore     float64
	Spans         []models.MatchSpan `gorm:"serializer:json"`
}

type IndexedFile struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Path      string `gorm:"uniqueIndex:idx_indexed_path"`
	StoredAs  string
	Digest    string `gorm:"index:idx_indexed_digest"`
	SizeBytes int64
	CreatedAt time.Time
}

func NewDBClient() (*DBClient, error) {
	dbPath := os.Getenv("DEEPQUERY_DB_PATH")
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewDBClientWithPath(dbPath)
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_pragma=foreign_keys(1)"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	// sqlite serializes writers anyway
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Run{}, &RunMatch{}, &IndexedFile{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *DBClient) check() error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	return nil
}

// SaveRun records a finished deep query together with its ranked results.
func (c *DBClient) SaveRun(ctx context.Context, report *models.Report) error {
	if err := c.check(); err != nil {
		return err
	}

	run := Run{
		ID:             report.RunID,
		QueryPath:      report.QueryPath,
		Duration:       report.Duration,
		SegmentLength:  report.Params.SegmentLength,
		Overlap:        report.Params.Overlap,
		MinSegments:    report.Params.MinSegments,
		TotalWindows:   report.TotalWindows,
		DroppedWindows: report.DroppedWindows,
		FailedQueries:  report.FailedQueries,
		StartedAt:      report.StartedAt,
		FinishedAt:     report.FinishedAt,
	}
	for i, r := range report.Results {
		run.Matches = append(run.Matches, RunMatch{
			Position:      i + 1,
			CandidatePath: r.CandidatePath,
			HitCount:      r.HitCount,
			TotalWindows:  r.TotalWindows,
			HitPercentage: r.HitPercentage,
			TotalScore:    r.TotalScore,
			MeanScore:     r.MeanScore,
			Spans:         r.Spans,
		})
	}

	if err := c.DB.WithContext(ctx).Create(&run).Error; err != nil {
		return fmt.Errorf("saving run %s: %w", report.RunID, err)
	}
	return nil
}

// ListRuns returns the most recent runs first. limit <= 0 means no limit.
func (c *DBClient) ListRuns(ctx context.Context, limit int) ([]models.RunSummary, error) {
	if err := c.check(); err != nil {
		return nil, err
	}

	var runs []Run
	q := c.DB.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	if len(runs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	var counts []struct {
		RunID string
		N     int
	}
	err := c.DB.WithContext(ctx).
		Model(&RunMatch{}).
		Select("run_id, COUNT(*) AS n").
		Where("run_id IN ?", ids).
		Group("run_id").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("counting run matches: %w", err)
	}
	perRun := make(map[string]int, len(counts))
	for _, cnt := range counts {
		perRun[cnt.RunID] = cnt.N
	}

	out := make([]models.RunSummary, len(runs))
	for i, r := range runs {
		out[i] = models.RunSummary{
			RunID:        r.ID,
			QueryPath:    r.QueryPath,
			Duration:     r.Duration,
			TotalWindows: r.TotalWindows,
			Candidates:   perRun[r.ID],
			StartedAt:    r.StartedAt,
		}
	}
	return out, nil
}

// GetRun loads a run by id or by a unique id prefix.
func (c *DBClient) GetRun(ctx context.Context, id string) (*models.Report, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ErrRunNotFound
	}

	var runs []Run
	err := c.DB.WithContext(ctx).
		Preload("Matches", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("substr(id, 1, ?) = ?", utf8.RuneCountInString(id), id).
		Limit(2).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}
	switch len(runs) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case 1:
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousRun, id)
	}

	run := runs[0]
	report := &models.Report{
		RunID:     run.ID,
		QueryPath: run.QueryPath,
		Duration:  run.Duration,
		Params: models.Params{
			SegmentLength: run.SegmentLength,
			Overlap:       run.Overlap,
			MinSegments:   run.MinSegments,
		},
		TotalWindows:   run.TotalWindows,
		DroppedWindows: run.DroppedWindows,
		FailedQueries:  run.FailedQueries,
		StartedAt:      run.StartedAt,
		FinishedAt:     run.FinishedAt,
		Results:        make([]models.RankedResult, len(run.Matches)),
	}
	for i, m := range run.Matches {
		report.Results[i] = models.RankedResult{
			CandidatePath: m.CandidatePath,
			HitCount:      m.HitCount,
			TotalWindows:  m.TotalWindows,
			HitPercentage: m.HitPercentage,
			TotalScore:    m.TotalScore,
			MeanScore:     m.MeanScore,
			Spans:         m.Spans,
		}
	}
	return report, nil
}

func (c *DBClient) DeleteRun(ctx context.Context, id string) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", id).Delete(&RunMatch{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&Run{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil
	})
}
