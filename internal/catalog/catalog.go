// Package catalog persists scan runs and their per-track outcomes in
// sqlite, so results outlive the process instead of existing only as log
// lines.
package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const DefaultDBFile = "samplescan.sqlite3"

var errStoreNil = errors.New("catalog store is nil")

// ScanRun is one invocation of the batch scanner against a library.
type ScanRun struct {
	ID          string `gorm:"primaryKey;type:varchar(36)"`
	SnippetPath string `gorm:"index:idx_snippet"`
	MusicDir    string
	Strategy    string
	Tracks      int
	Hits        int
	Skipped     int
	StartedAt   time.Time
	FinishedAt  time.Time
}

// ScanOutcome is one track's result within a run.
type ScanOutcome struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	RunID         string `gorm:"type:varchar(36);index:idx_run"`
	TrackPath     string
	Outcome       string `gorm:"index:idx_outcome"`
	OffsetSeconds float64
	Score         float64
	Error         string
	CreatedAt     time.Time
}

type Store struct {
	DB *gorm.DB
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&ScanRun{}, &ScanOutcome{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &Store{DB: db, db: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateRun registers a new scan run and returns it with a fresh ID.
func (s *Store) CreateRun(snippetPath, musicDir, strategy string) (*ScanRun, error) {
	if s == nil || s.DB == nil {
		return nil, errStoreNil
	}
	run := &ScanRun{
		ID:          uuid.NewString(),
		SnippetPath: snippetPath,
		MusicDir:    musicDir,
		Strategy:    strategy,
		StartedAt:   time.Now(),
	}
	if err := s.DB.Create(run).Error; err != nil {
		return nil, fmt.Errorf("creating scan run: %w", err)
	}
	return run, nil
}

// RecordOutcome appends one track's result to a run.
func (s *Store) RecordOutcome(runID, trackPath, outcome string, offsetSeconds, score float64, errMsg string) error {
	if s == nil || s.DB == nil {
		return errStoreNil
	}
	rec := &ScanOutcome{
		RunID:         runID,
		TrackPath:     trackPath,
		Outcome:       outcome,
		OffsetSeconds: offsetSeconds,
		Score:         score,
		Error:         errMsg,
	}
	if err := s.DB.Create(rec).Error; err != nil {
		return fmt.Errorf("recording outcome for %s: %w", trackPath, err)
	}
	return nil
}

// FinishRun stores the final tallies for a run.
func (s *Store) FinishRun(runID string, tracks, hits, skipped int) error {
	if s == nil || s.DB == nil {
		return errStoreNil
	}
	updates := map[string]any{
		"tracks":      tracks,
		"hits":        hits,
		"skipped":     skipped,
		"finished_at": time.Now(),
	}
	if err := s.DB.Model(&ScanRun{}).Where("id = ?", runID).Updates(updates).Error; err != nil {
		return fmt.Errorf("finishing scan run %s: %w", runID, err)
	}
	return nil
}

// RunOutcomes returns every recorded outcome of a run.
func (s *Store) RunOutcomes(runID string) ([]ScanOutcome, error) {
	if s == nil || s.DB == nil {
		return nil, errStoreNil
	}
	var outcomes []ScanOutcome
	if err := s.DB.Where("run_id = ?", runID).Order("id").Find(&outcomes).Error; err != nil {
		return nil, fmt.Errorf("listing outcomes for run %s: %w", runID, err)
	}
	return outcomes, nil
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns() ([]ScanRun, error) {
	if s == nil || s.DB == nil {
		return nil, errStoreNil
	}
	var runs []ScanRun
	if err := s.DB.Order("started_at desc").Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing scan runs: %w", err)
	}
	return runs, nil
}
