package history

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GraphActivation records one accepted graph.
type GraphActivation struct {
	ID uint `gorm:"primaryKey"`
	// PromptID is the id the graph was submitted under.
	PromptID string `gorm:"index"`
	// Modalities is a comma-separated list of accepted input modalities.
	Modalities  string
	NodeCount   int
	ActivatedAt time.Time `gorm:"index"`
}

// ExecutionRecord records one completed or recovered frame cycle.
type ExecutionRecord struct {
	ID       uint   `gorm:"primaryKey"`
	FrameID  uint64 `gorm:"index"`
	Modality string
	// Backend is the address or index of the backend that ran the cycle.
	Backend string
	// Status is "ok" or the error code the cycle recovered from.
	Status    string
	Duration  time.Duration
	CreatedAt time.Time `gorm:"index"`
}

// Store wraps the sqlite database. A nil *Store is valid for the
// record methods and persists nothing, so callers never need to guard.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open opens or creates the database at path and migrates the schema.
// Use ":memory:" for an ephemeral store.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if err := db.AutoMigrate(&GraphActivation{}, &ExecutionRecord{}); err != nil {
		return nil, fmt.Errorf("migrate history schema: %w", err)
	}
	logger.Info("history store opened", zap.String("path", path))
	return &Store{db: db, logger: logger.With(zap.String("component", "history"))}, nil
}

// RecordActivation persists an accepted graph.
func (s *Store) RecordActivation(a *GraphActivation) error {
	if s == nil {
		return nil
	}
	if a.ActivatedAt.IsZero() {
		a.ActivatedAt = time.Now()
	}
	if err := s.db.Create(a).Error; err != nil {
		return fmt.Errorf("record activation: %w", err)
	}
	return nil
}

// RecordExecution persists one frame cycle.
func (s *Store) RecordExecution(r *ExecutionRecord) error {
	if s == nil {
		return nil
	}
	if err := s.db.Create(r).Error; err != nil {
		return fmt.Errorf("record execution: %w", err)
	}
	return nil
}

// RecentActivations returns the newest graph activations, most recent
// first.
func (s *Store) RecentActivations(limit int) ([]GraphActivation, error) {
	var records []GraphActivation
	err := s.db.Order("activated_at DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("query activations: %w", err)
	}
	return records, nil
}

// RecentExecutions returns the newest records, most recent first.
func (s *Store) RecentExecutions(limit int) ([]ExecutionRecord, error) {
	var records []ExecutionRecord
	err := s.db.Order("created_at DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	return records, nil
}

// ExecutionsForFrame returns every record filed under a frame id.
func (s *Store) ExecutionsForFrame(frameID uint64) ([]ExecutionRecord, error) {
	var records []ExecutionRecord
	err := s.db.Where("frame_id = ?", frameID).Order("created_at ASC").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("query executions for frame: %w", err)
	}
	return records, nil
}

// Prune deletes execution records older than the cutoff.
func (s *Store) Prune(olderThan time.Time) (int64, error) {
	res := s.db.Where("created_at < ?", olderThan).Delete(&ExecutionRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune executions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
