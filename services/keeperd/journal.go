package keeperd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Journal drivers.
const (
	JournalDriverSQLite   = "sqlite"
	JournalDriverPostgres = "postgres"
)

// Attempt outcomes recorded in the journal.
const (
	OutcomeExecuted = "executed"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
)

// ExecutionAttempt is one journal row: a single settlement_execute
// submission and its outcome.
type ExecutionAttempt struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	RunID      uuid.UUID `gorm:"type:uuid;index"`
	BatchID    uint64    `gorm:"index"`
	RuleID     *uint64   `gorm:"index"`
	Executor   string    `gorm:"size:90"`
	Outcome    string    `gorm:"size:16;index"`
	Status     string    `gorm:"size:16"`
	Detail     string    `gorm:"size:512"`
	RuleAcked  bool
	StartedAt  time.Time `gorm:"index"`
	DurationMS int64
}

// Journal persists execution attempts in a relational store so restarts do
// not forget what has already been tried.
type Journal struct {
	db *gorm.DB
}

// OpenJournal connects to the configured backend and migrates the schema.
// The sqlite driver treats the DSN as a file path; postgres expects a full
// connection string.
func OpenJournal(driver, dsn string) (*Journal, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("keeperd: journal dsn required")
	}
	var dialector gorm.Dialector
	switch driver {
	case JournalDriverSQLite:
		dialector = sqlite.Open(dsn)
	case JournalDriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("keeperd: unknown journal driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("keeperd: open journal: %w", err)
	}
	if err := db.AutoMigrate(&ExecutionAttempt{}); err != nil {
		return nil, fmt.Errorf("keeperd: migrate journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close releases the underlying database handle.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record persists one attempt, assigning an id when the caller left it
// empty.
func (j *Journal) Record(ctx context.Context, attempt *ExecutionAttempt) error {
	if j == nil || j.db == nil {
		return errors.New("keeperd: journal not configured")
	}
	if attempt == nil {
		return errors.New("keeperd: attempt required")
	}
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if err := j.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return fmt.Errorf("keeperd: record attempt: %w", err)
	}
	return nil
}

// LastAttempt returns the most recent attempt timestamp for the batch, and
// whether one exists.
func (j *Journal) LastAttempt(ctx context.Context, batchID uint64) (time.Time, bool, error) {
	if j == nil || j.db == nil {
		return time.Time{}, false, errors.New("keeperd: journal not configured")
	}
	var attempt ExecutionAttempt
	err := j.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("started_at DESC").
		First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("keeperd: query last attempt: %w", err)
	}
	return attempt.StartedAt, true, nil
}

// AttemptsBetween returns the attempts started inside the half-open window
// [start, end), oldest first.
func (j *Journal) AttemptsBetween(ctx context.Context, start, end time.Time) ([]ExecutionAttempt, error) {
	if j == nil || j.db == nil {
		return nil, errors.New("keeperd: journal not configured")
	}
	var attempts []ExecutionAttempt
	if err := j.db.WithContext(ctx).
		Where("started_at >= ? AND started_at < ?", start, end).
		Order("started_at ASC").
		Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("keeperd: query attempts: %w", err)
	}
	return attempts, nil
}
