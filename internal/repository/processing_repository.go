package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/spark-ai/internal/logging"
)

// ErrNotFound is returned when no record matches the lookup.
var ErrNotFound = errors.New("processing record not found")

// ProcessingRecord is a completed /process-image run.
type ProcessingRecord struct {
	ID               uint      `gorm:"primaryKey" json:"-"`
	ProcessingID     string    `gorm:"column:processing_id;index;size:64" json:"processing_id"`
	RequestID        string    `gorm:"column:request_id;size:64" json:"request_id"`
	OriginalFilename string    `gorm:"column:original_filename;size:255" json:"original_filename"`
	GeneratedContent string    `gorm:"column:generated_content;type:text" json:"-"`
	ProcessingTime   float64   `gorm:"column:processing_time" json:"processing_time"`
	Confidence       float64   `gorm:"column:confidence" json:"confidence"`
	Status           string    `gorm:"column:status;size:32" json:"status"`
	CreatedAt        time.Time `gorm:"column:created_at" json:"created_at"`
}

func (ProcessingRecord) TableName() string {
	return "processing_records"
}

// ProcessingRepository persists processing records with gorm.
type ProcessingRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewProcessingRepository creates a new repository instance.
func NewProcessingRepository(db *gorm.DB, logger *zap.Logger) *ProcessingRepository {
	return &ProcessingRepository{
		db:             db,
		logger:         logger.Named("processing_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *ProcessingRepository) AutoMigrate(ctx context.Context) error {
	return r.executeWithRetry(ctx, "repository.auto_migrate", "", func() error {
		return r.db.WithContext(ctx).AutoMigrate(&ProcessingRecord{})
	})
}

// SaveRecord inserts a processing record.
func (r *ProcessingRepository) SaveRecord(ctx context.Context, record *ProcessingRecord) error {
	return r.executeWithRetry(ctx, "repository.save_record", record.RequestID, func() error {
		return r.db.WithContext(ctx).Create(record).Error
	})
}

// FindByProcessingID returns the newest record with the given processing id.
// Ids have one-second resolution, so several rows may share one.
func (r *ProcessingRepository) FindByProcessingID(ctx context.Context, processingID string) (*ProcessingRecord, error) {
	var record ProcessingRecord
	err := r.executeWithRetry(ctx, "repository.find_by_processing_id", "", func() error {
		return r.db.WithContext(ctx).
			Where("processing_id = ?", processingID).
			Order("created_at DESC").
			First(&record).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *ProcessingRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, requestID)

	var err error
	for attempt := 0; attempt < r.retryAttempts || attempt == 0; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if errors.Is(err, gorm.ErrRecordNotFound) {
			return logging.NewOperationError(operation, requestID, err)
		}

		if !IsTransientError(err) || attempt >= r.retryAttempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

// IsTransientError reports whether err looks like a timeout worth retrying.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
