package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/spark-ai/internal/imageprocessor"
	"github.com/example/spark-ai/internal/logging"
	"github.com/example/spark-ai/internal/repository"
	"github.com/example/spark-ai/internal/stats"
)

const (
	// DefaultMaxUploadSize is the largest accepted image, in bytes.
	DefaultMaxUploadSize int64 = 10 * 1024 * 1024
	// DefaultResultTTL bounds how long processing records stay in the cache.
	DefaultResultTTL = time.Hour

	imageContentTypePrefix = "image/"
	statusCompleted        = "completed"
)

// RecordRepository defines the persistence operations needed by the use case.
type RecordRepository interface {
	SaveRecord(ctx context.Context, record *repository.ProcessingRecord) error
	FindByProcessingID(ctx context.Context, processingID string) (*repository.ProcessingRecord, error)
}

// BackendStatusReporter is implemented by collaborators that can report
// their own health.
type BackendStatusReporter interface {
	Status(ctx context.Context) (string, error)
}

// Upload describes a file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// BytesUpload wraps an in-memory payload as an Upload.
func BytesUpload(filename, contentType string, data []byte) Upload {
	return Upload{
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// ProcessResult is the combined enhancement and content response.
type ProcessResult struct {
	ProcessingID     string                          `json:"processing_id"`
	OriginalFilename string                          `json:"original_filename"`
	EnhancedImage    string                          `json:"enhanced_image"`
	GeneratedContent imageprocessor.GeneratedContent `json:"generated_content"`
	ProcessingTime   float64                         `json:"processing_time"`
	Confidence       float64                         `json:"confidence"`
	Status           string                          `json:"status"`
}

// ProcessingStatus is what GetResult reports for an earlier run.
type ProcessingStatus struct {
	ProcessingID     string                          `json:"processing_id"`
	OriginalFilename string                          `json:"original_filename"`
	GeneratedContent imageprocessor.GeneratedContent `json:"generated_content"`
	ProcessingTime   float64                         `json:"processing_time"`
	Confidence       float64                         `json:"confidence"`
	Status           string                          `json:"status"`
	CreatedAt        time.Time                       `json:"created_at"`
}

// Option customises a SparkUseCase.
type Option func(*SparkUseCase)

// WithResultStore enables recording of /process-image runs. Either argument may be nil.
func WithResultStore(cache Cache, repo RecordRepository) Option {
	return func(uc *SparkUseCase) {
		uc.cache = cache
		uc.repo = repo
	}
}

// WithMaxUploadSize overrides DefaultMaxUploadSize.
func WithMaxUploadSize(limit int64) Option {
	return func(uc *SparkUseCase) {
		if limit > 0 {
			uc.maxUploadSize = limit
		}
	}
}

// WithResultTTL overrides DefaultResultTTL.
func WithResultTTL(ttl time.Duration) Option {
	return func(uc *SparkUseCase) {
		if ttl > 0 {
			uc.resultTTL = ttl
		}
	}
}

// SparkUseCase validates uploads and drives the enhancement and content collaborators.
type SparkUseCase struct {
	enhancer       imageprocessor.Enhancer
	generator      imageprocessor.ContentGenerator
	stats          *stats.Stats
	cache          Cache
	repo           RecordRepository
	logger         *zap.Logger
	maxUploadSize  int64
	resultTTL      time.Duration
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	now            func() time.Time
}

// NewSparkUseCase constructs a new use case instance.
func NewSparkUseCase(enhancer imageprocessor.Enhancer, generator imageprocessor.ContentGenerator, st *stats.Stats, logger *zap.Logger, opts ...Option) *SparkUseCase {
	uc := &SparkUseCase{
		enhancer:       enhancer,
		generator:      generator,
		stats:          st,
		logger:         logger.Named("spark_usecase"),
		maxUploadSize:  DefaultMaxUploadSize,
		resultTTL:      DefaultResultTTL,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// MaxUploadSize reports the configured upload ceiling.
func (uc *SparkUseCase) MaxUploadSize() int64 {
	return uc.maxUploadSize
}

// Stats returns the current processing counters.
func (uc *SparkUseCase) Stats() stats.Snapshot {
	return uc.stats.Snapshot()
}

// BackendStatus reports the remote backend state when the enhancer exposes one.
func (uc *SparkUseCase) BackendStatus(ctx context.Context) (string, bool) {
	reporter, ok := uc.enhancer.(BackendStatusReporter)
	if !ok {
		return "", false
	}
	state, err := reporter.Status(ctx)
	if err != nil {
		uc.logger.Warn("backend health check failed", zap.Error(err))
		return "UNREACHABLE", true
	}
	return state, true
}

// ValidateUpload checks the declared content type and size of an upload.
func (uc *SparkUseCase) ValidateUpload(upload Upload) error {
	if !strings.HasPrefix(upload.ContentType, imageContentTypePrefix) {
		return invalidInput("File must be an image")
	}
	if upload.Size > uc.maxUploadSize {
		return uc.UploadTooLarge()
	}
	return nil
}

// UploadTooLarge is the rejection for files over the upload ceiling.
func (uc *SparkUseCase) UploadTooLarge() error {
	return invalidInput(fmt.Sprintf("File size must be less than %s", formatSize(uc.maxUploadSize)))
}

// ProcessImage runs enhancement and content generation for one upload.
func (uc *SparkUseCase) ProcessImage(ctx context.Context, upload Upload) (*ProcessResult, error) {
	requestID := logging.RequestID(ctx)
	opLogger := logging.WithOperation(uc.logger, "usecase.process_image", requestID)

	data, err := uc.readUpload(upload, requestID)
	if err != nil {
		return nil, err
	}

	enhanced, err := uc.enhance(ctx, data, requestID)
	if err != nil {
		return nil, err
	}

	content, err := uc.generate(ctx, data, requestID)
	if err != nil {
		return nil, err
	}

	result := &ProcessResult{
		ProcessingID:     fmt.Sprintf("proc_%d", uc.now().Unix()),
		OriginalFilename: upload.Filename,
		EnhancedImage:    enhanced.EnhancedImage,
		GeneratedContent: *content,
		ProcessingTime:   enhanced.ProcessingTime,
		Confidence:       enhanced.Confidence,
		Status:           statusCompleted,
	}
	opLogger.Info("image processed",
		zap.String("processing_id", result.ProcessingID),
		zap.String("filename", upload.Filename),
		zap.Float64("processing_time", result.ProcessingTime))

	uc.recordResult(ctx, requestID, result)
	return result, nil
}

// EnhanceImage runs only the enhancement collaborator.
func (uc *SparkUseCase) EnhanceImage(ctx context.Context, upload Upload) (*imageprocessor.EnhancementResult, error) {
	requestID := logging.RequestID(ctx)
	data, err := uc.readUpload(upload, requestID)
	if err != nil {
		return nil, err
	}
	return uc.enhance(ctx, data, requestID)
}

// GenerateContent runs only the content collaborator.
func (uc *SparkUseCase) GenerateContent(ctx context.Context, upload Upload) (*imageprocessor.GeneratedContent, error) {
	requestID := logging.RequestID(ctx)
	data, err := uc.readUpload(upload, requestID)
	if err != nil {
		return nil, err
	}
	return uc.generate(ctx, data, requestID)
}

// GetResult looks up a recorded run, trying the cache before the repository.
func (uc *SparkUseCase) GetResult(ctx context.Context, processingID string) (*ProcessingStatus, error) {
	requestID := logging.RequestID(ctx)
	opLogger := logging.WithOperation(uc.logger, "usecase.get_result", requestID)

	if uc.cache != nil {
		cached, err := uc.withRedisGet(ctx, requestID, "cache.get.result", processingCacheKey(processingID))
		if err == nil {
			var status ProcessingStatus
			if err := json.Unmarshal([]byte(cached), &status); err == nil {
				return &status, nil
			}
			opLogger.Warn("failed to decode cached result", zap.String("processing_id", processingID))
		} else if !errors.Is(err, redis.Nil) {
			opLogger.Warn("failed to read cache", zap.Error(err))
		}
	}

	if uc.repo == nil {
		return nil, logging.NewOperationError("usecase.get_result", requestID, ErrNotFound)
	}

	record, err := uc.repo.FindByProcessingID(ctx, processingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, logging.NewOperationError("usecase.get_result", requestID, ErrNotFound)
		}
		return nil, logging.NewOperationError("usecase.get_result", requestID, err)
	}
	return statusFromRecord(record), nil
}

func (uc *SparkUseCase) readUpload(upload Upload, requestID string) ([]byte, error) {
	if err := uc.ValidateUpload(upload); err != nil {
		return nil, logging.NewOperationError("usecase.validate_upload", requestID, err)
	}
	if upload.Open == nil {
		return nil, logging.NewOperationError("usecase.read_upload", requestID, processingFailed("Failed to read file", errors.New("no file content")))
	}

	src, err := upload.Open()
	if err != nil {
		return nil, logging.NewOperationError("usecase.read_upload", requestID, processingFailed("Failed to read file", err))
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, uc.maxUploadSize+1))
	if err != nil {
		return nil, logging.NewOperationError("usecase.read_upload", requestID, processingFailed("Failed to read file", err))
	}
	if int64(len(data)) > uc.maxUploadSize {
		return nil, logging.NewOperationError("usecase.validate_upload", requestID, uc.UploadTooLarge())
	}
	return data, nil
}

func (uc *SparkUseCase) enhance(ctx context.Context, data []byte, requestID string) (*imageprocessor.EnhancementResult, error) {
	result, err := uc.enhancer.Enhance(ctx, data)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.enhance_image", requestID, processingFailed("Image processing failed", logging.Cause(err)))
		logging.WithOperation(uc.logger, "usecase.enhance_image", requestID).Error("enhancement failed", zap.Error(err))
		return nil, wrapped
	}

	uc.stats.Record(time.Duration(result.ProcessingTime * float64(time.Second)))
	return result, nil
}

func (uc *SparkUseCase) generate(ctx context.Context, data []byte, requestID string) (*imageprocessor.GeneratedContent, error) {
	content, err := uc.generator.GenerateContent(ctx, data)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.generate_content", requestID, processingFailed("Content generation failed", logging.Cause(err)))
		logging.WithOperation(uc.logger, "usecase.generate_content", requestID).Error("content generation failed", zap.Error(err))
		return nil, wrapped
	}
	return content, nil
}

// recordResult stores the run for later lookup. Failures are logged only;
// the client already has its answer.
func (uc *SparkUseCase) recordResult(ctx context.Context, requestID string, result *ProcessResult) {
	if uc.cache == nil && uc.repo == nil {
		return
	}
	opLogger := logging.WithOperation(uc.logger, "usecase.record_result", requestID)

	status := ProcessingStatus{
		ProcessingID:     result.ProcessingID,
		OriginalFilename: result.OriginalFilename,
		GeneratedContent: result.GeneratedContent,
		ProcessingTime:   result.ProcessingTime,
		Confidence:       result.Confidence,
		Status:           result.Status,
		CreatedAt:        uc.now().UTC(),
	}

	if uc.repo != nil {
		content, err := json.Marshal(status.GeneratedContent)
		if err != nil {
			opLogger.Error("failed to serialize generated content", zap.Error(err))
			return
		}
		record := &repository.ProcessingRecord{
			ProcessingID:     status.ProcessingID,
			RequestID:        requestID,
			OriginalFilename: status.OriginalFilename,
			GeneratedContent: string(content),
			ProcessingTime:   status.ProcessingTime,
			Confidence:       status.Confidence,
			Status:           status.Status,
			CreatedAt:        status.CreatedAt,
		}
		if err := uc.repo.SaveRecord(ctx, record); err != nil {
			opLogger.Warn("failed to persist processing record", zap.Error(err))
		}
	}

	if uc.cache != nil {
		serialized, err := json.Marshal(status)
		if err != nil {
			opLogger.Error("failed to serialize processing status", zap.Error(err))
			return
		}
		if err := uc.withRedisRetry(ctx, requestID, "cache.set.result", func() error {
			return uc.cache.Set(ctx, processingCacheKey(status.ProcessingID), string(serialized), uc.resultTTL)
		}); err != nil {
			opLogger.Warn("failed to cache processing status", zap.Error(err))
		}
	}
}

func statusFromRecord(record *repository.ProcessingRecord) *ProcessingStatus {
	status := &ProcessingStatus{
		ProcessingID:     record.ProcessingID,
		OriginalFilename: record.OriginalFilename,
		ProcessingTime:   record.ProcessingTime,
		Confidence:       record.Confidence,
		Status:           record.Status,
		CreatedAt:        record.CreatedAt,
	}
	// A malformed column leaves the content empty rather than failing the lookup.
	_ = json.Unmarshal([]byte(record.GeneratedContent), &status.GeneratedContent)
	return status
}

func formatSize(limit int64) string {
	const mb = 1024 * 1024
	if limit%mb == 0 {
		return fmt.Sprintf("%dMB", limit/mb)
	}
	return fmt.Sprintf("%d bytes", limit)
}
