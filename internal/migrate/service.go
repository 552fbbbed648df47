package migrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/authshift/authshift/internal/source"
	"github.com/authshift/authshift/internal/target"
	"go.uber.org/zap"
)

const defaultBatchSize = 5000

// bulkErrorRecordID labels batch-level failures in the error log; a rolled
// back batch records one synthetic entry rather than one per record.
const bulkErrorRecordID = "bulk"

var (
	errMissingPaginator = errors.New("source paginator is required")
	errMissingWriter    = errors.New("bulk writer is required")
	errMissingTracker   = errors.New("state tracker is required")
	noOpLogger          = zap.NewNop()
)

// ServiceError carries a stable operation.reason code alongside its cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "migrate.service.new"
	opRun        = "migrate.run"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig describes the dependencies for the migration orchestrator.
type ServiceConfig struct {
	Paginator       *source.Paginator
	Writer          *BulkWriter
	Tracker         *Tracker
	Capabilities    target.Capabilities
	IDProvider      IDProvider
	TempEmailDomain string
	BatchSize       int
	Clock           func() time.Time
	Logger          *zap.Logger
}

// Service drives the migration loop: paginate, transform, write, update
// state, until the source is exhausted. Batches run strictly sequentially;
// the cursor advances only from the last record of the committed batch.
type Service struct {
	paginator   *source.Paginator
	writer      *BulkWriter
	tracker     *Tracker
	transformer *Transformer
	caps        target.Capabilities
	ids         IDProvider
	batchSize   int
	clock       func() time.Time
	logger      *zap.Logger
}

// NewService constructs the orchestrator. Capabilities are resolved by the
// caller once per process and immutable for every run.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Paginator == nil {
		return nil, newServiceError(opServiceNew, "missing_paginator", errMissingPaginator)
	}
	if cfg.Writer == nil {
		return nil, newServiceError(opServiceNew, "missing_writer", errMissingWriter)
	}
	if cfg.Tracker == nil {
		return nil, newServiceError(opServiceNew, "missing_tracker", errMissingTracker)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	ids := cfg.IDProvider
	if ids == nil {
		ids = NewUUIDProvider()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		paginator: cfg.Paginator,
		writer:    cfg.Writer,
		tracker:   cfg.Tracker,
		transformer: NewTransformer(TransformerConfig{
			Capabilities:    cfg.Capabilities,
			TempEmailDomain: cfg.TempEmailDomain,
			Clock:           clock,
		}),
		caps:      cfg.Capabilities,
		ids:       ids,
		batchSize: batchSize,
		clock:     clock,
		logger:    logger,
	}, nil
}

// RunOptions tunes a single migration run.
type RunOptions struct {
	BatchSize    int
	ResumeFromID string
}

// Tracker exposes the state tracker backing this service.
func (s *Service) Tracker() *Tracker {
	return s.tracker
}

// Run executes one migration to completion. A fatal error marks the run
// failed and is returned; the last committed cursor stays valid as a resume
// point either way. Pausing via the tracker stops the loop cleanly between
// batches without finalizing the run.
func (s *Service) Run(ctx context.Context, opts RunOptions) (Snapshot, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = s.batchSize
	}

	total, err := s.paginator.CountRemaining(ctx, opts.ResumeFromID)
	if err != nil {
		s.tracker.Fail()
		return s.tracker.Snapshot(), newServiceError(opRun, "count_failed", err)
	}

	s.tracker.Start(total, batchSize)
	s.logger.Info("migration started",
		zap.Int64("total_records", total),
		zap.Int("batch_size", batchSize),
		zap.String("resume_from_id", opts.ResumeFromID))

	lastProcessedID := opts.ResumeFromID
	batchNumber := 0

	for {
		select {
		case <-ctx.Done():
			s.tracker.Fail()
			return s.tracker.Snapshot(), newServiceError(opRun, "canceled", ctx.Err())
		default:
		}

		if s.tracker.Snapshot().Status == StatusPaused {
			s.logger.Info("migration paused",
				zap.String("last_processed_id", lastProcessedID),
				zap.Int("batches_completed", batchNumber))
			return s.tracker.Snapshot(), nil
		}

		batch, err := s.paginator.FetchBatch(ctx, lastProcessedID, batchSize)
		if err != nil {
			s.tracker.Fail()
			return s.tracker.Snapshot(), newServiceError(opRun, "fetch_failed", err)
		}
		if len(batch) == 0 {
			break
		}

		batchNumber++
		batchStartedAt := s.clock()

		stats := s.processBatch(ctx, batch)

		lastProcessedID = batch[len(batch)-1].ID
		s.tracker.UpdateProgress(len(batch), stats.success, stats.failure, stats.skip, lastProcessedID)
		for _, recordError := range stats.errors {
			s.tracker.AddError(recordError.RecordID, recordError.Message)
		}

		fields := []zap.Field{
			zap.Int("batch", batchNumber),
			zap.Int("batch_records", len(batch)),
			zap.Int("success", stats.success),
			zap.Int("skip", stats.skip),
			zap.Int("failure", stats.failure),
			zap.Int("progress_percent", s.tracker.Progress()),
			zap.Duration("batch_elapsed", s.clock().Sub(batchStartedAt)),
			zap.String("last_processed_id", lastProcessedID),
		}
		if eta, ok := s.tracker.ETA(); ok {
			fields = append(fields, zap.String("eta", eta))
		}
		s.logger.Info("batch processed", fields...)

		if len(batch) < batchSize {
			break
		}
	}

	s.tracker.Complete()
	final := s.tracker.Snapshot()
	s.logSummary(final)
	return final, nil
}

type batchStats struct {
	success int
	failure int
	skip    int
	errors  []RecordError
}

// processBatch transforms the batch and writes the surviving records in one
// transaction. A write failure counts every surviving record as failed and
// records one synthetic error entry.
func (s *Service) processBatch(ctx context.Context, batch []source.User) batchStats {
	var stats batchStats
	users := make([]UserInsert, 0, len(batch))
	survivors := make([]source.User, 0, len(batch))

	for _, user := range batch {
		insert, ok := s.transformer.Transform(user)
		if !ok {
			stats.skip++
			continue
		}
		users = append(users, insert)
		survivors = append(survivors, user)
	}

	if len(users) == 0 {
		return stats
	}

	accounts := make([]AccountInsert, 0, len(users))
	for _, user := range survivors {
		derived, err := DeriveAccounts(user, s.caps, s.ids)
		if err != nil {
			s.logger.Error("account derivation failed", zap.Error(err), zap.String("user_id", user.ID))
			stats.failure = len(users)
			stats.errors = append(stats.errors, RecordError{RecordID: bulkErrorRecordID, Message: err.Error()})
			return stats
		}
		accounts = append(accounts, derived...)
	}

	if err := s.writer.WriteBatch(ctx, users, accounts); err != nil {
		s.logger.Error("batch write failed, rolled back", zap.Error(err), zap.Int("batch_records", len(users)))
		stats.failure = len(users)
		stats.errors = append(stats.errors, RecordError{RecordID: bulkErrorRecordID, Message: err.Error()})
		return stats
	}

	stats.success = len(users)
	return stats
}

func (s *Service) logSummary(final Snapshot) {
	fields := []zap.Field{
		zap.Int64("success", final.SuccessCount),
		zap.Int64("skipped", final.SkipCount),
		zap.Int64("failed", final.FailureCount),
		zap.Int("batches", final.CurrentBatch),
	}
	if final.StartedAt != nil && final.CompletedAt != nil {
		fields = append(fields, zap.Duration("elapsed", final.CompletedAt.Sub(*final.StartedAt)))
	}
	s.logger.Info("migration completed", fields...)

	for index, recordError := range final.Errors {
		if index >= 10 {
			break
		}
		s.logger.Warn("migration error",
			zap.String("record_id", recordError.RecordID),
			zap.String("message", recordError.Message))
	}
}
