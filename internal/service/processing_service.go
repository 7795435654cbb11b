package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/mtb-case-api/pkg/jobs"
	"github.com/noah-isme/mtb-case-api/pkg/processing"
	"github.com/noah-isme/mtb-case-api/pkg/storage"
)

const processCaseJobType = "process_case"

// DispatchFile points at a stored clinical document.
type DispatchFile struct {
	Name        string
	ContentType string
	Key         string
}

// DispatchJob is everything the processing service needs to summarise a case.
type DispatchJob struct {
	CaseID         string
	UserID         string
	AdditionalData string
	Files          []DispatchFile
}

type processingClient interface {
	ProcessCase(ctx context.Context, req processing.Request) (*processing.Result, error)
}

type jobQueue interface {
	Enqueue(job jobs.Job) error
}

// ProcessingService forwards persisted cases to the remote processing
// endpoint on a background queue. Failures are logged and counted only.
type ProcessingService struct {
	client  processingClient
	blobs   storage.BlobStore
	queue   jobQueue
	metrics *MetricsService
	logger  *zap.Logger
}

// NewProcessingService constructs the dispatcher. Call AttachQueue before Dispatch.
func NewProcessingService(client processingClient, blobs storage.BlobStore, metrics *MetricsService, logger *zap.Logger) *ProcessingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcessingService{client: client, blobs: blobs, metrics: metrics, logger: logger}
}

// AttachQueue sets the queue jobs are enqueued on. The queue's handler is
// expected to be HandleJob.
func (s *ProcessingService) AttachQueue(queue jobQueue) {
	s.queue = queue
}

// Dispatch enqueues job and returns immediately.
func (s *ProcessingService) Dispatch(ctx context.Context, job DispatchJob) error {
	if s.queue == nil {
		return errors.New("processing queue not attached")
	}
	if err := s.queue.Enqueue(jobs.Job{Type: processCaseJobType, Payload: job}); err != nil {
		s.metrics.RecordDispatch(DispatchResultDropped, 0)
		s.logger.Warn("case dispatch dropped", zap.String("case_id", job.CaseID), zap.Error(err))
		return fmt.Errorf("enqueue case %s: %w", job.CaseID, err)
	}
	s.logger.Debug("case queued for processing", zap.String("case_id", job.CaseID), zap.Int("files", len(job.Files)))
	return nil
}

// HandleJob is the queue handler. Returning an error lets the queue retry
// when retries are enabled.
func (s *ProcessingService) HandleJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(DispatchJob)
	if !ok {
		s.logger.Error("unexpected processing job payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}
	return s.Process(ctx, payload)
}

// Process performs one synchronous processing call for job.
func (s *ProcessingService) Process(ctx context.Context, job DispatchJob) error {
	logger := s.logger.With(zap.String("case_id", job.CaseID))

	files := make([]processing.File, 0, len(job.Files))
	closers := make([]io.Closer, 0, len(job.Files))
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()
	for _, f := range job.Files {
		body, err := s.blobs.Get(ctx, f.Key)
		if err != nil {
			logger.Warn("skipping unreadable case file", zap.String("key", f.Key), zap.Error(err))
			continue
		}
		closers = append(closers, body)
		files = append(files, processing.File{Name: f.Name, ContentType: f.ContentType, Body: body})
	}

	start := time.Now()
	res, err := s.client.ProcessCase(ctx, processing.Request{
		CaseID:         job.CaseID,
		UserID:         job.UserID,
		AdditionalData: job.AdditionalData,
		Files:          files,
	})
	elapsed := time.Since(start)
	if err != nil {
		var statusErr *processing.StatusError
		if errors.As(err, &statusErr) {
			s.metrics.RecordDispatch(DispatchResultRejected, elapsed)
			logger.Error("processing service rejected case", zap.Int("status", statusErr.StatusCode), zap.String("body", statusErr.Body))
		} else {
			s.metrics.RecordDispatch(DispatchResultError, elapsed)
			logger.Error("processing service call failed", zap.Error(err))
		}
		return err
	}

	s.metrics.RecordDispatch(DispatchResultSuccess, elapsed)
	logger.Info("case submitted for processing", zap.Int("status", res.StatusCode), zap.Int("files", len(files)), zap.Duration("elapsed", elapsed))
	return nil
}
