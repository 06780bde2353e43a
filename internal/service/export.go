package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/calin/convohist/internal/crm"
	"github.com/calin/convohist/internal/domain"
	"github.com/calin/convohist/internal/export"
	"github.com/calin/convohist/internal/logger"
	"github.com/calin/convohist/internal/repository"
	"github.com/calin/convohist/internal/storage"
	"github.com/google/uuid"
)

// Sentinel errors surfaced to the API layer.
var (
	ErrJobNotFound = errors.New("export job not found")
	ErrJobNotReady = errors.New("export job not ready")
)

// historyFetcher is the aggregator capability the controller depends on.
type historyFetcher interface {
	FetchContactHistory(ctx context.Context, locationID, contactID string, observer crm.ProgressFunc) ([]domain.Message, error)
}

// documentRenderer produces the export artifact from an ordered sequence.
type documentRenderer interface {
	Render(w io.Writer, contact domain.Contact, messages []domain.Message, exportedAt time.Time) error
}

// ExportService owns the lifecycle of export jobs: creation, execution in
// a detached worker, status queries, artifact retrieval, and TTL reaping.
type ExportService struct {
	registry  *Registry
	history   historyFetcher
	renderer  documentRenderer
	storage   storage.ObjectStorage
	audit     *repository.ExportHistoryRepository
	logger    *logger.Logger
	retention time.Duration
	reapEvery time.Duration
}

// ExportServiceConfig holds lifecycle settings for the export service.
type ExportServiceConfig struct {
	Retention    time.Duration
	ReapInterval time.Duration
}

// NewExportService creates a new export service.
// Parameters:
//   - registry: job registry, owned by the caller.
//   - history: history aggregator.
//   - renderer: document renderer.
//   - objectStorage: artifact store.
//   - audit: export history repository; may be nil to disable auditing.
//   - log: logger instance.
//   - cfg: retention and reap settings; zero values fall back to defaults.
// Returns:
//   - *ExportService: initialized service.
func NewExportService(
	registry *Registry,
	history historyFetcher,
	renderer documentRenderer,
	objectStorage storage.ObjectStorage,
	audit *repository.ExportHistoryRepository,
	log *logger.Logger,
	cfg *ExportServiceConfig,
) *ExportService {
	retention := cfg.Retention
	if retention <= 0 {
		retention = time.Hour
	}
	reapEvery := cfg.ReapInterval
	if reapEvery <= 0 {
		reapEvery = 5 * time.Minute
	}
	return &ExportService{
		registry:  registry,
		history:   history,
		renderer:  renderer,
		storage:   objectStorage,
		audit:     audit,
		logger:    log,
		retention: retention,
		reapEvery: reapEvery,
	}
}

// StartExportRequest describes one export request.
type StartExportRequest struct {
	ContactID  string
	LocationID string
	Contact    domain.Contact
	DateRange  *domain.DateRange
}

// StartExport creates a new export job and returns its id immediately. The
// pipeline runs in a detached worker goroutine.
func (s *ExportService) StartExport(ctx context.Context, req *StartExportRequest) (string, error) {
	if req.ContactID == "" || req.LocationID == "" {
		return "", fmt.Errorf("contact id and location id are required")
	}

	job := &domain.ExportJob{
		ID:         uuid.New().String(),
		ContactID:  req.ContactID,
		LocationID: req.LocationID,
		Contact:    req.Contact,
		Status:     domain.JobStatusProcessing,
		Progress:   domain.ExportProgress{Phase: domain.PhaseStarting},
		CreatedAt:  time.Now(),
	}
	s.registry.Put(job)

	s.logger.WithFields(logger.Fields{
		logger.FieldJobID:      job.ID,
		logger.FieldContactID:  req.ContactID,
		logger.FieldLocationID: req.LocationID,
	}).Info("Export job created")

	go s.run(job.ID, req)

	return job.ID, nil
}

// run executes one export job end to end. It detaches from the request
// context: the job must survive the HTTP request that created it.
func (s *ExportService) run(jobID string, req *StartExportRequest) {
	ctx := logger.WithFields(context.Background(), logger.Fields{
		logger.FieldJobID:      jobID,
		logger.FieldContactID:  req.ContactID,
		logger.FieldLocationID: req.LocationID,
	})
	start := time.Now()

	messages, err := s.history.FetchContactHistory(ctx, req.LocationID, req.ContactID, func(p domain.ExportProgress) {
		// Last-write-wins progress mirroring; a job removed by the reaper
		// is detected at the next stage boundary
		s.registry.Update(jobID, func(job *domain.ExportJob) {
			job.Progress = p
		})
	})
	if err != nil {
		s.fail(ctx, jobID, req, fmt.Errorf("history aggregation failed: %w", err))
		return
	}

	messages = export.FilterByDateRange(messages, req.DateRange)

	alive := s.registry.Update(jobID, func(job *domain.ExportJob) {
		job.Progress = domain.ExportProgress{
			Phase:         domain.PhaseGeneratingPDF,
			TotalMessages: len(messages),
		}
	})
	if !alive {
		logger.CtxWarn(ctx, "Job removed while aggregating, abandoning export")
		return
	}

	exportedAt := time.Now()
	fileName := artifactFileName(req.Contact.Name, jobID)

	var buf bytes.Buffer
	if err := s.renderer.Render(&buf, req.Contact, messages, exportedAt); err != nil {
		s.fail(ctx, jobID, req, fmt.Errorf("document rendering failed: %w", err))
		return
	}

	if err := s.storage.Upload(ctx, fileName, bytes.NewReader(buf.Bytes()), int64(buf.Len()), "application/pdf"); err != nil {
		s.fail(ctx, jobID, req, fmt.Errorf("failed to store artifact: %w", err))
		return
	}

	alive = s.registry.Update(jobID, func(job *domain.ExportJob) {
		job.Status = domain.JobStatusComplete
		job.FileName = fileName
		job.StorageKey = fileName
		job.Progress = domain.ExportProgress{
			Phase:         domain.PhaseComplete,
			TotalMessages: len(messages),
		}
	})
	if !alive {
		// Reaped mid-flight after upload; remove the orphaned artifact
		if err := s.storage.Delete(ctx, fileName); err != nil {
			logger.CtxError(ctx, "Failed to remove orphaned artifact %s: %v", fileName, err)
		}
		logger.CtxWarn(ctx, "Job removed while rendering, abandoning export")
		return
	}

	s.recordHistory(ctx, &domain.ExportHistory{
		JobID:        jobID,
		ContactID:    req.ContactID,
		LocationID:   req.LocationID,
		ContactName:  req.Contact.Name,
		Status:       domain.JobStatusComplete,
		FileName:     fileName,
		MessageCount: len(messages),
	})

	logger.With(logger.Fields{
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
		logger.FieldCount:      len(messages),
	}).Info(ctx, "Export job completed: file=%s", fileName)
}

func (s *ExportService) fail(ctx context.Context, jobID string, req *StartExportRequest, err error) {
	logger.CtxError(ctx, "Export job failed: %v", err)

	alive := s.registry.Update(jobID, func(job *domain.ExportJob) {
		job.Status = domain.JobStatusFailed
		job.Error = err.Error()
	})
	if !alive {
		return
	}

	s.recordHistory(ctx, &domain.ExportHistory{
		JobID:       jobID,
		ContactID:   req.ContactID,
		LocationID:  req.LocationID,
		ContactName: req.Contact.Name,
		Status:      domain.JobStatusFailed,
		Error:       err.Error(),
	})
}

func (s *ExportService) recordHistory(ctx context.Context, h *domain.ExportHistory) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Create(ctx, h); err != nil {
		logger.CtxError(ctx, "Failed to record export history: %v", err)
	}
}

// StatusResponse is the caller-visible job snapshot.
type StatusResponse struct {
	JobID    string                `json:"jobId"`
	Status   domain.JobStatus      `json:"status"`
	Progress domain.ExportProgress `json:"progress"`
	FileName string                `json:"fileName,omitempty"`
	Error    string                `json:"error,omitempty"`
}

// GetStatus returns a snapshot of the job. It never mutates the job.
func (s *ExportService) GetStatus(jobID string) (*StatusResponse, error) {
	job, ok := s.registry.Get(jobID)
	if !ok {
		return nil, ErrJobNotFound
	}
	return &StatusResponse{
		JobID:    job.ID,
		Status:   job.Status,
		Progress: job.Progress,
		FileName: job.FileName,
		Error:    job.Error,
	}, nil
}

// OpenArtifact returns a reader over a completed job's document plus its
// file name. ErrJobNotReady is returned while the job is still processing
// or has failed; ErrJobNotFound when the job or its artifact is gone.
func (s *ExportService) OpenArtifact(ctx context.Context, jobID string) (io.ReadCloser, string, error) {
	job, ok := s.registry.Get(jobID)
	if !ok {
		return nil, "", ErrJobNotFound
	}
	if job.Status != domain.JobStatusComplete || job.StorageKey == "" {
		return nil, "", ErrJobNotReady
	}

	rc, err := s.storage.Download(ctx, job.StorageKey)
	if err != nil {
		return nil, "", fmt.Errorf("%w: artifact missing: %s", ErrJobNotFound, job.StorageKey)
	}
	return rc, job.FileName, nil
}

// StartReaper launches the periodic TTL sweep. It stops when ctx is
// cancelled.
func (s *ExportService) StartReaper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.reapEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.reapOnce(ctx)
			}
		}
	}()
}

// reapOnce removes every job older than the retention window, deleting its
// artifact first. Processing jobs are not special-cased; their workers
// notice the missing registry entry and exit quietly.
func (s *ExportService) reapOnce(ctx context.Context) {
	cutoff := time.Now().Add(-s.retention)
	for _, job := range s.registry.Snapshot() {
		if job.CreatedAt.After(cutoff) {
			continue
		}

		if job.StorageKey != "" {
			if err := s.storage.Delete(ctx, job.StorageKey); err != nil {
				s.logger.WithField(logger.FieldJobID, job.ID).WithError(err).Error("Failed to delete expired artifact")
			}
		}
		s.registry.Delete(job.ID)

		s.logger.WithFields(logger.Fields{
			logger.FieldJobID:  job.ID,
			logger.FieldStatus: string(job.Status),
		}).Info("Reaped expired export job")
	}
}

var fileNameSanitizer = regexp.MustCompile(`[^a-z0-9]+`)

// artifactFileName builds the deterministic artifact name from a sanitized
// contact name and a short slice of the job id.
func artifactFileName(contactName, jobID string) string {
	name := fileNameSanitizer.ReplaceAllString(strings.ToLower(contactName), "-")
	name = strings.Trim(name, "-")
	if name == "" {
		name = "contact"
	}
	short := jobID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("conversation-history-%s-%s.pdf", name, short)
}
