package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-portal-api/internal/authz"
	"github.com/noah-isme/campus-portal-api/internal/models"
	"github.com/noah-isme/campus-portal-api/pkg/export"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
	"github.com/noah-isme/campus-portal-api/pkg/jobs"
)

type reportRepository interface {
	FindByID(ctx context.Context, id string) (*models.ReportJob, error)
	Create(ctx context.Context, job *models.ReportJob) error
	MarkProcessing(ctx context.Context, id string) error
	MarkFinished(ctx context.Context, id, fileRef string, finishedAt time.Time) error
	MarkFailed(ctx context.Context, id, message string, finishedAt time.Time) error
	ListByCreator(ctx context.Context, createdBy string) ([]models.ReportJob, error)
}

type gradeLister interface {
	ListByAssignment(ctx context.Context, assignmentID string) ([]models.GradeDetail, error)
}

type assignmentLister interface {
	List(ctx context.Context, filter models.AssignmentFilter) ([]models.AssignmentDetail, int, error)
}

type reportBlobStore interface {
	Save(ref string, data []byte) (string, error)
	Open(ref string) (*os.File, error)
}

type reportURLSigner interface {
	Generate(resourceID, ref string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (resourceID, ref string, expiresAt time.Time, err error)
}

type reportQueue interface {
	Enqueue(job jobs.Job) error
}

// RequestReportRequest asks for an asynchronous course grade export.
type RequestReportRequest struct {
	CourseID string              `json:"course_id" validate:"required"`
	Format   models.ReportFormat `json:"format" validate:"required,oneof=csv pdf"`
}

// ReportStatusResponse reports job progress and, once finished, a signed
// download URL for the produced file.
type ReportStatusResponse struct {
	Job         models.ReportJob `json:"job"`
	DownloadURL string           `json:"download_url,omitempty"`
	URLExpires  *time.Time       `json:"url_expires,omitempty"`
}

// ReportService produces course grade exports in the background. Requests
// are queued; workers render the dataset and store the file in the blob
// store, and download happens through short-lived signed URLs.
type ReportService struct {
	repo        reportRepository
	courses     courseReader
	grades      gradeLister
	assignments assignmentLister
	store       reportBlobStore
	signer      reportURLSigner
	queue       reportQueue
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	logger      *zap.Logger
}

// NewReportService constructs ReportService. Call BindQueue before Start on
// the queue so the worker handler can reach back into the service.
func NewReportService(repo reportRepository, courses courseReader, grades gradeLister, assignments assignmentLister, store reportBlobStore, signer reportURLSigner, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		repo:        repo,
		courses:     courses,
		grades:      grades,
		assignments: assignments,
		store:       store,
		signer:      signer,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		logger:      logger,
	}
}

// BindQueue attaches the worker queue used for dispatching jobs.
func (s *ReportService) BindQueue(queue reportQueue) {
	s.queue = queue
}

// Request queues a grade export for a course the actor controls and returns
// the tracking record.
func (s *ReportService) Request(ctx context.Context, actor models.Actor, req RequestReportRequest) (*models.ReportJob, error) {
	if req.CourseID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course_id is required")
	}
	if req.Format != models.ReportFormatCSV && req.Format != models.ReportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			if authzErr := authz.Authorize(actor, authz.OpReportRequest, authz.Target{}); authzErr != nil {
				return nil, authzErr
			}
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Store(err, "failed to load course")
	}
	if err := authz.Authorize(actor, authz.OpReportRequest, authz.Target{CourseOwnerID: course.OwnerID}); err != nil {
		return nil, err
	}

	job := &models.ReportJob{
		CourseID:  req.CourseID,
		Format:    req.Format,
		Status:    models.ReportStatusQueued,
		CreatedBy: actor.ID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Store(err, "failed to create report job")
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "report queue unavailable")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "report.export", Payload: job.ID}); err != nil {
		now := time.Now().UTC()
		if markErr := s.repo.MarkFailed(ctx, job.ID, "enqueue failed", now); markErr != nil {
			s.logger.Warn("failed to mark report job failed", zap.Error(markErr))
		}
		return nil, appErrors.Store(err, "failed to enqueue report job")
	}
	s.logger.Info("report job queued",
		zap.String("report_id", job.ID),
		zap.String("course_id", req.CourseID),
		zap.String("format", string(req.Format)))
	return job, nil
}

// Status returns job progress. Once finished, the response carries a signed
// download URL valid for the signer's TTL.
func (s *ReportService) Status(ctx context.Context, actor models.Actor, id string) (*ReportStatusResponse, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			if authzErr := authz.Authorize(actor, authz.OpReportRequest, authz.Target{}); authzErr != nil {
				return nil, authzErr
			}
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Store(err, "failed to load report job")
	}
	if job.CreatedBy != actor.ID && actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrForbidden
	}

	resp := &ReportStatusResponse{Job: *job}
	if job.Status == models.ReportStatusFinished && job.FileRef != nil {
		url, expires, err := s.signer.Generate(job.ID, *job.FileRef)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
		}
		resp.DownloadURL = url
		resp.URLExpires = &expires
	}
	return resp, nil
}

// Download resolves a signed token to the stored report file. The token is
// the sole capability; no session is required.
func (s *ReportService) Download(ctx context.Context, token string) (*models.ReportJob, io.ReadCloser, error) {
	reportID, ref, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.repo.FindByID(ctx, reportID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, nil, appErrors.Store(err, "failed to load report job")
	}
	if job.Status != models.ReportStatusFinished || job.FileRef == nil || *job.FileRef != ref {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	file, err := s.store.Open(ref)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "report file not found")
	}
	return job, file, nil
}

// ListMine returns the actor's report jobs.
func (s *ReportService) ListMine(ctx context.Context, actor models.Actor) ([]models.ReportJob, error) {
	if err := authz.Authorize(actor, authz.OpReportRequest, authz.Target{CourseOwnerID: actor.ID}); err != nil {
		return nil, err
	}
	reports, err := s.repo.ListByCreator(ctx, actor.ID)
	if err != nil {
		return nil, appErrors.Store(err, "failed to list report jobs")
	}
	return reports, nil
}

// Process is the worker handler. It renders the dataset, stores the file
// and marks the job finished. Returning an error lets the queue retry.
func (s *ReportService) Process(ctx context.Context, job jobs.Job) error {
	reportID, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("report job payload must be a report id")
	}
	record, err := s.repo.FindByID(ctx, reportID)
	if err != nil {
		return fmt.Errorf("load report job %s: %w", reportID, err)
	}
	if record.Status == models.ReportStatusQueued {
		if err := s.repo.MarkProcessing(ctx, reportID); err != nil {
			s.logger.Warn("failed to mark report processing", zap.String("report_id", reportID), zap.Error(err))
		}
	}

	data, err := s.buildDataset(ctx, record.CourseID)
	if err != nil {
		now := time.Now().UTC()
		if markErr := s.repo.MarkFailed(ctx, reportID, err.Error(), now); markErr != nil {
			s.logger.Warn("failed to mark report failed", zap.Error(markErr))
		}
		return fmt.Errorf("build dataset for report %s: %w", reportID, err)
	}

	var payload []byte
	switch record.Format {
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(data, "Course Grade Report")
	default:
		payload, err = s.csv.Render(data)
	}
	if err != nil {
		now := time.Now().UTC()
		if markErr := s.repo.MarkFailed(ctx, reportID, err.Error(), now); markErr != nil {
			s.logger.Warn("failed to mark report failed", zap.Error(markErr))
		}
		return fmt.Errorf("render report %s: %w", reportID, err)
	}

	ref := fmt.Sprintf("reports/%s.%s", reportID, record.Format)
	if _, err := s.store.Save(ref, payload); err != nil {
		return fmt.Errorf("store report %s: %w", reportID, err)
	}
	if err := s.repo.MarkFinished(ctx, reportID, ref, time.Now().UTC()); err != nil {
		return fmt.Errorf("finish report %s: %w", reportID, err)
	}
	s.logger.Info("report job finished",
		zap.String("report_id", reportID),
		zap.String("file_ref", ref))
	return nil
}

func (s *ReportService) buildDataset(ctx context.Context, courseID string) (export.Dataset, error) {
	assignments, _, err := s.assignments.List(ctx, models.AssignmentFilter{CourseID: courseID, PageSize: 100})
	if err != nil {
		return export.Dataset{}, err
	}
	dataset := export.Dataset{
		Headers: []string{"assignment", "student_id", "score", "max_score", "graded_at"},
	}
	for _, assignment := range assignments {
		grades, err := s.grades.ListByAssignment(ctx, assignment.ID)
		if err != nil {
			return export.Dataset{}, err
		}
		for _, grade := range grades {
			dataset.Rows = append(dataset.Rows, map[string]string{
				"assignment": assignment.Title,
				"student_id": grade.StudentID,
				"score":      strconv.FormatFloat(grade.Score, 'f', 2, 64),
				"max_score":  strconv.FormatFloat(grade.MaxScore, 'f', 2, 64),
				"graded_at":  grade.GradedAt.UTC().Format(time.RFC3339),
			})
		}
	}
	return dataset, nil
}
