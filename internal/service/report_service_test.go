package service

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-portal-api/internal/models"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
	"github.com/noah-isme/campus-portal-api/pkg/jobs"
)

type mockReportRepo struct {
	reports map[string]*models.ReportJob
}

func (m *mockReportRepo) FindByID(ctx context.Context, id string) (*models.ReportJob, error) {
	if r, ok := m.reports[id]; ok {
		return r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockReportRepo) Create(ctx context.Context, job *models.ReportJob) error {
	if m.reports == nil {
		m.reports = make(map[string]*models.ReportJob)
	}
	if job.ID == "" {
		job.ID = "rep-new"
	}
	job.Status = models.ReportStatusQueued
	m.reports[job.ID] = job
	return nil
}

func (m *mockReportRepo) MarkProcessing(ctx context.Context, id string) error {
	r, ok := m.reports[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.Status = models.ReportStatusProcessing
	return nil
}

func (m *mockReportRepo) MarkFinished(ctx context.Context, id, fileRef string, finishedAt time.Time) error {
	r, ok := m.reports[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.Status = models.ReportStatusFinished
	r.FileRef = &fileRef
	r.FinishedAt = &finishedAt
	return nil
}

func (m *mockReportRepo) MarkFailed(ctx context.Context, id, message string, finishedAt time.Time) error {
	r, ok := m.reports[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.Status = models.ReportStatusFailed
	r.ErrorMessage = &message
	r.FinishedAt = &finishedAt
	return nil
}

func (m *mockReportRepo) ListByCreator(ctx context.Context, createdBy string) ([]models.ReportJob, error) {
	var list []models.ReportJob
	for _, r := range m.reports {
		if r.CreatedBy == createdBy {
			list = append(list, *r)
		}
	}
	return list, nil
}

type mockGradeLister struct {
	byAssignment map[string][]models.GradeDetail
}

func (m *mockGradeLister) ListByAssignment(ctx context.Context, assignmentID string) ([]models.GradeDetail, error) {
	return m.byAssignment[assignmentID], nil
}

type mockBlobStore struct {
	saved map[string][]byte
}

func (m *mockBlobStore) Save(ref string, data []byte) (string, error) {
	if m.saved == nil {
		m.saved = make(map[string][]byte)
	}
	m.saved[ref] = data
	return ref, nil
}

func (m *mockBlobStore) Open(ref string) (*os.File, error) {
	if _, ok := m.saved[ref]; !ok {
		return nil, os.ErrNotExist
	}
	return nil, nil
}

type mockURLSigner struct{}

func (m *mockURLSigner) Generate(resourceID, ref string) (string, time.Time, error) {
	return "https://files.local/" + resourceID, time.Now().UTC().Add(15 * time.Minute), nil
}

func (m *mockURLSigner) Parse(token string, allowExpired bool) (string, string, time.Time, error) {
	return token, "reports/" + token + ".csv", time.Now().UTC().Add(15 * time.Minute), nil
}

type mockJobQueue struct {
	enqueued []jobs.Job
	err      error
}

func (m *mockJobQueue) Enqueue(job jobs.Job) error {
	if m.err != nil {
		return m.err
	}
	m.enqueued = append(m.enqueued, job)
	return nil
}

func newReportFixture() (*ReportService, *mockReportRepo, *mockBlobStore, *mockJobQueue) {
	repo := &mockReportRepo{reports: map[string]*models.ReportJob{}}
	courses := &mockCourseReader{courses: map[string]*models.CourseOffering{
		"course-1": {ID: "course-1", Code: "CS101", OwnerID: "fac-1"},
	}}
	grades := &mockGradeLister{byAssignment: map[string][]models.GradeDetail{
		"asg-1": {
			{
				Grade:     models.Grade{ID: "grade-1", SubmissionID: "sub-1", Score: 88, GradedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
				StudentID: "stu-1",
				MaxScore:  100,
			},
		},
	}}
	published := publishedAssignment()
	assignments := &mockAssignmentRepo{assignments: map[string]*models.AssignmentDetail{"asg-1": published}}
	store := &mockBlobStore{}
	queue := &mockJobQueue{}
	svc := NewReportService(repo, courses, grades, assignments, store, &mockURLSigner{}, nil)
	svc.BindQueue(queue)
	return svc, repo, store, queue
}

func TestReportRequestQueuesJob(t *testing.T) {
	svc, repo, _, queue := newReportFixture()

	job, err := svc.Request(context.Background(), faculty, RequestReportRequest{CourseID: "course-1", Format: models.ReportFormatCSV})
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusQueued, job.Status)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, "report.export", queue.enqueued[0].Type)
	assert.Equal(t, job.ID, queue.enqueued[0].Payload)
	assert.Contains(t, repo.reports, job.ID)
}

func TestReportRequestScopedToCourseOwner(t *testing.T) {
	svc, _, _, _ := newReportFixture()
	otherFaculty := models.Actor{ID: "fac-2", Role: models.RoleFaculty}

	_, err := svc.Request(context.Background(), otherFaculty, RequestReportRequest{CourseID: "course-1", Format: models.ReportFormatCSV})
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, err = svc.Request(context.Background(), student, RequestReportRequest{CourseID: "course-1", Format: models.ReportFormatCSV})
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestReportRequestEnqueueFailureMarksFailed(t *testing.T) {
	svc, repo, _, queue := newReportFixture()
	queue.err = assert.AnError

	_, err := svc.Request(context.Background(), faculty, RequestReportRequest{CourseID: "course-1", Format: models.ReportFormatCSV})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrStore))

	job := repo.reports["rep-new"]
	require.NotNil(t, job)
	assert.Equal(t, models.ReportStatusFailed, job.Status)
}

func TestReportProcessRendersCSV(t *testing.T) {
	svc, repo, store, _ := newReportFixture()
	repo.reports["rep-1"] = &models.ReportJob{
		ID:       "rep-1",
		CourseID: "course-1",
		Format:   models.ReportFormatCSV,
		Status:   models.ReportStatusQueued,
	}

	err := svc.Process(context.Background(), jobs.Job{ID: "rep-1", Type: "report.export", Payload: "rep-1"})
	require.NoError(t, err)

	job := repo.reports["rep-1"]
	assert.Equal(t, models.ReportStatusFinished, job.Status)
	require.NotNil(t, job.FileRef)
	assert.Equal(t, "reports/rep-1.csv", *job.FileRef)

	data := string(store.saved["reports/rep-1.csv"])
	assert.True(t, strings.Contains(data, "stu-1"))
	assert.True(t, strings.Contains(data, "88.00"))
}

func TestReportProcessUnknownJobRetries(t *testing.T) {
	svc, _, _, _ := newReportFixture()

	err := svc.Process(context.Background(), jobs.Job{ID: "nope", Type: "report.export", Payload: "nope"})
	require.Error(t, err)
}

func TestReportStatusSignsFinishedDownloads(t *testing.T) {
	svc, repo, _, _ := newReportFixture()
	ref := "reports/rep-1.csv"
	repo.reports["rep-1"] = &models.ReportJob{
		ID:        "rep-1",
		CourseID:  "course-1",
		Format:    models.ReportFormatCSV,
		Status:    models.ReportStatusFinished,
		FileRef:   &ref,
		CreatedBy: "fac-1",
	}

	resp, err := svc.Status(context.Background(), faculty, "rep-1")
	require.NoError(t, err)
	assert.Equal(t, "https://files.local/rep-1", resp.DownloadURL)
	require.NotNil(t, resp.URLExpires)

	// Only the creator or an admin may see the job.
	otherFaculty := models.Actor{ID: "fac-2", Role: models.RoleFaculty}
	_, err = svc.Status(context.Background(), otherFaculty, "rep-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, err = svc.Status(context.Background(), admin, "rep-1")
	assert.NoError(t, err)
}
