package service

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-portal-api/internal/authz"
	"github.com/noah-isme/campus-portal-api/internal/models"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
)

type uploadBlobStore interface {
	SaveStream(ref string, r io.Reader) (string, error)
}

// ContentUpload carries an incoming submission content stream.
type ContentUpload struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// StoredContent is the opaque handle handed back to the client. The ref is
// what Submit and ReplaceContent accept.
type StoredContent struct {
	Ref       string `json:"content_ref"`
	SizeBytes int64  `json:"size_bytes"`
}

// UploadService stores submission content blobs ahead of the hand-in call.
type UploadService struct {
	store       uploadBlobStore
	maxFileSize int64
	logger      *zap.Logger
}

// NewUploadService constructs UploadService.
func NewUploadService(store uploadBlobStore, maxFileSize int64, logger *zap.Logger) *UploadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadService{store: store, maxFileSize: maxFileSize, logger: logger}
}

// StoreSubmissionContent saves the stream and returns the opaque reference.
// Only students upload submission content; the ref is namespaced per student
// so one student can never overwrite another's blob.
func (s *UploadService) StoreSubmissionContent(ctx context.Context, actor models.Actor, upload ContentUpload) (*StoredContent, error) {
	if err := authz.Authorize(actor, authz.OpSubmissionCreate, authz.Target{}); err != nil {
		return nil, err
	}
	if upload.Content == nil || upload.Size <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file content is required")
	}
	if s.maxFileSize > 0 && upload.Size > s.maxFileSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file exceeds the maximum upload size")
	}

	ext := sanitizeExt(filepath.Ext(upload.Filename))
	ref := "submissions/" + actor.ID + "/" + uuid.NewString() + ext
	if _, err := s.store.SaveStream(ref, io.LimitReader(upload.Content, upload.Size)); err != nil {
		return nil, appErrors.Store(err, "failed to store submission content")
	}
	s.logger.Info("submission content stored",
		zap.String("content_ref", ref),
		zap.String("student_id", actor.ID),
		zap.Int64("size_bytes", upload.Size))
	return &StoredContent{Ref: ref, SizeBytes: upload.Size}, nil
}

// sanitizeExt keeps only a short alphanumeric extension.
func sanitizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if len(ext) > 8 {
		return ""
	}
	for _, r := range strings.TrimPrefix(ext, ".") {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
