package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-portal-api/internal/service"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
	"github.com/noah-isme/campus-portal-api/pkg/response"
)

// UploadHandler accepts submission content uploads.
type UploadHandler struct {
	uploads *service.UploadService
}

// NewUploadHandler constructs UploadHandler.
func NewUploadHandler(uploads *service.UploadService) *UploadHandler {
	return &UploadHandler{uploads: uploads}
}

// SubmissionContent godoc
// @Summary Upload submission content
// @Description Stores the file and returns the opaque content_ref used by submit and replace.
// @Tags Submissions
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Submission content"
// @Success 201 {object} response.Envelope
// @Router /uploads/submissions [post]
func (h *UploadHandler) SubmissionContent(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close() //nolint:errcheck

	stored, err := h.uploads.StoreSubmissionContent(c.Request.Context(), actorFromContext(c), service.ContentUpload{
		Filename: fileHeader.Filename,
		Size:     fileHeader.Size,
		Content:  src,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, stored)
}
