package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apierrors "github.com/yukikurage/circuit/internal/errors"
	"github.com/yukikurage/circuit/internal/services"
)

// UploadHandler accepts standalone files, e.g. profile images or feed attachments.
type UploadHandler struct {
	uploadService *services.UploadService
}

func NewUploadHandler(uploadService *services.UploadService) *UploadHandler {
	return &UploadHandler{uploadService: uploadService}
}

// Upload stores the multipart "file" field and returns its URL.
func (h *UploadHandler) Upload(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	upload, closeFile, ok := formUpload(c)
	if !ok {
		return
	}
	defer closeFile()

	url, err := h.uploadService.Store(c.Request.Context(), caller, "uploads", upload)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"url": url})
}

// formUpload opens the "file" form field. The returned func closes it.
func formUpload(c *gin.Context) (services.Upload, func(), bool) {
	header, err := c.FormFile("file")
	if err != nil {
		apierrors.ValidationFailed(c, map[string]string{"file": "file is required"})
		return services.Upload{}, nil, false
	}

	file, err := header.Open()
	if err != nil {
		apierrors.BadRequest(c, "Failed to read uploaded file")
		return services.Upload{}, nil, false
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return services.Upload{
		FileName:    header.Filename,
		Size:        header.Size,
		ContentType: contentType,
		Body:        file,
	}, func() { _ = file.Close() }, true
}
