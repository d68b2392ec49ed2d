package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/healthpredictor/healthpredictor-backend/internal/middleware"
	"github.com/healthpredictor/healthpredictor-backend/internal/platform/apierr"
	"github.com/healthpredictor/healthpredictor-backend/internal/platform/logger"
	"github.com/healthpredictor/healthpredictor-backend/internal/services"
)

type FileHandler struct {
	log    *logger.Logger
	bucket services.BucketService
}

// NewFileHandler accepts a nil bucket so the server can come up without
// storage configured; uploads then answer 503 instead of panicking.
func NewFileHandler(log *logger.Logger, bucket services.BucketService) *FileHandler {
	return &FileHandler{
		log:    log.With("handler", "FileHandler"),
		bucket: bucket,
	}
}

func (h *FileHandler) UploadHealthData(c *gin.Context) {
	if h.bucket == nil {
		RespondError(c, apierr.Unavailable("file storage is not configured"))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		RespondError(c, apierr.Validation("missing file field: %v", err))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		RespondError(c, apierr.Validation("failed to open uploaded file: %v", err))
		return
	}
	defer file.Close()

	filename := fileHeader.Filename
	if filename == "" {
		filename = "user_health_data.csv"
	}

	url, err := h.bucket.UploadHealthData(c.Request.Context(), file, middleware.UserID(c), filename)
	if err != nil {
		RespondError(c, err)
		return
	}

	h.log.Info("Uploaded health data", "user_id", middleware.UserID(c))
	RespondOK(c, gin.H{"s3_url": url, "message": "Health data uploaded successfully"})
}
