package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mizukilab/kaiseki-backend/internal/http/response"
	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
	"github.com/mizukilab/kaiseki-backend/internal/services"
)

type FileHandler struct {
	log         *logger.Logger
	fileService services.FileService
	jobService  services.JobService
}

func NewFileHandler(log *logger.Logger, fileService services.FileService, jobService services.JobService) *FileHandler {
	return &FileHandler{
		log:         log.With("handler", "FileHandler"),
		fileService: fileService,
		jobService:  jobService,
	}
}

// Upload takes a multipart form: "file" plus optional subject_column
// and value_column hints for the parser.
func (h *FileHandler) Upload(c *gin.Context) {
	projectID, err := uuidParam(c, "project_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "missing_file", err)
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "unreadable_file", err)
		return
	}
	defer src.Close()

	file, job, err := h.fileService.UploadFile(c.Request.Context(), services.UploadFileInput{
		ProjectID:     projectID,
		OriginalName:  strings.TrimSpace(fileHeader.Filename),
		SubjectColumn: strings.TrimSpace(c.PostForm("subject_column")),
		ValueColumn:   strings.TrimSpace(c.PostForm("value_column")),
		Content:       src,
	})
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{
		"file": file,
		"job":  gin.H{"id": job.ID, "status": job.Status},
	})
}

func (h *FileHandler) Get(c *gin.Context) {
	fileID, err := uuidParam(c, "file_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	file, err := h.fileService.GetFile(c.Request.Context(), fileID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, file)
}

func (h *FileHandler) List(c *gin.Context) {
	projectID, err := uuidParam(c, "project_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	files, err := h.fileService.ListFiles(c.Request.Context(), projectID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"files": files})
}

func (h *FileHandler) Delete(c *gin.Context) {
	fileID, err := uuidParam(c, "file_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	if err := h.fileService.DeleteFile(c.Request.Context(), fileID); err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": true})
}

// LatestJob reports the newest ingest job for a file so uploaders can
// poll status without holding the upload response open.
func (h *FileHandler) LatestJob(c *gin.Context) {
	fileID, err := uuidParam(c, "file_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	job, err := h.jobService.GetLatestForFile(c.Request.Context(), fileID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, job)
}
