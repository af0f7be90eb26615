package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mizukilab/kaiseki-backend/internal/http/response"
	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
	"github.com/mizukilab/kaiseki-backend/internal/services"
)

type JobHandler struct {
	log        *logger.Logger
	jobService services.JobService
}

func NewJobHandler(log *logger.Logger, jobService services.JobService) *JobHandler {
	return &JobHandler{
		log:        log.With("handler", "JobHandler"),
		jobService: jobService,
	}
}

func (h *JobHandler) Get(c *gin.Context) {
	jobID, err := uuidParam(c, "job_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	job, err := h.jobService.GetJob(c.Request.Context(), jobID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, job)
}
