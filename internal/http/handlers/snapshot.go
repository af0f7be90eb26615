package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mizukilab/kaiseki-backend/internal/http/response"
	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
	"github.com/mizukilab/kaiseki-backend/internal/services"
)

type SnapshotHandler struct {
	log             *logger.Logger
	analysisService services.AnalysisService
}

func NewSnapshotHandler(log *logger.Logger, analysisService services.AnalysisService) *SnapshotHandler {
	return &SnapshotHandler{
		log:             log.With("handler", "SnapshotHandler"),
		analysisService: analysisService,
	}
}

func (h *SnapshotHandler) Save(c *gin.Context) {
	sessionID, err := uuidParam(c, "session_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	snap, err := h.analysisService.SaveSnapshot(c.Request.Context(), sessionID, boolQuery(c, "overwrite"))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{
		"id":         snap.ID,
		"index":      snap.Index,
		"created_at": snap.CreatedAt,
	})
}

func (h *SnapshotHandler) List(c *gin.Context) {
	sessionID, err := uuidParam(c, "session_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	snaps, err := h.analysisService.ListSnapshots(c.Request.Context(), sessionID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"snapshots": snaps})
}

func (h *SnapshotHandler) Revert(c *gin.Context) {
	sessionID, err := uuidParam(c, "session_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_index",
			fmt.Errorf("invalid snapshot index %q", c.Param("index")))
		return
	}
	steps, err := h.analysisService.RevertToSnapshot(c.Request.Context(), sessionID, index)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"steps": viewSteps(steps)})
}
