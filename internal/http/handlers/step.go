package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mizukilab/kaiseki-backend/internal/engine"
	"github.com/mizukilab/kaiseki-backend/internal/http/response"
	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
	"github.com/mizukilab/kaiseki-backend/internal/services"
)

type StepHandler struct {
	log             *logger.Logger
	analysisService services.AnalysisService
}

func NewStepHandler(log *logger.Logger, analysisService services.AnalysisService) *StepHandler {
	return &StepHandler{
		log:             log.With("handler", "StepHandler"),
		analysisService: analysisService,
	}
}

// stepView is the wire shape of a pipeline step. Results omit the
// in-memory table; clients fetch materialized data through overviews
// or the stored dataset.
type stepView struct {
	ID         string         `json:"id"`
	Order      int            `json:"order"`
	Label      string         `json:"label"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	DataSource string         `json:"data_source"`
	Config     *engine.Config `json:"config,omitempty"`
	Result     *engine.Result `json:"result,omitempty"`
	Active     bool           `json:"active"`
	Status     string         `json:"status"`
}

func viewStep(step *engine.Step, steps []*engine.Step) stepView {
	v := stepView{
		ID:         step.ID.String(),
		Order:      step.Order,
		Label:      engine.FormatSourceRef(engine.StepRef(step.ID), steps),
		Name:       step.Name,
		Type:       string(step.Type),
		DataSource: engine.FormatSourceRef(step.Source, steps),
		Result:     step.Result,
		Active:     step.Active,
		Status:     string(step.Status),
	}
	if step.Status != engine.StatusCreated {
		cfg := step.Config
		v.Config = &cfg
	}
	return v
}

func viewSteps(steps []*engine.Step) []stepView {
	views := make([]stepView, 0, len(steps))
	for _, step := range steps {
		views = append(views, viewStep(step, steps))
	}
	return views
}

func (h *StepHandler) List(c *gin.Context) {
	sessionID, err := uuidParam(c, "session_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	steps, err := h.analysisService.ListSteps(c.Request.Context(), sessionID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"steps": viewSteps(steps)})
}

type addStepRequest struct {
	Name       string `json:"name" binding:"required"`
	Type       string `json:"type" binding:"required"`
	DataSource string `json:"data_source"`
}

func (h *StepHandler) Add(c *gin.Context) {
	sessionID, err := uuidParam(c, "session_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	var req addStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "malformed_request", err)
		return
	}
	step, err := h.analysisService.AddStep(c.Request.Context(), sessionID, req.Name, req.Type, req.DataSource)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	steps, err := h.analysisService.ListSteps(c.Request.Context(), sessionID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondCreated(c, viewStep(step, steps))
}

type setConfigRequest struct {
	Config json.RawMessage `json:"config" binding:"required"`
}

func (h *StepHandler) SetConfig(c *gin.Context) {
	sessionID, err := uuidParam(c, "session_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	order, err := orderParam(c, "order")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_order", err)
		return
	}
	var req setConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "malformed_request", err)
		return
	}
	steps, overview, err := h.analysisService.SetStepConfig(c.Request.Context(), sessionID, order, req.Config)
	if err != nil && steps == nil {
		response.RespondServiceError(c, err)
		return
	}
	payload := gin.H{"steps": viewSteps(steps)}
	if err != nil {
		payload["error"] = err.Error()
		c.JSON(http.StatusUnprocessableEntity, payload)
		return
	}
	payload["overview"] = overview
	response.RespondOK(c, payload)
}

// Execute runs one step, or the step plus everything downstream when
// cascade=true. A mid-cascade failure still returns the steps that
// did materialize; the error rides alongside them.
func (h *StepHandler) Execute(c *gin.Context) {
	sessionID, err := uuidParam(c, "session_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	order, err := orderParam(c, "order")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_order", err)
		return
	}
	includeFollowing := boolQuery(c, "cascade")
	steps, execErr := h.analysisService.ExecuteStep(c.Request.Context(), sessionID, order, includeFollowing)
	if execErr != nil && steps == nil {
		response.RespondServiceError(c, execErr)
		return
	}
	payload := gin.H{"steps": viewSteps(steps)}
	if execErr != nil {
		payload["error"] = execErr.Error()
		c.JSON(http.StatusUnprocessableEntity, payload)
		return
	}
	response.RespondOK(c, payload)
}

func (h *StepHandler) Delete(c *gin.Context) {
	sessionID, err := uuidParam(c, "session_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	order, err := orderParam(c, "order")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_order", err)
		return
	}
	if err := h.analysisService.DeleteStep(c.Request.Context(), sessionID, order); err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": true})
}

func (h *StepHandler) DataOverview(c *gin.Context) {
	sessionID, err := uuidParam(c, "session_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	overview, err := h.analysisService.GetDataOverview(c.Request.Context(), sessionID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"overview": overview})
}

func (h *StepHandler) StepOverview(c *gin.Context) {
	sessionID, err := uuidParam(c, "session_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	order, err := orderParam(c, "order")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_order", err)
		return
	}
	overview, err := h.analysisService.GetStepOverview(c.Request.Context(), sessionID, order)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"overview": overview})
}
