package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	types "github.com/mizukilab/kaiseki-backend/internal/domain"
	"github.com/mizukilab/kaiseki-backend/internal/http/response"
	"github.com/mizukilab/kaiseki-backend/internal/platform/ctxutil"
	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
	"github.com/mizukilab/kaiseki-backend/internal/realtime"
	"github.com/mizukilab/kaiseki-backend/internal/services"
)

type RealtimeHandler struct {
	log            *logger.Logger
	hub            *realtime.Hub
	sessionService services.SessionService
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.Hub, sessionService services.SessionService) *RealtimeHandler {
	return &RealtimeHandler{
		log:            log.With("handler", "RealtimeHandler"),
		hub:            hub,
		sessionService: sessionService,
	}
}

// Stream opens an SSE connection scoped to one session. Viewers may
// listen; the connection holds until the client goes away.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	sessionID, err := uuidParam(c, "session_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	if _, err := h.sessionService.AuthorizeSession(c.Request.Context(), sessionID, types.RoleViewer); err != nil {
		response.RespondServiceError(c, err)
		return
	}
	client := h.hub.NewClient(ctxutil.UserID(c.Request.Context()))
	h.hub.Subscribe(client, sessionID)
	defer h.hub.CloseClient(client)
	h.hub.ServeHTTP(c.Writer, c.Request, client)
}
