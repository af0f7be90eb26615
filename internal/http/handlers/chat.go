package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mizukilab/kaiseki-backend/internal/http/response"
	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
	"github.com/mizukilab/kaiseki-backend/internal/services"
)

type ChatHandler struct {
	log         *logger.Logger
	chatService services.ChatService
}

func NewChatHandler(log *logger.Logger, chatService services.ChatService) *ChatHandler {
	return &ChatHandler{
		log:         log.With("handler", "ChatHandler"),
		chatService: chatService,
	}
}

type postMessageRequest struct {
	Role     string          `json:"role" binding:"required"`
	Content  string          `json:"content" binding:"required"`
	Metadata json.RawMessage `json:"metadata"`
}

func (h *ChatHandler) Post(c *gin.Context) {
	sessionID, err := uuidParam(c, "session_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "malformed_request", err)
		return
	}
	msg, err := h.chatService.PostMessage(c.Request.Context(), sessionID, req.Role, req.Content, req.Metadata)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondCreated(c, msg)
}

func (h *ChatHandler) History(c *gin.Context) {
	sessionID, err := uuidParam(c, "session_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	limit := intQuery(c, "limit", 0)
	var msgs any
	if boolQuery(c, "recent") {
		msgs, err = h.chatService.Recent(c.Request.Context(), sessionID, limit)
	} else {
		msgs, err = h.chatService.History(c.Request.Context(), sessionID, limit)
	}
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"messages": msgs})
}
