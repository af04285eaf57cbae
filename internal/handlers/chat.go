package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tablemind/rulebook-backend/internal/platform/logger"
	"github.com/tablemind/rulebook-backend/internal/services"
)

type ChatHandler struct {
	log         *logger.Logger
	chatService services.ChatService
}

func NewChatHandler(log *logger.Logger, csvc services.ChatService) *ChatHandler {
	return &ChatHandler{
		log:         log.With("handler", "ChatHandler"),
		chatService: csvc,
	}
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message" binding:"required"`
}

type chatResponse struct {
	SessionID string            `json:"session_id"`
	Answer    string            `json:"answer"`
	Query     string            `json:"query"`
	Sources   []services.Source `json:"sources"`
}

// POST /api/chat
// Answer a rules question within a session. Omitting session_id starts a
// new session; the response echoes the id to continue it.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	res, err := h.chatService.Chat(c.Request.Context(), req.SessionID, req.Message)
	if err != nil {
		h.log.Error("Chat failed", "session_id", req.SessionID, "error", err.Error())
		RespondError(c, http.StatusInternalServerError, "chat_failed", err)
		return
	}

	RespondOK(c, chatResponse{
		SessionID: req.SessionID,
		Answer:    res.Answer,
		Query:     res.Query,
		Sources:   res.Sources,
	})
}
