package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parley-chat/parley/internal/middleware"
	"github.com/parley-chat/parley/internal/service"
)

// ChatHandler serves the completion relay.
type ChatHandler struct {
	svc    service.ChatService
	logger *zap.Logger
}

func NewChatHandler(svc service.ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{svc: svc, logger: logger}
}

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
}

type usageResponse struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// chatResponse carries the assistant reply. ConversationID is null when the
// exchange ran unattached and nothing was persisted.
type chatResponse struct {
	Reply          string        `json:"reply"`
	ConversationID *uuid.UUID    `json:"conversationId"`
	Model          string        `json:"model"`
	Usage          usageResponse `json:"usage"`
}

// Chat handles POST /chat. The conversation owner always comes from the
// token, never from the body.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var convID *uuid.UUID
	if req.ConversationID != "" {
		id, err := uuid.Parse(req.ConversationID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
			return
		}
		convID = &id
	}

	res, err := h.svc.Chat(c.Request.Context(), middleware.GetUserID(c), req.Message, convID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, chatResponse{
		Reply:          res.Reply,
		ConversationID: res.ConversationID,
		Model:          res.Model,
		Usage: usageResponse{
			PromptTokens:     res.Usage.PromptTokens,
			CompletionTokens: res.Usage.CompletionTokens,
			TotalTokens:      res.Usage.TotalTokens,
		},
	})
}
