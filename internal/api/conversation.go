package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parley-chat/parley/internal/middleware"
	"github.com/parley-chat/parley/internal/models"
	"github.com/parley-chat/parley/internal/repository"
	"github.com/parley-chat/parley/internal/service"
)

// ConversationHandler serves the conversation CRUD surface. Mutating
// endpoints answer with the summary projection; only GET by id returns the
// full aggregate with every message.
type ConversationHandler struct {
	svc    service.ConversationService
	logger *zap.Logger
}

func NewConversationHandler(svc service.ConversationService, logger *zap.Logger) *ConversationHandler {
	return &ConversationHandler{svc: svc, logger: logger}
}

type createConversationRequest struct {
	Title          string   `json:"title"`
	InitialMessage string   `json:"initialMessage"`
	Tags           []string `json:"tags"`
}

type updateConversationRequest struct {
	Title      *string               `json:"title"`
	Tags       *[]string             `json:"tags"`
	IsArchived *bool                 `json:"isArchived"`
	IsPinned   *bool                 `json:"isPinned"`
	Settings   *models.SettingsPatch `json:"settings"`
}

type appendMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Model   string `json:"model"`
}

// conversationPageResponse is the envelope for list and search results.
// Query is only set on search responses.
type conversationPageResponse struct {
	Conversations []models.ConversationSummary `json:"conversations"`
	Page          int                          `json:"page"`
	Limit         int                          `json:"limit"`
	Total         int                          `json:"total"`
	TotalPages    int                          `json:"totalPages"`
	Query         string                       `json:"query,omitempty"`
}

func pageResponse(p *service.ConversationPage, query string) conversationPageResponse {
	items := p.Items
	if items == nil {
		items = []models.ConversationSummary{}
	}
	return conversationPageResponse{
		Conversations: items,
		Page:          p.Page,
		Limit:         p.Limit,
		Total:         p.Total,
		TotalPages:    p.TotalPages,
		Query:         query,
	}
}

// Create handles POST /conversations.
func (h *ConversationHandler) Create(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv, err := h.svc.Create(c.Request.Context(), middleware.GetUserID(c), req.Title, req.InitialMessage, req.Tags)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, conv.Summary())
}

// List handles GET /conversations. Pagination values out of range are
// normalized, not rejected; archived defaults to false so archived rows
// only show up when asked for.
func (h *ConversationHandler) List(c *gin.Context) {
	f := repository.ConversationFilter{
		Page:   intQuery(c, "page"),
		Limit:  intQuery(c, "limit"),
		Search: c.Query("search"),
	}
	if v := c.Query("archived"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "archived must be true or false"})
			return
		}
		f.Archived = b
	}
	if v := c.Query("pinned"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "pinned must be true or false"})
			return
		}
		f.Pinned = &b
	}
	if v := c.Query("tags"); v != "" {
		f.Tags = strings.Split(v, ",")
	}

	page, err := h.svc.List(c.Request.Context(), middleware.GetUserID(c), f)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, pageResponse(page, ""))
}

// Search handles GET /conversations/search.
func (h *ConversationHandler) Search(c *gin.Context) {
	query := c.Query("q")

	page, err := h.svc.Search(c.Request.Context(), middleware.GetUserID(c),
		query, intQuery(c, "page"), intQuery(c, "limit"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, pageResponse(page, strings.TrimSpace(query)))
}

// Get handles GET /conversations/:id.
func (h *ConversationHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	conv, err := h.svc.Get(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// Update handles PUT /conversations/:id.
func (h *ConversationHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	patch := models.ConversationPatch{
		Title:      req.Title,
		Tags:       req.Tags,
		IsArchived: req.IsArchived,
		IsPinned:   req.IsPinned,
		Settings:   req.Settings,
	}
	conv, err := h.svc.Update(c.Request.Context(), middleware.GetUserID(c), id, patch)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, conv.Summary())
}

// AppendMessage handles POST /conversations/:id/messages.
func (h *ConversationHandler) AppendMessage(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req appendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv, err := h.svc.AppendMessage(c.Request.Context(), middleware.GetUserID(c),
		id, models.Role(req.Role), req.Content, req.Model)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, conv.Summary())
}

// Delete handles DELETE /conversations/:id.
func (h *ConversationHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), middleware.GetUserID(c), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "conversation deleted"})
}

// pathID parses the :id segment. A malformed id is answered directly and
// reported as not ok.
func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return uuid.Nil, false
	}
	return id, true
}

// intQuery reads an integer query parameter, treating absent or malformed
// values as zero so the filter normalization picks the default.
func intQuery(c *gin.Context, name string) int {
	n, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0
	}
	return n
}
