package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parley-chat/parley/internal/errs"
	"github.com/parley-chat/parley/internal/models"
	"github.com/parley-chat/parley/internal/repository"
)

const (
	tagMaxLen    = 50
	maxTags      = 20
	queryMaxLen  = 200
	minMaxTokens = 1
	maxMaxTokens = 8192
)

// ConversationPage is one page of conversation summaries.
type ConversationPage struct {
	Items      []models.ConversationSummary
	Page       int
	Limit      int
	Total      int
	TotalPages int
}

// ConversationService owns the conversation lifecycle. Every operation is
// scoped to the calling owner; a conversation belonging to someone else is
// indistinguishable from one that does not exist.
type ConversationService interface {
	Create(ctx context.Context, ownerID uuid.UUID, title, initialMessage string, tags []string) (*models.Conversation, error)
	Get(ctx context.Context, ownerID, id uuid.UUID) (*models.Conversation, error)
	List(ctx context.Context, ownerID uuid.UUID, f repository.ConversationFilter) (*ConversationPage, error)
	Search(ctx context.Context, ownerID uuid.UUID, query string, page, limit int) (*ConversationPage, error)
	Update(ctx context.Context, ownerID, id uuid.UUID, patch models.ConversationPatch) (*models.Conversation, error)
	AppendMessage(ctx context.Context, ownerID, id uuid.UUID, role models.Role, content, model string) (*models.Conversation, error)
	Delete(ctx context.Context, ownerID, id uuid.UUID) error
}

type conversationService struct {
	convs  repository.ConversationRepository
	logger *zap.Logger
}

func NewConversationService(convs repository.ConversationRepository, logger *zap.Logger) ConversationService {
	return &conversationService{convs: convs, logger: logger}
}

func (s *conversationService) Create(ctx context.Context, ownerID uuid.UUID, title, initialMessage string, tags []string) (*models.Conversation, error) {
	title = strings.TrimSpace(title)

	v := errs.NewValidation()
	if len([]rune(title)) > models.TitleMaxLen {
		v.Addf("title", "must be at most %d characters", models.TitleMaxLen)
	}
	tags = cleanTags(v, tags)
	if err := v.Err(); err != nil {
		return nil, err
	}

	conv := models.NewConversation(ownerID, title)
	conv.Tags = tags
	if msg := strings.TrimSpace(initialMessage); msg != "" {
		conv.Append(models.NewMessage(models.RoleUser, msg, ""))
	}

	if err := s.convs.Create(ctx, conv); err != nil {
		return nil, err
	}
	s.logger.Debug("conversation created",
		zap.String("conversation_id", conv.ID.String()),
		zap.String("user_id", ownerID.String()))
	return conv, nil
}

func (s *conversationService) Get(ctx context.Context, ownerID, id uuid.UUID) (*models.Conversation, error) {
	return s.convs.GetByID(ctx, ownerID, id)
}

func (s *conversationService) List(ctx context.Context, ownerID uuid.UUID, f repository.ConversationFilter) (*ConversationPage, error) {
	f.Normalize()
	f.Search = strings.TrimSpace(f.Search)
	items, total, err := s.convs.List(ctx, ownerID, f)
	if err != nil {
		return nil, err
	}
	return newPage(items, f, total), nil
}

func (s *conversationService) Search(ctx context.Context, ownerID uuid.UUID, query string, page, limit int) (*ConversationPage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errs.Validation("q", "is required")
	}
	if len([]rune(query)) > queryMaxLen {
		return nil, errs.Validation("q", "is too long")
	}
	f := repository.ConversationFilter{Page: page, Limit: limit}
	f.Normalize()
	items, total, err := s.convs.Search(ctx, ownerID, query, f.Page, f.Limit)
	if err != nil {
		return nil, err
	}
	return newPage(items, f, total), nil
}

func newPage(items []models.ConversationSummary, f repository.ConversationFilter, total int) *ConversationPage {
	pages := total / f.Limit
	if total%f.Limit != 0 {
		pages++
	}
	return &ConversationPage{
		Items:      items,
		Page:       f.Page,
		Limit:      f.Limit,
		Total:      total,
		TotalPages: pages,
	}
}

// Update merges only the provided fields. A patch with no fields still goes
// through so updated_at moves, matching the store's merge semantics.
func (s *conversationService) Update(ctx context.Context, ownerID, id uuid.UUID, patch models.ConversationPatch) (*models.Conversation, error) {
	v := errs.NewValidation()
	if patch.Title != nil {
		*patch.Title = strings.TrimSpace(*patch.Title)
		if *patch.Title == "" {
			v.Add("title", "must not be empty")
		} else if len([]rune(*patch.Title)) > models.TitleMaxLen {
			v.Addf("title", "must be at most %d characters", models.TitleMaxLen)
		}
	}
	if patch.Tags != nil {
		*patch.Tags = cleanTags(v, *patch.Tags)
	}
	if patch.Settings != nil {
		validateSettings(v, patch.Settings)
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	return s.convs.Update(ctx, ownerID, id, patch)
}

func (s *conversationService) AppendMessage(ctx context.Context, ownerID, id uuid.UUID, role models.Role, content, model string) (*models.Conversation, error) {
	content = strings.TrimSpace(content)

	v := errs.NewValidation()
	if !role.Valid() {
		v.Add("role", `must be "user" or "assistant"`)
	}
	if content == "" {
		v.Add("content", "is required")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	conv, err := s.convs.GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	return persistAppend(ctx, s.convs, conv, models.NewMessage(role, content, model))
}

func (s *conversationService) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	if err := s.convs.Delete(ctx, ownerID, id); err != nil {
		return err
	}
	s.logger.Debug("conversation deleted",
		zap.String("conversation_id", id.String()),
		zap.String("user_id", ownerID.String()))
	return nil
}

// cleanTags trims each tag, drops empties, and validates the rest.
func cleanTags(v *errs.ValidationError, tags []string) []string {
	if tags == nil {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if len([]rune(t)) > tagMaxLen {
			v.Addf("tags", "tag %q... is too long", string([]rune(t)[:20]))
			continue
		}
		out = append(out, t)
	}
	if len(out) > maxTags {
		v.Addf("tags", "at most %d tags allowed", maxTags)
	}
	return out
}

func validateSettings(v *errs.ValidationError, p *models.SettingsPatch) {
	if p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 2) {
		v.Add("settings.temperature", "must be between 0 and 2")
	}
	if p.MaxTokens != nil && (*p.MaxTokens < minMaxTokens || *p.MaxTokens > maxMaxTokens) {
		v.Addf("settings.maxTokens", "must be between %d and %d", minMaxTokens, maxMaxTokens)
	}
}
