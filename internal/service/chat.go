package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parley-chat/parley/internal/config"
	"github.com/parley-chat/parley/internal/errs"
	"github.com/parley-chat/parley/internal/llm"
	"github.com/parley-chat/parley/internal/models"
	"github.com/parley-chat/parley/internal/repository"
)

// contextWindowSize caps how many stored messages are replayed to the
// provider on each turn.
const contextWindowSize = 10

// Usage is the token accounting of a single completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatResult is the outcome of one relay turn. ConversationID is nil when
// the exchange was not attached to a stored conversation.
type ChatResult struct {
	Reply          string
	Model          string
	ConversationID *uuid.UUID
	Usage          Usage
}

// ChatService relays a user message to the LLM provider and, when the turn
// is attached to a conversation, records both sides of the exchange.
type ChatService interface {
	Chat(ctx context.Context, ownerID uuid.UUID, message string, conversationID *uuid.UUID) (*ChatResult, error)
}

type chatService struct {
	convs    repository.ConversationRepository
	provider llm.Provider
	cfg      config.LLMConfig
	logger   *zap.Logger
}

func NewChatService(convs repository.ConversationRepository, provider llm.Provider, cfg config.LLMConfig, logger *zap.Logger) ChatService {
	return &chatService{convs: convs, provider: provider, cfg: cfg, logger: logger}
}

func (s *chatService) Chat(ctx context.Context, ownerID uuid.UUID, message string, conversationID *uuid.UUID) (*ChatResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, errs.Validation("message", "is required")
	}

	// A conversation id that does not resolve under this owner degrades the
	// turn to an unattached exchange instead of failing it.
	var conv *models.Conversation
	if conversationID != nil {
		c, err := s.convs.GetByID(ctx, ownerID, *conversationID)
		switch {
		case err == nil:
			conv = c
		case errors.Is(err, errs.ErrNotFound):
			s.logger.Debug("conversation not resolved, replying unattached",
				zap.String("conversation_id", conversationID.String()),
				zap.String("user_id", ownerID.String()))
		default:
			return nil, err
		}
	}

	model := s.cfg.Model
	settings := models.Settings{Temperature: s.cfg.Temperature, MaxTokens: s.cfg.MaxTokens}
	var recent []models.Message
	if conv != nil {
		settings = conv.Settings
		if conv.Model != "" {
			model = conv.Model
		}
		recent = conv.RecentMessages(contextWindowSize)
	}

	userMsg := models.NewMessage(models.RoleUser, message, model)
	window := make([]models.Message, 0, len(recent)+1)
	window = append(window, recent...)
	window = append(window, userMsg)

	// Nothing is persisted until the provider answers: a failed completion
	// leaves the conversation exactly as it was.
	reply, err := s.provider.Complete(ctx, llm.Request{
		Messages:    window,
		Model:       model,
		MaxTokens:   settings.MaxTokens,
		Temperature: settings.Temperature,
	})
	if err != nil {
		return nil, err
	}

	replyModel := reply.Model
	if replyModel == "" {
		replyModel = model
	}

	// The user message goes first and carries the prompt-side usage, the
	// assistant message follows with the completion side, so totalTokens
	// tracks the conversation's cumulative provider usage.
	if conv != nil {
		userMsg.Tokens = reply.PromptTokens
		if conv, err = persistAppend(ctx, s.convs, conv, userMsg); err != nil {
			return nil, err
		}
		assistant := models.NewMessage(models.RoleAssistant, reply.Content, replyModel)
		assistant.Tokens = reply.CompletionTokens
		if conv, err = persistAppend(ctx, s.convs, conv, assistant); err != nil {
			return nil, err
		}
	}

	res := &ChatResult{
		Reply: reply.Content,
		Model: replyModel,
		Usage: Usage{
			PromptTokens:     reply.PromptTokens,
			CompletionTokens: reply.CompletionTokens,
			TotalTokens:      reply.PromptTokens + reply.CompletionTokens,
		},
	}
	if conv != nil {
		id := conv.ID
		res.ConversationID = &id
	}
	return res, nil
}

// persistAppend applies msg to the in-memory aggregate to pick up any title
// derivation, then stores the append and returns the fresh aggregate.
func persistAppend(ctx context.Context, convs repository.ConversationRepository, conv *models.Conversation, msg models.Message) (*models.Conversation, error) {
	title := ""
	before := conv.Title
	conv.Append(msg)
	if conv.Title != before {
		title = conv.Title
	}
	return convs.AppendMessage(ctx, conv.UserID, conv.ID, msg, title)
}
