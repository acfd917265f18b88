package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/parley-chat/parley/internal/models"
)

// Every method takes an owner id alongside the entity id. Ownership is not
// checked after the fact: it is part of the WHERE clause of every statement,
// so another user's conversation behaves exactly like a missing one.

const (
	// DefaultLimit is the page size when the caller names none.
	DefaultLimit = 20
	// MaxLimit caps the page size a caller can request.
	MaxLimit = 100
)

// ConversationFilter narrows and paginates the conversation list. Search
// matches title or message content; the dedicated Search operation matches
// tags as well.
type ConversationFilter struct {
	Page     int
	Limit    int
	Archived bool
	Pinned   *bool
	Tags     []string
	Search   string
}

// Normalize clamps pagination to sane bounds. Out-of-range values are
// corrected silently, never rejected.
func (f *ConversationFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
}

// Offset converts page/limit into a row offset.
func (f ConversationFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// UserRepository handles account persistence.
type UserRepository interface {
	// Create inserts a new user. A username or email collision comes back
	// as errs.ErrConflict wrapped with the violated field.
	Create(ctx context.Context, u *models.User) error

	// GetByID returns a user, or errs.ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByEmail returns a user by exact email, or errs.ErrNotFound.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// Update writes the mutable profile fields (username, email,
	// preferences). Collisions surface as errs.ErrConflict.
	Update(ctx context.Context, u *models.User) error

	// UpdateLastLogin stamps a successful login.
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ConversationRepository handles the conversation aggregate. Messages never
// have their own table: they live inside the conversation row and travel
// with it.
type ConversationRepository interface {
	// Create inserts a new aggregate.
	Create(ctx context.Context, c *models.Conversation) error

	// GetByID returns the full aggregate including every message, scoped to
	// the owner. Returns errs.ErrNotFound when the row is missing or owned
	// by someone else.
	GetByID(ctx context.Context, ownerID, id uuid.UUID) (*models.Conversation, error)

	// List returns one page of summaries for the owner, newest first, plus
	// the total number of rows matching the filter.
	List(ctx context.Context, ownerID uuid.UUID, f ConversationFilter) ([]models.ConversationSummary, int, error)

	// Search returns one page of summaries whose title, message content, or
	// tags match the query, newest first, plus the total match count.
	Search(ctx context.Context, ownerID uuid.UUID, query string, page, limit int) ([]models.ConversationSummary, int, error)

	// Update applies a partial update and returns the new aggregate.
	// Settings merge shallowly: absent fields keep their stored value.
	Update(ctx context.Context, ownerID, id uuid.UUID, patch models.ConversationPatch) (*models.Conversation, error)

	// AppendMessage atomically pushes one message onto the aggregate,
	// accumulates its tokens, records its model, and bumps updated_at.
	// A non-empty title is written in the same statement. Returns the
	// aggregate after the append.
	AppendMessage(ctx context.Context, ownerID, id uuid.UUID, msg models.Message, title string) (*models.Conversation, error)

	// Delete removes the aggregate and its embedded messages with it.
	Delete(ctx context.Context, ownerID, id uuid.UUID) error
}
