// Package models defines the domain entities: users, conversations, and the
// messages embedded inside a conversation. A Conversation together with its
// Messages is one aggregate, one unit of ownership and consistency. All
// behavior that belongs to the aggregate itself (append, derived title,
// derived projections) lives here so it can be tested without a store.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the author of a message. The enum is closed: anything other than
// "user" or "assistant" is a validation failure, enforced in the service
// layer before the message ever reaches the aggregate.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one of the closed enum values.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

const (
	// DefaultTitle is the placeholder a conversation starts with. A title
	// equal to it counts as unset for title derivation.
	DefaultTitle = "New Chat"

	// TitleMaxLen is the upper bound on a conversation title, in runes.
	TitleMaxLen = 100

	// DefaultModel is the fallback model identifier stamped on messages when
	// the caller does not name one.
	DefaultModel = "gpt-3.5-turbo"

	// derivedTitleLen is how many runes of the first user message become the
	// derived title before the ellipsis marker is appended.
	derivedTitleLen = 50
)

// Preferences is the per-user preference bag. Stored as a document, returned
// verbatim in the profile.
type Preferences struct {
	Theme    string `json:"theme"`
	Language string `json:"language"`
}

// DefaultPreferences returns the preferences a new account starts with.
func DefaultPreferences() Preferences {
	return Preferences{Theme: "light", Language: "en"}
}

// User is an account. PasswordHash never leaves the server: every outward
// representation goes through Public().
type User struct {
	ID               uuid.UUID
	Username         string
	Email            string
	PasswordHash     string
	SubscriptionTier string
	IsActive         bool
	LastLogin        *time.Time
	Preferences      Preferences
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PublicUser is the outward projection of a User. No credential field exists
// on this type, so it cannot leak by accident.
type PublicUser struct {
	ID               uuid.UUID   `json:"id"`
	Username         string      `json:"username"`
	Email            string      `json:"email"`
	Initials         string      `json:"initials"`
	SubscriptionTier string      `json:"subscriptionTier"`
	IsActive         bool        `json:"isActive"`
	LastLogin        *time.Time  `json:"lastLogin"`
	Preferences      Preferences `json:"preferences"`
	CreatedAt        time.Time   `json:"createdAt"`
}

// Public returns the public-safe projection of the user.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:               u.ID,
		Username:         u.Username,
		Email:            u.Email,
		Initials:         u.Initials(),
		SubscriptionTier: u.SubscriptionTier,
		IsActive:         u.IsActive,
		LastLogin:        u.LastLogin,
		Preferences:      u.Preferences,
		CreatedAt:        u.CreatedAt,
	}
}

// Initials derives display initials from the username: first letters of the
// first two words ("ada lovelace" -> "AL"), or the first two letters of a
// single-word name ("ada" -> "AD"). Dots, underscores, and hyphens count as
// word separators.
func (u *User) Initials() string {
	parts := strings.FieldsFunc(u.Username, func(r rune) bool {
		return r == ' ' || r == '.' || r == '_' || r == '-'
	})
	switch {
	case len(parts) == 0:
		return ""
	case len(parts) == 1:
		r := []rune(parts[0])
		if len(r) > 2 {
			r = r[:2]
		}
		return strings.ToUpper(string(r))
	default:
		a := []rune(parts[0])
		b := []rune(parts[1])
		return strings.ToUpper(string(a[:1]) + string(b[:1]))
	}
}

// Message is a value owned by exactly one conversation. Messages are only
// created through append; they are never mutated or deleted afterwards.
// The JSON tags double as the embedded storage layout, so the wire shape
// and the persisted shape are the same document.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Tokens    int       `json:"tokens"`
	Model     string    `json:"model"`
}

// NewMessage builds a message with trimmed content and a fresh timestamp.
// An empty model falls back to DefaultModel.
func NewMessage(role Role, content, model string) Message {
	if model == "" {
		model = DefaultModel
	}
	return Message{
		Role:      role,
		Content:   strings.TrimSpace(content),
		Timestamp: time.Now().UTC(),
		Model:     model,
	}
}

// Settings are the per-conversation generation knobs sent to the provider.
type Settings struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
}

// DefaultSettings returns the generation defaults for a new conversation.
func DefaultSettings() Settings {
	return Settings{Temperature: 0.7, MaxTokens: 1000}
}

// Conversation is the aggregate root. Messages is append-only and slice
// order is conversation order. TotalTokens accumulates the token counts of
// appended messages; Model records the model of the latest turn.
type Conversation struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"-"`
	Title       string    `json:"title"`
	Messages    []Message `json:"messages"`
	IsArchived  bool      `json:"isArchived"`
	IsPinned    bool      `json:"isPinned"`
	Tags        []string  `json:"tags"`
	TotalTokens int64     `json:"totalTokens"`
	Model       string    `json:"model"`
	Settings    Settings  `json:"settings"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NewConversation builds an empty aggregate for the given owner. An empty
// title gets the DefaultTitle placeholder so derivation can replace it later.
func NewConversation(ownerID uuid.UUID, title string) *Conversation {
	now := time.Now().UTC()
	if title == "" {
		title = DefaultTitle
	}
	return &Conversation{
		ID:        uuid.New(),
		UserID:    ownerID,
		Title:     title,
		Messages:  make([]Message, 0),
		Tags:      make([]string, 0),
		Model:     DefaultModel,
		Settings:  DefaultSettings(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MessageCount is derived from the embedded sequence, never stored.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// LastMessage returns the final message, or nil for an empty conversation.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// RecentMessages returns at most n trailing messages with their original
// oldest-first order preserved. The returned slice aliases the aggregate.
func (c *Conversation) RecentMessages(n int) []Message {
	if n <= 0 || len(c.Messages) == 0 {
		return nil
	}
	if len(c.Messages) <= n {
		return c.Messages
	}
	return c.Messages[len(c.Messages)-n:]
}

// Append adds a message to the aggregate, records the model of the latest
// turn, accumulates its token count, and derives the title when this message
// completes the rule's precondition. Persistence is the caller's job.
func (c *Conversation) Append(msg Message) {
	c.Messages = append(c.Messages, msg)
	c.Model = msg.Model
	c.TotalTokens += int64(msg.Tokens)
	c.UpdatedAt = time.Now().UTC()
	c.DeriveTitle()
}

func (c *Conversation) titleUnset() bool {
	return c.Title == "" || c.Title == DefaultTitle
}

// DeriveTitle sets the title from the first user-role message when the title
// is still unset: the first 50 runes of its content, with "..." appended when
// the content was longer. Reports whether the title changed.
func (c *Conversation) DeriveTitle() bool {
	if !c.titleUnset() {
		return false
	}
	for i := range c.Messages {
		if c.Messages[i].Role != RoleUser {
			continue
		}
		c.Title = deriveTitle(c.Messages[i].Content)
		return true
	}
	return false
}

func deriveTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= derivedTitleLen {
		return content
	}
	return string(runes[:derivedTitleLen]) + "..."
}

// ConversationSummary is the reduced projection used by list, search, and
// every mutating response. It carries the derived attributes but never the
// full message sequence.
type ConversationSummary struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"messageCount"`
	LastMessage  *Message  `json:"lastMessage"`
	IsArchived   bool      `json:"isArchived"`
	IsPinned     bool      `json:"isPinned"`
	Tags         []string  `json:"tags"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Summary computes the reduced projection of the aggregate.
func (c *Conversation) Summary() ConversationSummary {
	return ConversationSummary{
		ID:           c.ID,
		Title:        c.Title,
		MessageCount: c.MessageCount(),
		LastMessage:  c.LastMessage(),
		IsArchived:   c.IsArchived,
		IsPinned:     c.IsPinned,
		Tags:         c.Tags,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// SettingsPatch is a partial settings update. Nil fields keep their stored
// value; the merge is shallow, field by field, never a wholesale replace.
type SettingsPatch struct {
	Temperature *float64 `json:"temperature"`
	MaxTokens   *int     `json:"maxTokens"`
}

// ConversationPatch is a partial conversation update. Only non-nil fields
// are written.
type ConversationPatch struct {
	Title      *string
	Tags       *[]string
	IsArchived *bool
	IsPinned   *bool
	Settings   *SettingsPatch
}

// Empty reports whether the patch carries no field at all.
func (p ConversationPatch) Empty() bool {
	return p.Title == nil && p.Tags == nil && p.IsArchived == nil &&
		p.IsPinned == nil && p.Settings == nil
}
