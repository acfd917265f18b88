package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/parley-chat/parley/internal/errs"
	"github.com/parley-chat/parley/internal/models"
	"github.com/parley-chat/parley/internal/repository"
)

const convColumns = `id, user_id, title, messages, is_archived, is_pinned, tags, total_tokens, model, settings, created_at, updated_at`

// summaryColumns projects the reduced view in SQL: the row count and the
// last element come out of the jsonb array without shipping the whole
// message sequence to the application.
const summaryColumns = `id, title, jsonb_array_length(messages), messages -> -1, is_archived, is_pinned, tags, created_at, updated_at`

// qb builds the dynamic statements with Postgres placeholders.
var qb = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// ConversationStore implements repository.ConversationRepository.
type ConversationStore struct {
	pool PgxPool
}

func NewConversationStore(pool PgxPool) *ConversationStore {
	return &ConversationStore{pool: pool}
}

func (s *ConversationStore) Create(ctx context.Context, c *models.Conversation) error {
	messages, err := json.Marshal(c.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	settings, err := json.Marshal(c.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	query := `
		INSERT INTO conversations (id, user_id, title, messages, is_archived, is_pinned, tags, total_tokens, model, settings)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	err = s.pool.QueryRow(ctx, query,
		c.ID, c.UserID, c.Title, messages, c.IsArchived, c.IsPinned, c.Tags, c.TotalTokens, c.Model, settings,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (s *ConversationStore) GetByID(ctx context.Context, ownerID, id uuid.UUID) (*models.Conversation, error) {
	query := `SELECT ` + convColumns + ` FROM conversations WHERE user_id = $1 AND id = $2`
	c, err := scanConversation(s.pool.QueryRow(ctx, query, ownerID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

func (s *ConversationStore) List(ctx context.Context, ownerID uuid.UUID, f repository.ConversationFilter) ([]models.ConversationSummary, int, error) {
	conds := squirrel.And{
		squirrel.Eq{"user_id": ownerID},
		squirrel.Eq{"is_archived": f.Archived},
	}
	if f.Pinned != nil {
		conds = append(conds, squirrel.Eq{"is_pinned": *f.Pinned})
	}
	if len(f.Tags) > 0 {
		conds = append(conds, squirrel.Expr("tags && ?", f.Tags))
	}
	if f.Search != "" {
		pattern := likePattern(f.Search)
		conds = append(conds, squirrel.Or{
			squirrel.ILike{"title": pattern},
			contentMatches(pattern),
		})
	}
	return s.page(ctx, conds, f.Limit, f.Offset())
}

func (s *ConversationStore) Search(ctx context.Context, ownerID uuid.UUID, query string, page, limit int) ([]models.ConversationSummary, int, error) {
	pattern := likePattern(query)
	conds := squirrel.And{
		squirrel.Eq{"user_id": ownerID},
		squirrel.Or{
			squirrel.ILike{"title": pattern},
			contentMatches(pattern),
			squirrel.Expr("EXISTS (SELECT 1 FROM unnest(tags) AS tag WHERE tag ILIKE ?)", pattern),
		},
	}
	return s.page(ctx, conds, limit, (page-1)*limit)
}

// page runs the shared count-then-select pair behind both List and Search.
func (s *ConversationStore) page(ctx context.Context, conds squirrel.Sqlizer, limit, offset int) ([]models.ConversationSummary, int, error) {
	countSQL, countArgs, err := qb.Select("count(*)").From("conversations").Where(conds).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}
	var total int
	if err := s.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count conversations: %w", err)
	}

	pageSQL, pageArgs, err := qb.Select(summaryColumns).
		From("conversations").
		Where(conds).
		OrderBy("updated_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build page: %w", err)
	}

	rows, err := s.pool.Query(ctx, pageSQL, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("select conversations: %w", err)
	}
	defer rows.Close()

	summaries, err := scanSummaries(rows)
	if err != nil {
		return nil, 0, err
	}
	return summaries, total, nil
}

func contentMatches(pattern string) squirrel.Sqlizer {
	return squirrel.Expr("EXISTS (SELECT 1 FROM jsonb_array_elements(messages) AS m WHERE m ->> 'content' ILIKE ?)", pattern)
}

func (s *ConversationStore) Update(ctx context.Context, ownerID, id uuid.UUID, patch models.ConversationPatch) (*models.Conversation, error) {
	b := qb.Update("conversations")
	if patch.Title != nil {
		b = b.Set("title", *patch.Title)
	}
	if patch.Tags != nil {
		b = b.Set("tags", *patch.Tags)
	}
	if patch.IsArchived != nil {
		b = b.Set("is_archived", *patch.IsArchived)
	}
	if patch.IsPinned != nil {
		b = b.Set("is_pinned", *patch.IsPinned)
	}
	if patch.Settings != nil {
		// Shallow jsonb merge: only the provided keys are replaced.
		merge := make(map[string]any, 2)
		if patch.Settings.Temperature != nil {
			merge["temperature"] = *patch.Settings.Temperature
		}
		if patch.Settings.MaxTokens != nil {
			merge["maxTokens"] = *patch.Settings.MaxTokens
		}
		if len(merge) > 0 {
			data, err := json.Marshal(merge)
			if err != nil {
				return nil, fmt.Errorf("marshal settings patch: %w", err)
			}
			b = b.Set("settings", squirrel.Expr("settings || ?::jsonb", data))
		}
	}

	updateSQL, args, err := b.
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"user_id": ownerID, "id": id}).
		Suffix("RETURNING " + convColumns).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update: %w", err)
	}

	c, err := scanConversation(s.pool.QueryRow(ctx, updateSQL, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("update conversation: %w", err)
	}
	return c, nil
}

// AppendMessage pushes one message onto the jsonb array in a single UPDATE,
// so concurrent appends interleave instead of overwriting each other.
func (s *ConversationStore) AppendMessage(ctx context.Context, ownerID, id uuid.UUID, msg models.Message, title string) (*models.Conversation, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	query := `
		UPDATE conversations
		SET messages = messages || $3::jsonb,
		    total_tokens = total_tokens + $4,
		    model = $5,
		    title = CASE WHEN $6 <> '' THEN $6 ELSE title END,
		    updated_at = now()
		WHERE user_id = $1 AND id = $2
		RETURNING ` + convColumns

	c, err := scanConversation(s.pool.QueryRow(ctx, query, ownerID, id, data, msg.Tokens, msg.Model, title))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("append message: %w", err)
	}
	return c, nil
}

func (s *ConversationStore) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE user_id = $1 AND id = $2`, ownerID, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	var c models.Conversation
	var messages, settings []byte
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.Title,
		&messages,
		&c.IsArchived,
		&c.IsPinned,
		&c.Tags,
		&c.TotalTokens,
		&c.Model,
		&settings,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(messages, &c.Messages); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	if err := json.Unmarshal(settings, &c.Settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	return &c, nil
}

func scanSummaries(rows pgx.Rows) ([]models.ConversationSummary, error) {
	summaries := make([]models.ConversationSummary, 0)
	for rows.Next() {
		var sum models.ConversationSummary
		var last []byte
		if err := rows.Scan(
			&sum.ID,
			&sum.Title,
			&sum.MessageCount,
			&last,
			&sum.IsArchived,
			&sum.IsPinned,
			&sum.Tags,
			&sum.CreatedAt,
			&sum.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		if len(last) > 0 {
			var msg models.Message
			if err := json.Unmarshal(last, &msg); err != nil {
				return nil, fmt.Errorf("unmarshal last message: %w", err)
			}
			sum.LastMessage = &msg
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summaries: %w", err)
	}
	return summaries, nil
}

// likePattern wraps a raw query in ILIKE wildcards, escaping the ones the
// user typed so they match literally.
func likePattern(query string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(query) + "%"
}
