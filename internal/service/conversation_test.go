package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parley-chat/parley/internal/errs"
	"github.com/parley-chat/parley/internal/models"
	"github.com/parley-chat/parley/internal/repository"
)

// fakeConvs mirrors the Postgres store's contract: ownership is part of
// every lookup, and AppendMessage applies the same side effects the SQL does.
type fakeConvs struct {
	byID  map[uuid.UUID]*models.Conversation
	total int

	createErr error
	getErr    error
	listErr   error
	updateErr error
	appendErr error
	deleteErr error

	appendCalls int
	lastTitle   string
	lastQuery   string
	lastPage    int
	lastLimit   int
	lastFilter  repository.ConversationFilter
}

var _ repository.ConversationRepository = (*fakeConvs)(nil)

func (f *fakeConvs) clone(c *models.Conversation) *models.Conversation {
	cpy := *c
	cpy.Messages = append([]models.Message(nil), c.Messages...)
	cpy.Tags = append([]string(nil), c.Tags...)
	return &cpy
}

func (f *fakeConvs) Create(_ context.Context, c *models.Conversation) error {
	if f.createErr != nil {
		return f.createErr
	}
	if f.byID == nil {
		f.byID = map[uuid.UUID]*models.Conversation{}
	}
	f.byID[c.ID] = f.clone(c)
	return nil
}

func (f *fakeConvs) GetByID(_ context.Context, ownerID, id uuid.UUID) (*models.Conversation, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	c, ok := f.byID[id]
	if !ok || c.UserID != ownerID {
		return nil, errs.ErrNotFound
	}
	return f.clone(c), nil
}

func (f *fakeConvs) List(_ context.Context, ownerID uuid.UUID, flt repository.ConversationFilter) ([]models.ConversationSummary, int, error) {
	f.lastFilter = flt
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	out := []models.ConversationSummary{}
	for _, c := range f.byID {
		if c.UserID != ownerID || c.IsArchived != flt.Archived {
			continue
		}
		if flt.Pinned != nil && c.IsPinned != *flt.Pinned {
			continue
		}
		out = append(out, c.Summary())
	}
	total := f.total
	if total == 0 {
		total = len(out)
	}
	return out, total, nil
}

func (f *fakeConvs) Search(_ context.Context, ownerID uuid.UUID, query string, page, limit int) ([]models.ConversationSummary, int, error) {
	f.lastQuery, f.lastPage, f.lastLimit = query, page, limit
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	out := []models.ConversationSummary{}
	for _, c := range f.byID {
		if c.UserID != ownerID {
			continue
		}
		if strings.Contains(strings.ToLower(c.Title), strings.ToLower(query)) {
			out = append(out, c.Summary())
		}
	}
	total := f.total
	if total == 0 {
		total = len(out)
	}
	return out, total, nil
}

func (f *fakeConvs) Update(_ context.Context, ownerID, id uuid.UUID, patch models.ConversationPatch) (*models.Conversation, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	c, ok := f.byID[id]
	if !ok || c.UserID != ownerID {
		return nil, errs.ErrNotFound
	}
	if patch.Title != nil {
		c.Title = *patch.Title
	}
	if patch.Tags != nil {
		c.Tags = append([]string(nil), (*patch.Tags)...)
	}
	if patch.IsArchived != nil {
		c.IsArchived = *patch.IsArchived
	}
	if patch.IsPinned != nil {
		c.IsPinned = *patch.IsPinned
	}
	if patch.Settings != nil {
		if patch.Settings.Temperature != nil {
			c.Settings.Temperature = *patch.Settings.Temperature
		}
		if patch.Settings.MaxTokens != nil {
			c.Settings.MaxTokens = *patch.Settings.MaxTokens
		}
	}
	c.UpdatedAt = time.Now().UTC()
	return f.clone(c), nil
}

func (f *fakeConvs) AppendMessage(_ context.Context, ownerID, id uuid.UUID, msg models.Message, title string) (*models.Conversation, error) {
	f.appendCalls++
	f.lastTitle = title
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	c, ok := f.byID[id]
	if !ok || c.UserID != ownerID {
		return nil, errs.ErrNotFound
	}
	c.Messages = append(c.Messages, msg)
	c.TotalTokens += int64(msg.Tokens)
	c.Model = msg.Model
	if title != "" {
		c.Title = title
	}
	c.UpdatedAt = time.Now().UTC()
	return f.clone(c), nil
}

func (f *fakeConvs) Delete(_ context.Context, ownerID, id uuid.UUID) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	c, ok := f.byID[id]
	if !ok || c.UserID != ownerID {
		return errs.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

func seedConv(convs *fakeConvs, ownerID uuid.UUID, title string) *models.Conversation {
	c := models.NewConversation(ownerID, title)
	if convs.byID == nil {
		convs.byID = map[uuid.UUID]*models.Conversation{}
	}
	convs.byID[c.ID] = c
	return c
}

func TestConversations_Create(t *testing.T) {
	t.Parallel()
	convs := &fakeConvs{}
	s := NewConversationService(convs, zap.NewNop())
	owner := uuid.New()

	c, err := s.Create(context.Background(), owner, "", "", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.Title != models.DefaultTitle || len(c.Messages) != 0 {
		t.Fatalf("bad empty conversation: %+v", c)
	}
	if _, ok := convs.byID[c.ID]; !ok {
		t.Fatalf("conversation not stored")
	}

	c, err = s.Create(context.Background(), owner, "", "How do container runtimes isolate processes?", nil)
	if err != nil {
		t.Fatalf("Create with message: %v", err)
	}
	if len(c.Messages) != 1 || c.Messages[0].Role != models.RoleUser {
		t.Fatalf("initial message not appended: %+v", c.Messages)
	}
	if c.Title != "How do container runtimes isolate processes?" {
		t.Fatalf("title not derived: %q", c.Title)
	}

	c, err = s.Create(context.Background(), owner, "K8s notes", "first question", []string{" infra ", "", "k8s"})
	if err != nil {
		t.Fatalf("Create titled: %v", err)
	}
	if c.Title != "K8s notes" {
		t.Fatalf("explicit title overwritten: %q", c.Title)
	}
	if len(c.Tags) != 2 || c.Tags[0] != "infra" || c.Tags[1] != "k8s" {
		t.Fatalf("tags not cleaned: %+v", c.Tags)
	}
}

func TestConversations_Create_Validation(t *testing.T) {
	t.Parallel()
	s := NewConversationService(&fakeConvs{}, zap.NewNop())
	owner := uuid.New()

	_, err := s.Create(context.Background(), owner, strings.Repeat("t", 101), "", nil)
	ve, ok := errs.AsValidation(err)
	if !ok || ve.Violations[0].Field != "title" {
		t.Fatalf("want title violation, got %v", err)
	}

	_, err = s.Create(context.Background(), owner, "ok", "", []string{strings.Repeat("x", 51)})
	if ve, ok := errs.AsValidation(err); !ok || ve.Violations[0].Field != "tags" {
		t.Fatalf("want tags violation, got %v", err)
	}
}

func TestConversations_Get_OwnershipHidden(t *testing.T) {
	t.Parallel()
	convs := &fakeConvs{}
	owner := uuid.New()
	c := seedConv(convs, owner, "mine")
	s := NewConversationService(convs, zap.NewNop())

	if _, err := s.Get(context.Background(), owner, c.ID); err != nil {
		t.Fatalf("Get: %v", err)
	}

	_, err := s.Get(context.Background(), uuid.New(), c.ID)
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("foreign conversation must look missing, got %v", err)
	}
}

func TestConversations_List_PaginationNormalized(t *testing.T) {
	t.Parallel()
	convs := &fakeConvs{total: 45}
	owner := uuid.New()
	seedConv(convs, owner, "a")
	s := NewConversationService(convs, zap.NewNop())

	page, err := s.List(context.Background(), owner, repository.ConversationFilter{Page: -3, Limit: 0})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Page != 1 || page.Limit != repository.DefaultLimit {
		t.Fatalf("pagination not normalized: %+v", page)
	}
	if page.Total != 45 || page.TotalPages != 3 {
		t.Fatalf("bad totals: %+v", page)
	}

	_, err = s.List(context.Background(), owner, repository.ConversationFilter{Page: 2, Limit: 500})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if convs.lastFilter.Limit != repository.MaxLimit {
		t.Fatalf("limit not capped: %+v", convs.lastFilter)
	}
}

func TestConversations_Search(t *testing.T) {
	t.Parallel()
	convs := &fakeConvs{}
	owner := uuid.New()
	seedConv(convs, owner, "Kubernetes pods")
	s := NewConversationService(convs, zap.NewNop())

	if _, err := s.Search(context.Background(), owner, "   ", 1, 10); err == nil {
		t.Fatalf("want validation error on blank query")
	}

	got, err := s.Search(context.Background(), owner, "  pods ", 0, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got.Items) != 1 || got.Total != 1 {
		t.Fatalf("want 1 hit, got %+v", got)
	}
	if got.Page != 1 || got.Limit != repository.DefaultLimit {
		t.Fatalf("pagination not normalized: %+v", got)
	}
	if convs.lastQuery != "pods" {
		t.Fatalf("query not trimmed: %q", convs.lastQuery)
	}

	if _, err := s.Search(context.Background(), owner, "pods", 1, 9000); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if convs.lastLimit != repository.MaxLimit {
		t.Fatalf("oversized limit not capped: %d", convs.lastLimit)
	}
}

func TestConversations_Update(t *testing.T) {
	t.Parallel()
	convs := &fakeConvs{}
	owner := uuid.New()
	c := seedConv(convs, owner, "old title")
	s := NewConversationService(convs, zap.NewNop())

	// An empty patch is a legal no-op merge, not a validation failure.
	if _, err := s.Update(context.Background(), owner, c.ID, models.ConversationPatch{}); err != nil {
		t.Fatalf("empty patch must pass through: %v", err)
	}

	blank := "   "
	if _, err := s.Update(context.Background(), owner, c.ID, models.ConversationPatch{Title: &blank}); err == nil {
		t.Fatalf("want validation error on blank title")
	}

	hot := 3.0
	_, err := s.Update(context.Background(), owner, c.ID, models.ConversationPatch{Settings: &models.SettingsPatch{Temperature: &hot}})
	if ve, ok := errs.AsValidation(err); !ok || ve.Violations[0].Field != "settings.temperature" {
		t.Fatalf("want temperature violation, got %v", err)
	}

	title := "  new title  "
	pinned := true
	temp := 0.2
	got, err := s.Update(context.Background(), owner, c.ID, models.ConversationPatch{
		Title:    &title,
		IsPinned: &pinned,
		Settings: &models.SettingsPatch{Temperature: &temp},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Title != "new title" || !got.IsPinned {
		t.Fatalf("patch not applied: %+v", got)
	}
	if got.Settings.Temperature != 0.2 || got.Settings.MaxTokens != 1000 {
		t.Fatalf("settings merge not shallow: %+v", got.Settings)
	}

	_, err = s.Update(context.Background(), uuid.New(), c.ID, models.ConversationPatch{IsPinned: &pinned})
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("foreign update must look missing, got %v", err)
	}
}

func TestConversations_AppendMessage(t *testing.T) {
	t.Parallel()
	convs := &fakeConvs{}
	owner := uuid.New()
	c := seedConv(convs, owner, "")
	s := NewConversationService(convs, zap.NewNop())

	_, err := s.AppendMessage(context.Background(), owner, c.ID, "system", "hi", "")
	if ve, ok := errs.AsValidation(err); !ok || ve.Violations[0].Field != "role" {
		t.Fatalf("want role violation, got %v", err)
	}

	if _, err := s.AppendMessage(context.Background(), owner, c.ID, models.RoleUser, "   ", ""); err == nil {
		t.Fatalf("want validation error on blank content")
	}

	got, err := s.AppendMessage(context.Background(), owner, c.ID, models.RoleUser, "Explain TCP slow start", "")
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if got.MessageCount() != 1 || got.Title != "Explain TCP slow start" {
		t.Fatalf("append did not derive title: %+v", got)
	}
	if convs.lastTitle != "Explain TCP slow start" {
		t.Fatalf("derived title not written with the append: %q", convs.lastTitle)
	}

	got, err = s.AppendMessage(context.Background(), owner, c.ID, models.RoleAssistant, "Sure.", "gpt-4")
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if convs.lastTitle != "" {
		t.Fatalf("title rewritten on a later append: %q", convs.lastTitle)
	}
	if got.Model != "gpt-4" || got.MessageCount() != 2 {
		t.Fatalf("append side effects missing: %+v", got)
	}
}

func TestConversations_Delete(t *testing.T) {
	t.Parallel()
	convs := &fakeConvs{}
	owner := uuid.New()
	c := seedConv(convs, owner, "x")
	s := NewConversationService(convs, zap.NewNop())

	if err := s.Delete(context.Background(), uuid.New(), c.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("foreign delete must look missing, got %v", err)
	}
	if err := s.Delete(context.Background(), owner, c.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(convs.byID) != 0 {
		t.Fatalf("conversation still stored")
	}
}
