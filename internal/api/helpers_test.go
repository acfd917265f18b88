package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parley-chat/parley/internal/api"
	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/models"
	"github.com/parley-chat/parley/internal/repository"
	"github.com/parley-chat/parley/internal/service"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// errUnexpectedCall is what a stub answers when a test exercises a method it
// never wired up. It surfaces as a 500 and fails the status assertion.
var errUnexpectedCall = errors.New("unexpected service call")

type stubAuthService struct {
	registerFunc      func(ctx context.Context, username, email, password string) (*service.Session, error)
	loginFunc         func(ctx context.Context, email, password, ip string) (*service.Session, error)
	profileFunc       func(ctx context.Context, userID uuid.UUID) (models.PublicUser, error)
	updateProfileFunc func(ctx context.Context, userID uuid.UUID, upd service.ProfileUpdate) (models.PublicUser, error)
}

var _ service.AuthService = (*stubAuthService)(nil)

func (s *stubAuthService) Register(ctx context.Context, username, email, password string) (*service.Session, error) {
	if s.registerFunc == nil {
		return nil, errUnexpectedCall
	}
	return s.registerFunc(ctx, username, email, password)
}

func (s *stubAuthService) Login(ctx context.Context, email, password, ip string) (*service.Session, error) {
	if s.loginFunc == nil {
		return nil, errUnexpectedCall
	}
	return s.loginFunc(ctx, email, password, ip)
}

func (s *stubAuthService) Profile(ctx context.Context, userID uuid.UUID) (models.PublicUser, error) {
	if s.profileFunc == nil {
		return models.PublicUser{}, errUnexpectedCall
	}
	return s.profileFunc(ctx, userID)
}

func (s *stubAuthService) UpdateProfile(ctx context.Context, userID uuid.UUID, upd service.ProfileUpdate) (models.PublicUser, error) {
	if s.updateProfileFunc == nil {
		return models.PublicUser{}, errUnexpectedCall
	}
	return s.updateProfileFunc(ctx, userID, upd)
}

type stubConversationService struct {
	createFunc func(ctx context.Context, ownerID uuid.UUID, title, initialMessage string, tags []string) (*models.Conversation, error)
	getFunc    func(ctx context.Context, ownerID, id uuid.UUID) (*models.Conversation, error)
	listFunc   func(ctx context.Context, ownerID uuid.UUID, f repository.ConversationFilter) (*service.ConversationPage, error)
	searchFunc func(ctx context.Context, ownerID uuid.UUID, query string, page, limit int) (*service.ConversationPage, error)
	updateFunc func(ctx context.Context, ownerID, id uuid.UUID, patch models.ConversationPatch) (*models.Conversation, error)
	appendFunc func(ctx context.Context, ownerID, id uuid.UUID, role models.Role, content, model string) (*models.Conversation, error)
	deleteFunc func(ctx context.Context, ownerID, id uuid.UUID) error
}

var _ service.ConversationService = (*stubConversationService)(nil)

func (s *stubConversationService) Create(ctx context.Context, ownerID uuid.UUID, title, initialMessage string, tags []string) (*models.Conversation, error) {
	if s.createFunc == nil {
		return nil, errUnexpectedCall
	}
	return s.createFunc(ctx, ownerID, title, initialMessage, tags)
}

func (s *stubConversationService) Get(ctx context.Context, ownerID, id uuid.UUID) (*models.Conversation, error) {
	if s.getFunc == nil {
		return nil, errUnexpectedCall
	}
	return s.getFunc(ctx, ownerID, id)
}

func (s *stubConversationService) List(ctx context.Context, ownerID uuid.UUID, f repository.ConversationFilter) (*service.ConversationPage, error) {
	if s.listFunc == nil {
		return nil, errUnexpectedCall
	}
	return s.listFunc(ctx, ownerID, f)
}

func (s *stubConversationService) Search(ctx context.Context, ownerID uuid.UUID, query string, page, limit int) (*service.ConversationPage, error) {
	if s.searchFunc == nil {
		return nil, errUnexpectedCall
	}
	return s.searchFunc(ctx, ownerID, query, page, limit)
}

func (s *stubConversationService) Update(ctx context.Context, ownerID, id uuid.UUID, patch models.ConversationPatch) (*models.Conversation, error) {
	if s.updateFunc == nil {
		return nil, errUnexpectedCall
	}
	return s.updateFunc(ctx, ownerID, id, patch)
}

func (s *stubConversationService) AppendMessage(ctx context.Context, ownerID, id uuid.UUID, role models.Role, content, model string) (*models.Conversation, error) {
	if s.appendFunc == nil {
		return nil, errUnexpectedCall
	}
	return s.appendFunc(ctx, ownerID, id, role, content, model)
}

func (s *stubConversationService) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	if s.deleteFunc == nil {
		return errUnexpectedCall
	}
	return s.deleteFunc(ctx, ownerID, id)
}

type stubChatService struct {
	chatFunc func(ctx context.Context, ownerID uuid.UUID, message string, conversationID *uuid.UUID) (*service.ChatResult, error)
}

var _ service.ChatService = (*stubChatService)(nil)

func (s *stubChatService) Chat(ctx context.Context, ownerID uuid.UUID, message string, conversationID *uuid.UUID) (*service.ChatResult, error) {
	if s.chatFunc == nil {
		return nil, errUnexpectedCall
	}
	return s.chatFunc(ctx, ownerID, message, conversationID)
}

func testTokens() *auth.Manager {
	return auth.NewManager(testSecret, "parley", time.Hour)
}

// testRouter mounts the real router with stub services, so routes and the
// auth middleware are exercised exactly as in production.
func testRouter(authSvc service.AuthService, convSvc service.ConversationService, chatSvc service.ChatService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	h := api.Handlers{
		Auth:          api.NewAuthHandler(authSvc, logger),
		Conversations: api.NewConversationHandler(convSvc, logger),
		Chat:          api.NewChatHandler(chatSvc, logger),
		Health:        api.NewHealthHandler(nil, logger),
	}
	return api.NewRouter(h, testTokens(), logger, "*")
}

func bearer(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token, _, err := testTokens().Generate(userID, "ada@example.com")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return "Bearer " + token
}

func doJSON(t *testing.T, r http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("parse response %q: %v", w.Body.String(), err)
	}
	return out
}
