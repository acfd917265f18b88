// Package api holds the gin handlers and the router. Handlers bind and
// parse requests, delegate to the service layer, and translate results into
// JSON responses; they carry no business rules of their own.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/parley-chat/parley/internal/middleware"
	"github.com/parley-chat/parley/internal/models"
	"github.com/parley-chat/parley/internal/service"
)

// AuthHandler serves the public register and login endpoints plus the
// authenticated profile pair.
type AuthHandler struct {
	svc    service.AuthService
	logger *zap.Logger
}

func NewAuthHandler(svc service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type preferencesPatch struct {
	Theme    *string `json:"theme"`
	Language *string `json:"language"`
}

type updateProfileRequest struct {
	Username    *string           `json:"username"`
	Email       *string           `json:"email"`
	Preferences *preferencesPatch `json:"preferences"`
}

// authResponse is what register and login return. The client stores the
// token and sends it as "Authorization: Bearer <token>" on every
// subsequent request.
type authResponse struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expiresAt"`
	User      models.PublicUser `json:"user"`
}

// Register handles POST /auth/register. Field validation lives in the
// service so a bad request reports every violation at once.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.svc.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, authResponse{
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
		User:      sess.User,
	})
}

// Login handles POST /auth/login. The client address feeds the attempt
// limiter.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.svc.Login(c.Request.Context(), req.Email, req.Password, c.ClientIP())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, authResponse{
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
		User:      sess.User,
	})
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.svc.Profile(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateProfile handles PUT /auth/profile. Absent fields stay untouched.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	upd := service.ProfileUpdate{
		Username: req.Username,
		Email:    req.Email,
	}
	if req.Preferences != nil {
		upd.Theme = req.Preferences.Theme
		upd.Language = req.Preferences.Language
	}

	user, err := h.svc.UpdateProfile(c.Request.Context(), middleware.GetUserID(c), upd)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
