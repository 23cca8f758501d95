// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quillnotes/quill/internal/auth"
	"github.com/quillnotes/quill/pkg/errutil"
)

// HXRedirect is the htmx client-side redirect header.
const HXRedirect = "HX-Redirect"

const (
	msgBadRequest = "invalid request body"
	msgInternal   = "internal error"
)

// AuthService is the account API served by the handlers.
type AuthService interface {
	SessionResolver
	Register(ctx context.Context, email, name, password string) (auth.Outcome, error)
	Verify(ctx context.Context, token string) (auth.Outcome, error)
	Login(ctx context.Context, email, password string) (auth.Outcome, error)
	Forgot(ctx context.Context, email string) auth.Outcome
	ResendVerification(ctx context.Context, email string) auth.Outcome
	Reset(ctx context.Context, token, newPassword string) (auth.Outcome, error)
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type resetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token      string `json:"token"`
	PID        string `json:"pid"`
	Name       string `json:"name"`
	IsVerified bool   `json:"is_verified"`
}

type userResponse struct {
	PID        string `json:"pid"`
	Name       string `json:"name"`
	IsVerified bool   `json:"is_verified"`
}

// Handlers serves the /auth routes.
type Handlers struct {
	auth          AuthService
	logger        *slog.Logger
	secureCookies bool
	now           func() time.Time
}

// NewHandlers creates the auth handlers.
func NewHandlers(svc AuthService, logger *slog.Logger, secureCookies bool) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{auth: svc, logger: logger, secureCookies: secureCookies, now: time.Now}
}

// Register handles POST /auth/register.
func (h *Handlers) Register(c *gin.Context) {
	var req registerRequest
	if !bind(c, &req) {
		return
	}
	out, err := h.auth.Register(c.Request.Context(), req.Email, req.Name, req.Password)
	h.respond(c, "register", out, err, http.StatusUnprocessableEntity)
}

// Verify handles POST /auth/verify.
func (h *Handlers) Verify(c *gin.Context) {
	var req tokenRequest
	if !bind(c, &req) {
		return
	}
	out, err := h.auth.Verify(c.Request.Context(), req.Token)
	h.respond(c, "verify", out, err, http.StatusUnauthorized)
}

// Login handles POST /auth/login.
func (h *Handlers) Login(c *gin.Context) {
	var req loginRequest
	if !bind(c, &req) {
		return
	}
	out, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil || !out.OK() || out.Session == nil {
		h.respond(c, "login", out, err, http.StatusUnauthorized)
		return
	}

	grant := out.Session
	maxAge := int(grant.ExpiresAt.Sub(h.now()).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, grant.Token, maxAge, "/", "", h.secureCookies, true)
	redirect(c, out)
	c.JSON(http.StatusOK, loginResponse{
		Token:      grant.Token,
		PID:        grant.PID.String(),
		Name:       grant.Name,
		IsVerified: grant.Verified,
	})
}

// Forgot handles POST /auth/forgot. It always answers 200.
func (h *Handlers) Forgot(c *gin.Context) {
	var req emailRequest
	if !bind(c, &req) {
		return
	}
	h.auth.Forgot(c.Request.Context(), req.Email)
	c.JSON(http.StatusOK, gin.H{})
}

// ResendVerification handles POST /auth/resend-verification. It always
// answers 200.
func (h *Handlers) ResendVerification(c *gin.Context) {
	var req emailRequest
	if !bind(c, &req) {
		return
	}
	h.auth.ResendVerification(c.Request.Context(), req.Email)
	c.JSON(http.StatusOK, gin.H{})
}

// Reset handles POST /auth/reset.
func (h *Handlers) Reset(c *gin.Context) {
	var req resetRequest
	if !bind(c, &req) {
		return
	}
	out, err := h.auth.Reset(c.Request.Context(), req.Token, req.Password)
	h.respond(c, "reset", out, err, http.StatusUnauthorized)
}

// Me handles GET /auth/me behind SessionGuard.
func (h *Handlers) Me(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("not signed in"))
		return
	}
	c.JSON(http.StatusOK, userResponse{
		PID:        user.PID.String(),
		Name:       user.Name,
		IsVerified: user.IsVerified(),
	})
}

// Logout handles POST /auth/logout by expiring the session cookie.
func (h *Handlers) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, "", -1, "/", "", h.secureCookies, true)
	c.Header(HXRedirect, auth.RedirectLogin)
	c.JSON(http.StatusOK, gin.H{})
}

// Health handles GET /health.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handlers) respond(c *gin.Context, flow string, out auth.Outcome, err error, rejectedStatus int) {
	if err != nil {
		errutil.LogError(c.Request.Context(), h.logger, "auth flow failed", err, "flow", flow)
		c.JSON(http.StatusInternalServerError, errorBody(msgInternal))
		return
	}

	redirect(c, out)
	if !out.OK() {
		c.JSON(rejectedStatus, errorBody(out.Message))
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func redirect(c *gin.Context, out auth.Outcome) {
	if out.Redirect != "" {
		c.Header(HXRedirect, out.Redirect)
	}
}

func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(msgBadRequest))
		return false
	}
	return true
}

func errorBody(msg string) gin.H {
	return gin.H{"error": msg}
}
