// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package web

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quillnotes/quill/internal/auth"
	"github.com/quillnotes/quill/pkg/errutil"
)

// SessionCookie is the name of the cookie carrying the session token.
const SessionCookie = "token"

const currentUserKey = "quill.user"

// SessionResolver resolves a session token to its user.
type SessionResolver interface {
	CurrentUser(ctx context.Context, sessionToken string) (*auth.User, error)
}

// RequestTimeout bounds the request context.
func RequestTimeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// AccessLog logs one line per request.
func AccessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.InfoContext(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

// SessionGuard requires a valid session from the token cookie or an
// Authorization bearer header, and stores the user on the context.
func SessionGuard(sessions SessionResolver, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := sessionToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("not signed in"))
			return
		}

		user, err := sessions.CurrentUser(c.Request.Context(), token)
		if err != nil {
			if auth.IsInternal(err) {
				errutil.LogError(c.Request.Context(), logger, "session lookup failed", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody(msgInternal))
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("not signed in"))
			return
		}

		c.Set(currentUserKey, user)
		c.Next()
	}
}

// CurrentUser returns the user stored by SessionGuard.
func CurrentUser(c *gin.Context) (*auth.User, bool) {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*auth.User)
	return user, ok
}

func sessionToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	token, err := c.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return token
}
