// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

// Package web serves the Quill account API over HTTP with gin.
package web

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Logger         *slog.Logger
	RequestTimeout time.Duration
	// Limiter guards the /auth routes; nil disables rate limiting.
	Limiter       *RateLimiter
	SecureCookies bool
}

// NewRouter builds the HTTP routes.
func NewRouter(svc AuthService, opts RouterOptions) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery(), AccessLog(opts.Logger))
	if opts.RequestTimeout > 0 {
		router.Use(RequestTimeout(opts.RequestTimeout))
	}

	router.GET("/health", Health)

	h := NewHandlers(svc, opts.Logger, opts.SecureCookies)

	group := router.Group("/auth")
	if opts.Limiter != nil {
		group.Use(opts.Limiter.Middleware())
	}
	{
		group.POST("/register", h.Register)
		group.POST("/verify", h.Verify)
		group.POST("/login", h.Login)
		group.POST("/logout", h.Logout)
		group.POST("/forgot", h.Forgot)
		group.POST("/reset", h.Reset)
		group.POST("/resend-verification", h.ResendVerification)
		group.GET("/me", SessionGuard(svc, opts.Logger), h.Me)
	}

	return router
}
