// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

type rejections struct {
	mu     sync.Mutex
	routes []string
}

func (r *rejections) RecordRateLimited(route string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route)
}

func limitedRouter(rl *RateLimiter) *gin.Engine {
	router := gin.New()
	router.POST("/auth/login", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return router
}

func hit(router *gin.Engine, ip string) int {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = ip + ":40000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimiter_PerClientBurst(t *testing.T) {
	rec := &rejections{}
	rl := NewRateLimiter(1, 2, rec)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	router := limitedRouter(rl)

	assert.Equal(t, http.StatusNoContent, hit(router, "10.0.0.1"))
	assert.Equal(t, http.StatusNoContent, hit(router, "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, hit(router, "10.0.0.1"))

	assert.Equal(t, http.StatusNoContent, hit(router, "10.0.0.2"), "other clients have their own bucket")

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusNoContent, hit(router, "10.0.0.1"), "bucket refills over time")

	assert.Equal(t, []string{"/auth/login"}, rec.routes)
}

func TestRateLimiter_EvictsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.allow("10.0.0.1")
	now = now.Add(visitorIdle / 2)
	rl.allow("10.0.0.2")
	now = now.Add(visitorIdle/2 + time.Second)

	assert.Equal(t, 1, rl.evictIdle())
	assert.Len(t, rl.visitors, 1)
	assert.Contains(t, rl.visitors, "10.0.0.2")
}

func TestRateLimiter_RunStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	rl := NewRateLimiter(1, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rl.Run(ctx)
		close(done)
	}()

	cancel()
	<-done
}
