// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package web

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestTimeout(t *testing.T) {
	router := gin.New()
	router.Use(RequestTimeout(10 * time.Millisecond))

	var deadline time.Time
	var hasDeadline bool
	router.GET("/slow", func(c *gin.Context) {
		deadline, hasDeadline = c.Request.Context().Deadline()
		<-c.Request.Context().Done()
		c.Status(http.StatusGatewayTimeout)
	})

	start := time.Now()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/slow", nil))

	require.True(t, hasDeadline)
	assert.WithinDuration(t, start.Add(10*time.Millisecond), deadline, time.Second)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	router := gin.New()
	router.Use(AccessLog(slog.New(slog.NewJSONHandler(&buf, nil))))
	router.GET("/health", Health)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Contains(t, buf.String(), `"msg":"http request"`)
	assert.Contains(t, buf.String(), `"route":"/health"`)
	assert.Contains(t, buf.String(), `"status":200`)
}

func TestCurrentUser_Missing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, ok := CurrentUser(c)
	assert.False(t, ok)
}
