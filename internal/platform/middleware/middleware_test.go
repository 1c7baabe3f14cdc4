// Copyright (c) 2026 Taskora. All rights reserved.
// Author: platform@taskora.app

package middleware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskora/taskora/internal/platform/constants"
	"github.com/taskora/taskora/internal/platform/middleware"
)

/*
TestRateLimiter_PerClientBuckets verifies each client IP gets its own token
bucket: a client that exhausts its burst is throttled with 429, while a
different client is still served.
*/
func TestRateLimiter_PerClientBuckets(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := middleware.NewRateLimiter(ctx).Limit(
		http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			writer.WriteHeader(http.StatusNoContent)
		}),
	)

	hammer := func(ip string) *httptest.ResponseRecorder {
		request := httptest.NewRequest(http.MethodGet, "/api/v1/roles", nil)
		request.RemoteAddr = ip + ":51234"
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		return recorder
	}

	// The first request always passes.
	assert.Equal(t, http.StatusNoContent, hammer("203.0.113.7").Code)

	var throttled *httptest.ResponseRecorder
	for i := 0; i < 2*constants.DefaultRateLimitBurst; i++ {
		if recorder := hammer("203.0.113.7"); recorder.Code == http.StatusTooManyRequests {
			throttled = recorder
			break
		}
	}
	require.NotNil(t, throttled, "burst was never exhausted")

	var body map[string]any
	require.NoError(t, json.Unmarshal(throttled.Body.Bytes(), &body))
	assert.Equal(t, "TOO_MANY_REQUESTS", body["code"])

	// A different client is unaffected.
	assert.Equal(t, http.StatusNoContent, hammer("198.51.100.9").Code)
}
