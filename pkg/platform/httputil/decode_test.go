package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dErrors "eventgate/pkg/domain-errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scanRequest struct {
	Token      string `json:"token"`
	normalized bool
}

func (r *scanRequest) Normalize() {
	r.Token = strings.TrimSpace(r.Token)
	r.normalized = true
}

func (r *scanRequest) Validate() error {
	if r.Token == "" {
		return errors.New("token is required")
	}
	return nil
}

type stationRequest struct {
	Station string `json:"station"`
}

func (r *stationRequest) Validate() error {
	if r.Station == "" {
		return dErrors.New(dErrors.CodeBadRequest, "station is required")
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestDecodeJSON(t *testing.T) {
	t.Run("decodes body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"token":"T200"}`))
		w := httptest.NewRecorder()

		result, ok := DecodeJSON[scanRequest](w, req, discardLogger(), "req-1")

		assert.True(t, ok)
		require.NotNil(t, result)
		assert.Equal(t, "T200", result.Token)
	})

	t.Run("malformed body is a bad request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{token}`))
		w := httptest.NewRecorder()

		result, ok := DecodeJSON[scanRequest](w, req, discardLogger(), "req-1")

		assert.False(t, ok)
		assert.Nil(t, result)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "bad_request", decodeError(t, w)["error"])
	})

	t.Run("oversized body is rejected", func(t *testing.T) {
		payload := `{"token":"` + strings.Repeat("a", int(MaxBodyBytes)) + `"}`
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
		w := httptest.NewRecorder()

		_, ok := DecodeJSON[scanRequest](w, req, discardLogger(), "req-1")

		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDecodeAndPrepare(t *testing.T) {
	t.Run("normalizes before validating", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"token":"  T200 "}`))
		w := httptest.NewRecorder()

		result, ok := DecodeAndPrepare[scanRequest](w, req, discardLogger(), "req-1")

		require.True(t, ok)
		assert.True(t, result.normalized)
		assert.Equal(t, "T200", result.Token)
	})

	t.Run("plain validation error maps to validation_error", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"token":"   "}`))
		w := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[scanRequest](w, req, discardLogger(), "req-1")

		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, "validation_error", body["error"])
		assert.Equal(t, "token is required", body["error_description"])
	})

	t.Run("domain error keeps its code", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
		w := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[stationRequest](w, req, discardLogger(), "req-1")

		assert.False(t, ok)
		assert.Equal(t, "bad_request", decodeError(t, w)["error"])
	})
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", dErrors.New(dErrors.CodeNotFound, "guest not found"), http.StatusNotFound, "not_found"},
		{"already done", dErrors.New(dErrors.CodeAlreadyDone, "already collected"), http.StatusConflict, "already_collected"},
		{"precondition", dErrors.New(dErrors.CodePreconditionRequired, "entry first"), http.StatusConflict, "entry_gate_required"},
		{"unavailable", dErrors.New(dErrors.CodeUnavailable, "store down"), http.StatusServiceUnavailable, "service_unavailable"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.Equal(t, tt.wantCode, decodeError(t, w)["error"])
		})
	}
}
