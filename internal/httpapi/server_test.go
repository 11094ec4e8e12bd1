package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"module/internal/firinglog"
)

func TestLatestLogReturns404WhenNoneWritten(t *testing.T) {
	logs := firinglog.NewWriter(t.TempDir(), nil, nil)
	s := &Server{logs: logs}
	s.router = nil
	s.routes()

	req := httptest.NewRequest(http.MethodGet, "/logs/latest", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoutesRejectWrongMethod(t *testing.T) {
	s := &Server{logs: firinglog.NewWriter(t.TempDir(), nil, nil)}
	s.routes()

	req := httptest.NewRequest(http.MethodGet, "/start", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.NotEqual(t, http.StatusOK, rec.Code)
}
