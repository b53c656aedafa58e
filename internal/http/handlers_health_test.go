package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		version  string
		wantBody string
	}{
		{name: "get", method: http.MethodGet, wantBody: "{\"status\":\"ok\"}\n"},
		{name: "get with version", method: http.MethodGet, version: "1.2.0", wantBody: "{\"status\":\"ok\",\"version\":\"1.2.0\"}\n"},
		{name: "head", method: http.MethodHead, version: "1.2.0", wantBody: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			healthHandler(tt.version)(rec, httptest.NewRequest(tt.method, "/healthz", nil))

			resp := rec.Result()
			t.Cleanup(func() { _ = resp.Body.Close() })
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			assert.Equal(t, tt.wantBody, rec.Body.String())
		})
	}
}
