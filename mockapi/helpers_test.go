package mockapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/analyticbot/apiclient/config"
	"github.com/analyticbot/apiclient/logger"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testConfig() config.MockAPIConfig {
	return config.MockAPIConfig{
		Host: "127.0.0.1",
		Port: 8099,
		JWT: config.JWTConfig{
			Secret:     testSecret,
			Issuer:     "analyticbot-test",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 24 * time.Hour,
		},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig(), "mockapi-test", logger.Nop())
	require.NoError(t, err)
	return s
}

type call struct {
	method  string
	path    string
	body    any
	token   string
	headers map[string]string
}

func (s *Server) serve(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	switch b := c.body.(type) {
	case nil:
	case string:
		body = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// demoToken logs in as the seeded demo user.
func (s *Server) demoToken(t *testing.T) string {
	t.Helper()
	rec := s.serve(t, call{
		method: http.MethodPost,
		path:   "/api/v1/auth/login",
		body:   map[string]string{"email": DemoEmail, "password": DemoPassword},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[map[string]any](t, rec)["access_token"].(string)
}
