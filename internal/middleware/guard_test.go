package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Miguel-Alzate/modr/internal/config"
)

func guarded(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler())
	r.Use(mw...)
	r.Any("/api/modr/requests", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	return r
}

func TestAdminMiddleware(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.AdminKey = "s3cret"
	r := guarded(AdminMiddleware(cfg))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/modr/requests", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/modr/requests", nil)
	req.Header.Set(HeaderAdminKey, "s3cret")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminMiddlewareOpenWithoutKey(t *testing.T) {
	r := guarded(AdminMiddleware(config.Default()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/modr/requests", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	r := guarded(RateLimitMiddleware(0.001, 2))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/modr/requests", nil))
		codes = append(codes, w.Code)
		if w.Code == http.StatusTooManyRequests {
			assert.Equal(t, "1", w.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestReadOnlyMiddleware(t *testing.T) {
	r := guarded(ReadOnlyMiddleware(true))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/modr/requests", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/modr/requests", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "READ_ONLY", body["code"])
}

func TestRedactBody(t *testing.T) {
	in := []byte(`{"user":{"email":"a@b.c","Password":"x"},"items":[{"token":"t","qty":2}],"note":"keep"}`)
	out := redactBody(in)
	assert.JSONEq(t, `{"user":{"email":"a@b.c","Password":"***"},"items":[{"token":"***","qty":2}],"note":"keep"}`, string(out))

	clean := []byte(`{"a": 1}`)
	assert.Equal(t, clean, redactBody(clean))

	assert.Equal(t, []byte("not json"), redactBody([]byte("not json")))
}

func TestBodyForCapture(t *testing.T) {
	assert.Nil(t, bodyForCapture([]byte("   "), "text/plain", 100))
	assert.JSONEq(t, `[1,2]`, string(bodyForCapture([]byte(`[1,2]`), "application/json", 100)))
	assert.JSONEq(t, `{"contentType":"text/html","text":"<p>hi</p>"}`,
		string(bodyForCapture([]byte("<p>hi</p>"), "text/html", 100)))

	cut := []byte(`{"a":"0123456789`)
	assert.Equal(t, cut, []byte(bodyForCapture(cut, "application/json", 10)))
}

func TestIsUpgrade(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.False(t, IsUpgrade(req))

	req.Header.Set("Upgrade", "WebSocket")
	req.Header.Set("Connection", "Upgrade")
	assert.True(t, IsUpgrade(req))

	req.Header.Set("Connection", "keep-alive")
	assert.False(t, IsUpgrade(req))
}

func TestDeciderOrder(t *testing.T) {
	cfg := config.Default().Capture
	cfg.OnlyErrors = true
	d := NewDecider(cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	assert.Equal(t, "", d.Entry(req, false))
	assert.Equal(t, SkipBypass, d.Entry(req, true))
	assert.Equal(t, SkipSuccess, d.Final(false, http.StatusOK))
	assert.Equal(t, "", d.Final(false, http.StatusBadRequest))
	assert.Equal(t, SkipBypass, d.Final(true, http.StatusInternalServerError))

	cfg.Enabled = false
	assert.Equal(t, SkipDisabled, NewDecider(cfg).Entry(req, true))
}
