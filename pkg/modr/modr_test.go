package modr_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Miguel-Alzate/modr/internal/model"
	"github.com/Miguel-Alzate/modr/internal/testutil"
	"github.com/Miguel-Alzate/modr/pkg/modr"
)

func TestInstallOnHostEngine(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)

	cfg := modr.DefaultConfig()
	cfg.Redis.Addr = ""
	cfg.Retention.Enabled = false

	mon, err := modr.Open(context.Background(), cfg, modr.WithDB(db))
	require.NoError(t, err)

	r := gin.New()
	mon.Install(r)
	r.GET("/api/orders/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/orders/7", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"7"}`, w.Body.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, mon.Close(ctx))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/modr/requests", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var page model.RequestPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.EqualValues(t, 1, page.Total)
	assert.Equal(t, "/api/orders/7", page.Items[0].Path)

	// the host's database stays usable after Close
	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.NoError(t, sqlDB.Ping())
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := modr.DefaultConfig()
	cfg.Dashboard.Prefix = "modr"

	_, err := modr.Open(context.Background(), cfg, modr.WithDB(testutil.NewDB(t)))
	assert.Error(t, err)
}
