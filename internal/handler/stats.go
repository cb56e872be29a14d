package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Miguel-Alzate/modr/internal/service"
)

type StatsHandler struct {
	dash *service.DashboardService
}

func NewStatsHandler(dash *service.DashboardService) *StatsHandler {
	return &StatsHandler{dash: dash}
}

func (h *StatsHandler) Get(c *gin.Context) {
	f, problems := filterFromQuery(c)
	if len(problems) > 0 {
		invalidQuery(c, problems)
		return
	}
	stats, err := h.dash.Stats(c.Request.Context(), f)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
