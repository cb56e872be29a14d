package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Miguel-Alzate/modr/internal/model"
	"github.com/Miguel-Alzate/modr/internal/pkg/apperrors"
	"github.com/Miguel-Alzate/modr/internal/service"
	"github.com/Miguel-Alzate/modr/internal/validation"
)

type CleanupHandler struct {
	dash *service.DashboardService
}

func NewCleanupHandler(dash *service.DashboardService) *CleanupHandler {
	return &CleanupHandler{dash: dash}
}

// Preview takes exactly one of days, status or method.
func (h *CleanupHandler) Preview(c *gin.Context) {
	var crit model.CleanupCriteria
	var problems []string
	given := 0

	if raw := c.Query("days"); raw != "" {
		given++
		days, err := validation.ParseDays(raw)
		if err != nil {
			problems = append(problems, err.Error())
		}
		crit.OlderThanDays = days
	}
	if raw := c.Query("status"); raw != "" {
		given++
		code, err := validation.ParseStatusCode(raw)
		if err != nil {
			problems = append(problems, err.Error())
		}
		crit.StatusCode = code
	}
	if raw := c.Query("method"); raw != "" {
		given++
		m, err := validation.NormalizeMethod(raw)
		if err != nil {
			problems = append(problems, err.Error())
		}
		crit.Method = m
	}
	if given != 1 {
		problems = append(problems, "exactly one of days, status or method is required")
	}
	if len(problems) > 0 {
		invalidQuery(c, problems)
		return
	}

	res, err := h.dash.PreviewCleanup(c.Request.Context(), crit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *CleanupHandler) OlderThan(c *gin.Context) {
	days, err := validation.ParseDays(c.Param("days"))
	if err != nil {
		_ = c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	h.run(c, model.CleanupCriteria{OlderThanDays: days})
}

func (h *CleanupHandler) ByStatus(c *gin.Context) {
	code, err := validation.ParseStatusCode(c.Param("code"))
	if err != nil {
		_ = c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	h.run(c, model.CleanupCriteria{StatusCode: code})
}

func (h *CleanupHandler) ByMethod(c *gin.Context) {
	m, err := validation.NormalizeMethod(c.Param("name"))
	if err != nil {
		_ = c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	h.run(c, model.CleanupCriteria{Method: m})
}

func (h *CleanupHandler) run(c *gin.Context, crit model.CleanupCriteria) {
	res, err := h.dash.Cleanup(c.Request.Context(), crit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}
