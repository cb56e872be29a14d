package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Miguel-Alzate/modr/internal/model"
	"github.com/Miguel-Alzate/modr/internal/pkg/apperrors"
	"github.com/Miguel-Alzate/modr/internal/service"
	"github.com/Miguel-Alzate/modr/internal/validation"
)

type RequestHandler struct {
	dash    *service.DashboardService
	capture *service.CaptureService
}

func NewRequestHandler(dash *service.DashboardService, capture *service.CaptureService) *RequestHandler {
	return &RequestHandler{dash: dash, capture: capture}
}

func (h *RequestHandler) List(c *gin.Context) {
	f, problems := filterFromQuery(c)
	page, pageProblems := validation.ParsePagination(c.Query("page"), c.Query("limit"))
	problems = append(problems, pageProblems...)
	if len(problems) > 0 {
		invalidQuery(c, problems)
		return
	}

	res, err := h.dash.ListRequests(c.Request.Context(), f, page)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *RequestHandler) Get(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	req, err := h.dash.GetRequest(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// Create ingests a capture sent by an external agent. It runs the same
// validation and transaction as the middleware, but synchronously.
func (h *RequestHandler) Create(c *gin.Context) {
	var in model.CaptureInput
	if err := c.ShouldBindJSON(&in); err != nil {
		_ = c.Error(apperrors.NewInvalidRequest("invalid capture body: " + err.Error()))
		return
	}
	res, err := h.capture.Capture(c.Request.Context(), &in)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, res.Request)
}

func (h *RequestHandler) Delete(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if err := h.dash.DeleteRequest(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}
