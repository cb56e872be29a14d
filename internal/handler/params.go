package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Miguel-Alzate/modr/internal/model"
	"github.com/Miguel-Alzate/modr/internal/pkg/apperrors"
	"github.com/Miguel-Alzate/modr/internal/validation"
)

// filterFromQuery reads method, status, search, from and to. Every bad
// parameter is reported in one validation error.
func filterFromQuery(c *gin.Context) (model.RequestFilter, []string) {
	var f model.RequestFilter
	var problems []string

	if raw := c.Query("method"); raw != "" {
		m, err := validation.NormalizeMethod(raw)
		if err != nil {
			problems = append(problems, err.Error())
		}
		f.Method = m
	}
	if raw := c.Query("status"); raw != "" {
		code, err := validation.ParseStatusCode(raw)
		if err != nil {
			problems = append(problems, err.Error())
		}
		f.StatusCode = code
	}
	f.Search = validation.SanitizeSearch(c.Query("search"))

	from, to, rangeProblems := validation.ParseDateRange(c.Query("from"), c.Query("to"))
	f.From, f.To = from, to
	problems = append(problems, rangeProblems...)
	return f, problems
}

func invalidQuery(c *gin.Context, problems []string) {
	_ = c.Error(apperrors.NewValidation("invalid query parameters", problems))
}

// idParam parses the :id route parameter.
func idParam(c *gin.Context) (uuid.UUID, error) {
	id, err := validation.ParseUUID(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperrors.NewInvalidRequest(err.Error())
	}
	return id, nil
}
