package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Miguel-Alzate/modr/internal/model"
	"github.com/Miguel-Alzate/modr/internal/pkg/apperrors"
)

var statusDescriptions = map[int]string{
	200: "OK - Request succeeded",
	201: "Created - Resource created successfully",
	202: "Accepted - Request accepted for processing",
	204: "No Content - Request succeeded with no response body",
	301: "Moved Permanently",
	302: "Found - Temporary redirect",
	304: "Not Modified",
	400: "Bad Request - Invalid request syntax",
	401: "Unauthorized - Authentication required",
	403: "Forbidden - Access denied",
	404: "Not Found - Resource does not exist",
	405: "Method Not Allowed",
	409: "Conflict - Request conflicts with current state",
	422: "Unprocessable Entity - Validation failed",
	429: "Too Many Requests - Rate limit exceeded",
	500: "Internal Server Error",
	502: "Bad Gateway",
	503: "Service Unavailable",
	504: "Gateway Timeout",
}

// StatusDescription returns the stored description for an HTTP status code.
func StatusDescription(code int) string {
	if d, ok := statusDescriptions[code]; ok {
		return d
	}
	return fmt.Sprintf("HTTP %d", code)
}

// SizeKB converts a byte length to kilobytes rounded to two decimals.
func SizeKB(bytes int) float64 {
	return decimal.NewFromInt(int64(bytes)).Div(decimal.NewFromInt(1024)).Round(2).InexactFloat64()
}

// ClassifyException picks the stored type for a captured error. An explicit,
// known type wins; otherwise server errors are system failures and the rest
// are business errors.
func ClassifyException(explicit string, statusCode int) model.ExceptionType {
	if t := model.ExceptionType(strings.ToLower(explicit)); t.Valid() {
		return t
	}
	if statusCode >= 500 {
		return model.ExceptionSystem
	}
	return model.ExceptionBusiness
}

type CaptureRepo struct {
	db      *gorm.DB
	refs    *ReferenceCache
	headers []string
}

// NewCaptureRepo builds the capture store. importantHeaders is the allow-list
// of header names that get linked to a request; names are matched
// case-insensitively.
func NewCaptureRepo(db *gorm.DB, refs *ReferenceCache, importantHeaders []string) *CaptureRepo {
	set := make(map[string]struct{}, len(importantHeaders))
	for _, h := range importantHeaders {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			set[h] = struct{}{}
		}
	}
	names := make([]string, 0, len(set))
	for h := range set {
		names = append(names, h)
	}
	sort.Strings(names)
	return &CaptureRepo{db: db, refs: refs, headers: names}
}

// Capture writes one exchange in a single transaction. Either every row the
// capture implies is committed or none is.
func (r *CaptureRepo) Capture(ctx context.Context, in *model.NormalizedCapture) (*model.CaptureResult, error) {
	if in == nil {
		return nil, apperrors.NewInvalidRequest("capture is empty")
	}
	now := time.Now().UTC()
	seen := &learned{}
	var res model.CaptureResult

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		method, err := r.method(tx, in.Method, seen)
		if err != nil {
			return fmt.Errorf("method %s: %w", in.Method, err)
		}
		status, err := r.status(tx, in.StatusCode, seen)
		if err != nil {
			return fmt.Errorf("status %d: %w", in.StatusCode, err)
		}

		req := &model.Request{
			ID:         in.ID,
			StatusID:   status.ID,
			MethodID:   method.ID,
			Path:       in.Path,
			Controller: in.Controller,
			Happened:   now,
			Duration:   in.DurationMs,
			CreatedAt:  now,
		}

		if in.RequestBody != nil {
			payload := &model.Payload{
				Body:          in.RequestBody.JSON,
				OriginAddress: in.IPAddress,
				CreatedAt:     now,
			}
			if err := tx.Create(payload).Error; err != nil {
				return fmt.Errorf("payload: %w", err)
			}
			req.PayloadID = &payload.ID
			req.Payload = payload
		}

		if in.ResponseBody != nil {
			resp := &model.Response{
				Body:   in.ResponseBody.JSON,
				Size:   SizeKB(in.ResponseBody.Size),
				SentAt: now,
			}
			if err := tx.Create(resp).Error; err != nil {
				return fmt.Errorf("response: %w", err)
			}
			req.ResponseID = &resp.ID
			req.Response = resp
		}

		madeBy, err := resolveUser(tx, in.UserID)
		if err != nil {
			return err
		}
		req.MadeBy = &madeBy

		if err := tx.Omit(clause.Associations).Create(req).Error; err != nil {
			return fmt.Errorf("request: %w", err)
		}

		if err := r.linkHeaders(tx, req.ID, in.Headers, seen); err != nil {
			return err
		}

		if in.Error != nil {
			exc := &model.Exception{
				RequestID:  req.ID,
				Message:    in.Error.Message,
				Type:       ClassifyException(in.Error.Type, in.StatusCode),
				OccurredAt: now,
			}
			if in.Error.Stack != "" {
				stack := in.Error.Stack
				exc.StackTrace = &stack
			}
			if err := tx.Create(exc).Error; err != nil {
				return fmt.Errorf("exception: %w", err)
			}
			req.Exceptions = []model.Exception{*exc}
		}

		req.Method = method
		req.Status = status
		res = model.CaptureResult{Request: req, Method: method, Status: status}
		return nil
	})
	if err != nil {
		return nil, apperrors.NewDatabase("capture transaction failed", err)
	}

	r.refs.remember(seen)
	return &res, nil
}

// LinkHeaders associates the allow-listed headers with an existing request.
// Linking the same header twice is a no-op.
func (r *CaptureRepo) LinkHeaders(ctx context.Context, requestID uuid.UUID, headers map[string]string) error {
	seen := &learned{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return r.linkHeaders(tx, requestID, headers, seen)
	})
	if err != nil {
		return apperrors.NewDatabase("link headers failed", err)
	}
	r.refs.remember(seen)
	return nil
}

func (r *CaptureRepo) linkHeaders(tx *gorm.DB, requestID uuid.UUID, headers map[string]string, seen *learned) error {
	if len(headers) == 0 {
		return nil
	}
	present := make(map[string]struct{}, len(headers))
	for name := range headers {
		present[strings.ToLower(name)] = struct{}{}
	}
	for _, name := range r.headers {
		if _, ok := present[name]; !ok {
			continue
		}
		h, err := r.header(tx, name, seen)
		if err != nil {
			return fmt.Errorf("header %s: %w", name, err)
		}
		link := model.RequestHeader{RequestID: requestID, HeaderID: h.ID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
			return fmt.Errorf("request header %s: %w", name, err)
		}
	}
	return nil
}

func (r *CaptureRepo) method(tx *gorm.DB, name string, seen *learned) (*model.Method, error) {
	if m, ok := r.refs.Method(name); ok {
		return &m, nil
	}
	m, _, err := lookupOrCreate(tx, "name", name, func() *model.Method {
		return &model.Method{Name: name, Description: fmt.Sprintf("HTTP %s method", name)}
	})
	if err != nil {
		return nil, err
	}
	seen.methods = append(seen.methods, *m)
	return m, nil
}

func (r *CaptureRepo) status(tx *gorm.DB, code int, seen *learned) (*model.Status, error) {
	if s, ok := r.refs.Status(code); ok {
		return &s, nil
	}
	s, _, err := lookupOrCreate(tx, "code", code, func() *model.Status {
		return &model.Status{Code: code, Description: StatusDescription(code)}
	})
	if err != nil {
		return nil, err
	}
	seen.statuses = append(seen.statuses, *s)
	return s, nil
}

func (r *CaptureRepo) header(tx *gorm.DB, name string, seen *learned) (*model.Header, error) {
	if h, ok := r.refs.Header(name); ok {
		return &h, nil
	}
	h, _, err := lookupOrCreate(tx, "name", name, func() *model.Header {
		creator := model.SystemUserID
		return &model.Header{Name: name, Description: "Captured header " + name, CreatorID: &creator}
	})
	if err != nil {
		return nil, err
	}
	seen.headers = append(seen.headers, *h)
	return h, nil
}

// resolveUser returns the attributed user, falling back to the system user
// when none is given or the id is unknown.
func resolveUser(tx *gorm.DB, id *uuid.UUID) (uuid.UUID, error) {
	if id == nil || *id == uuid.Nil {
		return model.SystemUserID, nil
	}
	var count int64
	if err := tx.Model(&model.User{}).Where("id = ?", *id).Count(&count).Error; err != nil {
		return uuid.Nil, fmt.Errorf("user lookup: %w", err)
	}
	if count == 0 {
		return model.SystemUserID, nil
	}
	return *id, nil
}
