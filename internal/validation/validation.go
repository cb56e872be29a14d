// Package validation normalizes inbound capture fields and dashboard query
// parameters. Every function either returns a normalized value or a
// human-readable reason; nothing here touches the store.
package validation

import (
	"fmt"
	"math"
	"net/netip"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Miguel-Alzate/modr/internal/model"
	"github.com/Miguel-Alzate/modr/internal/pkg/apperrors"
)

const (
	MaxPathLength    = 2000
	MaxDurationMs    = 300000
	DefaultIPAddress = "127.0.0.1"
)

// Methods is the closed set of HTTP methods accepted by the capture pipeline.
var Methods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}

// Rules holds the tunable limits.
type Rules struct {
	MaxBodyBytes int
	PreviewChars int
}

func DefaultRules() Rules {
	return Rules{MaxBodyBytes: 100000, PreviewChars: 500}
}

type Validator struct {
	rules    Rules
	validate *validator.Validate
}

// captureFields mirrors the scalar part of a CaptureInput after case and
// whitespace normalization.
type captureFields struct {
	Method     string  `name:"method" validate:"required,oneof=GET POST PUT PATCH DELETE HEAD OPTIONS"`
	Path       string  `name:"path" validate:"required,max=2000"`
	StatusCode int     `name:"statusCode" validate:"gte=100,lte=599"`
	Duration   float64 `name:"responseTime" validate:"gte=0,lt=300000"`
	IPAddress  string  `name:"ipAddress" validate:"ip"`
	UUID       string  `name:"uuid" validate:"omitempty,uuid4"`
	UserID     string  `name:"userId" validate:"omitempty,uuid4"`
}

func New(rules Rules) *Validator {
	if rules.MaxBodyBytes <= 0 {
		rules.MaxBodyBytes = DefaultRules().MaxBodyBytes
	}
	if rules.PreviewChars <= 0 {
		rules.PreviewChars = DefaultRules().PreviewChars
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("name")
	})
	return &Validator{rules: rules, validate: v}
}

func (v *Validator) Rules() Rules {
	return v.rules
}

// Capture validates a raw capture record. It returns a VALIDATION AppError
// listing every failed check, or the normalized record.
func (v *Validator) Capture(in *model.CaptureInput) (*model.NormalizedCapture, error) {
	if in == nil {
		return nil, apperrors.NewValidation("capture rejected", []string{"capture record is empty"})
	}

	ip := strings.TrimSpace(in.IPAddress)
	if ip == "" {
		ip = DefaultIPAddress
	}
	fields := captureFields{
		Method:     strings.ToUpper(strings.TrimSpace(in.Method)),
		Path:       ValidText(strings.TrimSpace(in.Path)),
		StatusCode: in.StatusCode,
		Duration:   in.ResponseTime,
		IPAddress:  ip,
		UUID:       strings.ToLower(strings.TrimSpace(in.UUID)),
		UserID:     strings.ToLower(strings.TrimSpace(in.UserID)),
	}

	var problems []string
	if err := v.validate.Struct(fields); err != nil {
		problems = append(problems, describe(err)...)
	}

	reqBody, msg := v.NormalizeBody("requestBody", in.RequestBody, in.RequestBodySize)
	if msg != "" {
		problems = append(problems, msg)
	}
	respBody, msg := v.NormalizeBody("responseBody", in.ResponseBody, in.ResponseBodySize)
	if msg != "" {
		problems = append(problems, msg)
	}

	var capErr *model.CaptureError
	if in.Error != nil {
		capErr = &model.CaptureError{
			Message: ValidText(strings.TrimSpace(in.Error.Message)),
			Type:    strings.ToLower(strings.TrimSpace(in.Error.Type)),
			Stack:   ValidText(in.Error.Stack),
		}
		if capErr.Message == "" {
			problems = append(problems, "error.message is required when an error is attached")
		}
		if capErr.Type != "" && !model.ExceptionType(capErr.Type).Valid() {
			problems = append(problems, fmt.Sprintf("error.type %q is not one of system, business, validation, authentication, authorization", in.Error.Type))
		}
	}

	if len(problems) > 0 {
		return nil, apperrors.NewValidation("capture rejected", problems)
	}

	out := &model.NormalizedCapture{
		Method:       fields.Method,
		Path:         fields.Path,
		Controller:   truncateRunes(ValidText(strings.TrimSpace(in.Controller)), 255),
		StatusCode:   fields.StatusCode,
		RequestBody:  reqBody,
		ResponseBody: respBody,
		Headers:      NormalizeHeaders(in.Headers),
		IPAddress:    canonicalIP(fields.IPAddress),
		DurationMs:   int64(math.Round(fields.Duration)),
		Error:        capErr,
		Queries:      normalizeQueries(in.Queries),
	}
	if fields.UUID != "" {
		out.ID = uuid.MustParse(fields.UUID)
	}
	if fields.UserID != "" {
		id := uuid.MustParse(fields.UserID)
		out.UserID = &id
	}
	return out, nil
}

// NormalizeMethod upper-cases m and checks it against Methods.
func NormalizeMethod(m string) (string, error) {
	up := strings.ToUpper(strings.TrimSpace(m))
	for _, allowed := range Methods {
		if up == allowed {
			return up, nil
		}
	}
	return "", fmt.Errorf("invalid HTTP method %q: must be one of %s", m, strings.Join(Methods, ", "))
}

func ValidateStatusCode(code int) error {
	if code < 100 || code > 599 {
		return fmt.Errorf("invalid status code %d: must be between 100 and 599", code)
	}
	return nil
}

// ParseUUID accepts only the canonical version-4 text form.
func ParseUUID(raw string) (uuid.UUID, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	id, err := uuid.Parse(s)
	if err != nil || len(s) != 36 || id.Version() != 4 || id.Variant() != uuid.RFC4122 {
		return uuid.Nil, fmt.Errorf("invalid UUID %q: expected a version 4 UUID", raw)
	}
	return id, nil
}

// NormalizeDuration rounds ms to the nearest millisecond after bounds checks.
func NormalizeDuration(ms float64) (int64, error) {
	if math.IsNaN(ms) || ms < 0 {
		return 0, fmt.Errorf("invalid duration %v: must not be negative", ms)
	}
	if ms >= MaxDurationMs {
		return 0, fmt.Errorf("invalid duration %v: must be below %d ms", ms, MaxDurationMs)
	}
	return int64(math.Round(ms)), nil
}

// ValidText replaces every invalid UTF-8 sequence in s with U+FFFD. Text
// columns on Postgres reject invalid bytes outright.
func ValidText(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

func NormalizePath(p string) (string, error) {
	p = ValidText(strings.TrimSpace(p))
	if p == "" {
		return "", fmt.Errorf("path is required")
	}
	if len([]rune(p)) > MaxPathLength {
		return "", fmt.Errorf("path exceeds %d characters", MaxPathLength)
	}
	return p, nil
}

// NormalizeIP parses an IPv4/IPv6 literal, defaulting to loopback.
func NormalizeIP(ip string) (string, error) {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return DefaultIPAddress, nil
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "", fmt.Errorf("invalid IP address %q", ip)
	}
	return addr.Unmap().String(), nil
}

// NormalizeHeaders lower-cases names and drops empty ones.
func NormalizeHeaders(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		name := ValidText(strings.ToLower(strings.TrimSpace(k)))
		if name == "" {
			continue
		}
		out[name] = ValidText(strings.TrimSpace(v))
	}
	return out
}

func canonicalIP(ip string) string {
	if addr, err := netip.ParseAddr(ip); err == nil {
		return addr.Unmap().String()
	}
	return ip
}

func normalizeQueries(in []model.QueryInput) []model.QueryInput {
	if len(in) == 0 {
		return nil
	}
	out := make([]model.QueryInput, 0, len(in))
	for _, q := range in {
		q.SQL = strings.TrimSpace(q.SQL)
		if q.SQL == "" {
			continue
		}
		if q.DurationMs < 0 {
			q.DurationMs = 0
		}
		out = append(out, q)
	}
	return out
}

func describe(err error) []string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, message(fe))
	}
	return msgs
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("invalid HTTP method %q: must be one of %s", fe.Value(), strings.Join(Methods, ", "))
	case "max":
		return fmt.Sprintf("%s exceeds %s characters", field, fe.Param())
	case "gte", "lte":
		if field == "statusCode" {
			return fmt.Sprintf("invalid status code %v: must be between 100 and 599", fe.Value())
		}
		return fmt.Sprintf("invalid %s %v: must not be negative", field, fe.Value())
	case "lt":
		return fmt.Sprintf("invalid %s %v: must be below %s ms", field, fe.Value(), fe.Param())
	case "ip":
		return fmt.Sprintf("invalid IP address %q", fe.Value())
	case "uuid4":
		return fmt.Sprintf("invalid %s %q: expected a version 4 UUID", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed the %s check", field, fe.Tag())
	}
}
