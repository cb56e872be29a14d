package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/Miguel-Alzate/modr/internal/model"
	"github.com/Miguel-Alzate/modr/internal/pkg/apperrors"
	"github.com/Miguel-Alzate/modr/internal/pkg/logger"
	"github.com/Miguel-Alzate/modr/internal/pkg/metrics"
	"github.com/Miguel-Alzate/modr/internal/sqltrace"
	"github.com/Miguel-Alzate/modr/internal/validation"
)

const ContextExceptionKey = "modr_exception"

// CaptureSink receives finished captures. It must not block.
type CaptureSink interface {
	CaptureAsync(in *model.CaptureInput)
}

type CaptureOptions struct {
	Decider       *Decider
	Sink          CaptureSink
	MaxBodyBytes  int
	RecordQueries bool
}

// captureWriter 包装 ResponseWriter 以捕获响应体
type captureWriter struct {
	gin.ResponseWriter
	body  *bytes.Buffer
	limit int
	total int
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.record(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.record([]byte(s))
	return w.ResponseWriter.WriteString(s)
}

func (w *captureWriter) record(b []byte) {
	w.total += len(b)
	if room := w.limit + 1 - w.body.Len(); room > 0 {
		if len(b) > room {
			b = b[:room]
		}
		w.body.Write(b)
	}
}

// AttachException records err as the exception of the current capture,
// overriding whatever c.Errors holds. typ may be empty to let the status
// code decide.
func AttachException(c *gin.Context, err error, typ model.ExceptionType) {
	if err == nil {
		return
	}
	c.Set(ContextExceptionKey, &model.CaptureError{Message: err.Error(), Type: string(typ)})
}

// Capture watches each exchange and hands it to the sink once the handler
// chain has finished. It never changes what the client receives, and a
// failure inside capture never reaches the client. Register it outside
// ErrorHandler so it sees the final status and body.
func Capture(opts CaptureOptions) gin.HandlerFunc {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = validation.DefaultRules().MaxBodyBytes
	}
	return func(c *gin.Context) {
		if reason := opts.Decider.Entry(c.Request, IsBypassed(c)); reason != "" {
			metrics.CapturesTotal.WithLabelValues("skipped").Inc()
			c.Next()
			return
		}

		start := time.Now()
		reqBody, reqSize := readRequestBody(c.Request, opts.MaxBodyBytes)

		cw := &captureWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}, limit: opts.MaxBodyBytes}
		c.Writer = cw

		var collector *sqltrace.Collector
		if opts.RecordQueries {
			collector = sqltrace.NewCollector(sqltrace.DefaultLimit)
			c.Request = c.Request.WithContext(sqltrace.WithCollector(c.Request.Context(), collector))
		}

		ex := &exchange{
			start:     start,
			reqBody:   reqBody,
			reqSize:   reqSize,
			writer:    cw,
			collector: collector,
		}

		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if r != http.ErrAbortHandler {
				ex.finish(c, opts, http.StatusInternalServerError, &model.CaptureError{
					Message: panicMessage(r),
					Type:    string(model.ExceptionSystem),
					Stack:   string(debug.Stack()),
				})
			}
			panic(r)
		}()

		c.Next()

		ex.finish(c, opts, cw.Status(), nil)
	}
}

type exchange struct {
	start     time.Time
	reqBody   []byte
	reqSize   int
	writer    *captureWriter
	collector *sqltrace.Collector
}

func (ex *exchange) finish(c *gin.Context, opts CaptureOptions, status int, panicErr *model.CaptureError) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("capture middleware failed", "panic", fmt.Sprint(r), "path", c.Request.URL.Path)
		}
	}()

	if reason := opts.Decider.Final(IsBypassed(c), status); reason != "" {
		metrics.CapturesTotal.WithLabelValues("skipped").Inc()
		return
	}
	if opts.Sink == nil {
		return
	}

	capErr := panicErr
	if capErr == nil {
		capErr = exceptionFromContext(c)
	}

	in := &model.CaptureInput{
		Method:           c.Request.Method,
		Path:             truncatePath(c.Request.URL.Path),
		Controller:       c.HandlerName(),
		StatusCode:       status,
		RequestBody:      bodyForCapture(ex.reqBody, c.ContentType(), opts.MaxBodyBytes),
		ResponseBody:     bodyForCapture(ex.writer.body.Bytes(), ex.writer.Header().Get("Content-Type"), opts.MaxBodyBytes),
		Headers:          flattenHeaders(c.Request.Header),
		IPAddress:        c.ClientIP(),
		ResponseTime:     float64(time.Since(ex.start).Microseconds()) / 1000,
		UserID:           userID(c),
		UUID:             uuid.NewString(),
		Error:            capErr,
		RequestBodySize:  ex.reqSize,
		ResponseBodySize: ex.writer.total,
		Queries:          ex.collector.Queries(),
	}
	opts.Sink.CaptureAsync(in)
}

// readRequestBody copies up to limit+1 bytes of the body and puts them back
// in front of whatever is left so handlers still read the full body.
func readRequestBody(r *http.Request, limit int) ([]byte, int) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, 0
	}
	buf, err := io.ReadAll(io.LimitReader(r.Body, int64(limit)+1))
	if err != nil {
		logger.Debug("capture could not read request body", "error", err)
	}
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(buf), r.Body), r.Body}

	size := len(buf)
	if r.ContentLength > int64(size) {
		size = int(r.ContentLength)
	}
	return buf, size
}

// textBody wraps a body that is not a JSON document.
type textBody struct {
	ContentType string `json:"contentType,omitempty"`
	Text        string `json:"text"`
}

// bodyForCapture turns raw bytes into the JSON the capture pipeline stores.
// JSON objects and arrays are kept (with credentials masked); anything else
// is wrapped as text. A body cut at the size limit is passed through so the
// validator replaces it with a truncation marker.
func bodyForCapture(raw []byte, contentType string, limit int) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	if len(raw) > limit {
		return json.RawMessage(raw)
	}
	if (trimmed[0] == '{' || trimmed[0] == '[') && gjson.ValidBytes(trimmed) {
		return json.RawMessage(redactBody(trimmed))
	}
	wrapped, err := json.Marshal(textBody{
		ContentType: contentType,
		Text:        strings.ToValidUTF8(string(raw), "\uFFFD"),
	})
	if err != nil {
		return nil
	}
	return wrapped
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		out[name] = strings.Join(values, ", ")
	}
	return out
}

// truncatePath makes a decoded URL path storable: invalid bytes (a "%ff"
// escape decodes to one) become U+FFFD and the cut falls on a rune boundary.
func truncatePath(p string) string {
	p = validation.ValidText(p)
	if utf8.RuneCountInString(p) > validation.MaxPathLength {
		return string([]rune(p)[:validation.MaxPathLength])
	}
	return p
}

// userID returns the attributed user when it is a usable v4 UUID.
func userID(c *gin.Context) string {
	raw := c.GetString(ContextUserIDKey)
	if raw == "" {
		return ""
	}
	if _, err := validation.ParseUUID(raw); err != nil {
		return ""
	}
	return raw
}

// exceptionFromContext picks the error to record: an explicit attachment
// first, then the last error the handlers pushed onto c.Errors.
func exceptionFromContext(c *gin.Context) *model.CaptureError {
	if v, ok := c.Get(ContextExceptionKey); ok {
		if ce, ok := v.(*model.CaptureError); ok && strings.TrimSpace(ce.Message) != "" {
			return ce
		}
	}
	last := c.Errors.Last()
	if last == nil || last.Err == nil {
		return nil
	}

	out := &model.CaptureError{Message: last.Err.Error()}
	var appErr *apperrors.AppError
	if errors.As(last.Err, &appErr) {
		out.Message = appErr.Message
		out.Type = string(exceptionTypeFor(appErr.Type))
	}
	if strings.TrimSpace(out.Message) == "" {
		out.Message = http.StatusText(c.Writer.Status())
	}
	return out
}

func exceptionTypeFor(t apperrors.ErrorType) model.ExceptionType {
	switch t {
	case apperrors.ErrValidation, apperrors.ErrInvalidParams:
		return model.ExceptionValidation
	case apperrors.ErrAuthFailed:
		return model.ExceptionAuthentication
	case apperrors.ErrForbidden:
		return model.ExceptionAuthorization
	}
	return ""
}

func panicMessage(r any) string {
	msg := fmt.Sprint(r)
	if strings.TrimSpace(msg) == "" {
		return "panic"
	}
	return msg
}
