package validation

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Miguel-Alzate/modr/internal/model"
	"github.com/Miguel-Alzate/modr/internal/pkg/apperrors"
)

func validInput() *model.CaptureInput {
	return &model.CaptureInput{
		Method:       "post",
		Path:         "/api/users",
		StatusCode:   201,
		ResponseTime: 45.4,
		Headers:      map[string]string{"User-Agent": "curl/8", "X-Custom": "1"},
	}
}

func TestCaptureNormalizes(t *testing.T) {
	v := New(DefaultRules())

	out, err := v.Capture(validInput())
	require.NoError(t, err)
	assert.Equal(t, "POST", out.Method)
	assert.Equal(t, int64(45), out.DurationMs)
	assert.Equal(t, DefaultIPAddress, out.IPAddress)
	assert.Equal(t, "curl/8", out.Headers["user-agent"])
	assert.Nil(t, out.RequestBody)
	assert.Nil(t, out.ResponseBody)
	assert.Nil(t, out.UserID)
}

func TestCaptureRoundsDuration(t *testing.T) {
	v := New(DefaultRules())
	in := validInput()
	in.ResponseTime = 12.5
	out, err := v.Capture(in)
	require.NoError(t, err)
	assert.Equal(t, int64(13), out.DurationMs)
}

func TestCaptureCollectsEveryProblem(t *testing.T) {
	v := New(DefaultRules())
	in := &model.CaptureInput{
		Method:       "TRACE",
		Path:         "",
		StatusCode:   42,
		ResponseTime: 300000,
		IPAddress:    "not-an-ip",
		UserID:       "1234",
		RequestBody:  json.RawMessage(`"{broken"`),
	}

	_, err := v.Capture(in)
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.ErrValidation))

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	joined := strings.Join(appErr.Details, "\n")
	assert.Contains(t, joined, `"TRACE"`)
	assert.Contains(t, joined, "path is required")
	assert.Contains(t, joined, "status code 42")
	assert.Contains(t, joined, "responseTime")
	assert.Contains(t, joined, "not-an-ip")
	assert.Contains(t, joined, "userId")
	assert.Contains(t, joined, "requestBody must contain valid JSON")
}

func TestCaptureRejectsUnknownExceptionType(t *testing.T) {
	v := New(DefaultRules())
	in := validInput()
	in.Error = &model.CaptureError{Message: "boom", Type: "cosmic"}
	_, err := v.Capture(in)
	require.Error(t, err)
}

func TestCaptureAcceptsV4Identifiers(t *testing.T) {
	v := New(DefaultRules())
	in := validInput()
	in.UUID = "3F2504E0-4F89-41D3-9A0C-0305E82C3301"
	in.UserID = "9b2b4c1e-7a55-4d5e-8f8e-2f1f5a6b7c8d"
	out, err := v.Capture(in)
	require.NoError(t, err)
	assert.Equal(t, "3f2504e0-4f89-41d3-9a0c-0305e82c3301", out.ID.String())
	require.NotNil(t, out.UserID)
}

func TestNormalizeBodyTextMustBeJSON(t *testing.T) {
	v := New(DefaultRules())

	body, msg := v.NormalizeBody("requestBody", json.RawMessage(`"{\"a\":1}"`), 0)
	assert.Empty(t, msg)
	require.NotNil(t, body)
	assert.JSONEq(t, `{"a":1}`, string(body.JSON))

	_, msg = v.NormalizeBody("requestBody", json.RawMessage(`"plain text"`), 0)
	assert.NotEmpty(t, msg)

	body, msg = v.NormalizeBody("responseBody", json.RawMessage(`[1,2,3]`), 0)
	assert.Empty(t, msg)
	assert.Equal(t, 7, body.Size)
}

func TestNormalizeBodyTruncatesOversized(t *testing.T) {
	v := New(DefaultRules())
	big := `{"data":"` + strings.Repeat("x", 100050) + `"}`
	require.Greater(t, len(big), 100000)

	body, msg := v.NormalizeBody("requestBody", json.RawMessage(big), 0)
	require.Empty(t, msg)
	require.True(t, body.Truncated)

	var marker TruncatedBody
	require.NoError(t, json.Unmarshal(body.JSON, &marker))
	assert.True(t, marker.Truncated)
	assert.Equal(t, len(big), marker.OriginalSize)
	assert.LessOrEqual(t, utf8.RuneCountInString(marker.Preview), 500)
	assert.True(t, strings.HasPrefix(marker.Preview, `{"data":"xxx`))
}

func TestNormalizeBodyUsesObservedSize(t *testing.T) {
	v := New(Rules{MaxBodyBytes: 10, PreviewChars: 4})
	body, msg := v.NormalizeBody("responseBody", json.RawMessage(`{"a":"bcdefgh`), 5000)
	require.Empty(t, msg)
	require.True(t, body.Truncated)
	assert.Equal(t, 5000, body.Size)

	var marker TruncatedBody
	require.NoError(t, json.Unmarshal(body.JSON, &marker))
	assert.Equal(t, `{"a"`, marker.Preview)
}

func TestNormalizeMethod(t *testing.T) {
	m, err := NormalizeMethod(" patch ")
	require.NoError(t, err)
	assert.Equal(t, "PATCH", m)

	_, err = NormalizeMethod("CONNECT")
	assert.ErrorContains(t, err, `"CONNECT"`)
}

func TestParseUUID(t *testing.T) {
	_, err := ParseUUID("9b2b4c1e-7a55-4d5e-8f8e-2f1f5a6b7c8d")
	assert.NoError(t, err)

	// version 1
	_, err = ParseUUID("9b2b4c1e-7a55-1d5e-8f8e-2f1f5a6b7c8d")
	assert.Error(t, err)

	_, err = ParseUUID("{9b2b4c1e-7a55-4d5e-8f8e-2f1f5a6b7c8d}")
	assert.Error(t, err)
}

func TestNormalizeDuration(t *testing.T) {
	d, err := NormalizeDuration(299999.4)
	require.NoError(t, err)
	assert.Equal(t, int64(299999), d)

	_, err = NormalizeDuration(300000)
	assert.Error(t, err)
	_, err = NormalizeDuration(-1)
	assert.Error(t, err)
}

func TestNormalizeIPAndPath(t *testing.T) {
	ip, err := NormalizeIP("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", ip)

	ip, err = NormalizeIP("::ffff:10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", ip)

	_, err = NormalizeIP("999.1.1.1")
	assert.Error(t, err)

	_, err = NormalizePath(strings.Repeat("a", MaxPathLength+1))
	assert.Error(t, err)
	_, err = NormalizePath("   ")
	assert.Error(t, err)
}

func TestSanitizeSearch(t *testing.T) {
	assert.Equal(t, "scriptalert(1)/script", SanitizeSearch(` <script>alert(1)</script> `))
	assert.Equal(t, "its a test", SanitizeSearch(`"it's a test"`))
	assert.Len(t, SanitizeSearch(strings.Repeat("a", 150)), MaxSearchLength)
}

func TestParsePagination(t *testing.T) {
	p, problems := ParsePagination("", "")
	assert.Empty(t, problems)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.Limit)

	p, problems = ParsePagination("3", "50")
	assert.Empty(t, problems)
	assert.Equal(t, 100, p.Offset())

	_, problems = ParsePagination("0", "101")
	assert.Len(t, problems, 2)
}

func TestParseDateRange(t *testing.T) {
	from, to, problems := ParseDateRange("2024-01-01", "2024-01-31")
	require.Empty(t, problems)
	assert.Equal(t, 2024, from.Year())
	assert.Equal(t, 23, to.Hour())

	_, _, problems = ParseDateRange("2024-02-01", "2024-01-01")
	assert.Contains(t, problems, "from must not be after to")

	_, _, problems = ParseDateRange("yesterday", "")
	assert.Len(t, problems, 1)
}

func TestCaptureRepairsInvalidUTF8(t *testing.T) {
	v := New(DefaultRules())

	in := validInput()
	in.Path = "/api/\xff"
	in.Controller = "handler\xc3"
	in.Headers = map[string]string{"X-Bad\xfe": "v\xff"}
	in.StatusCode = 500
	in.Error = &model.CaptureError{Message: "boom \xff", Stack: "main.go\xc3"}

	out, err := v.Capture(in)
	require.NoError(t, err)
	assert.Equal(t, "/api/�", out.Path)
	assert.True(t, utf8.ValidString(out.Controller))
	assert.True(t, utf8.ValidString(out.Error.Message))
	assert.True(t, utf8.ValidString(out.Error.Stack))
	for name, value := range out.Headers {
		assert.True(t, utf8.ValidString(name))
		assert.True(t, utf8.ValidString(value))
	}

	p, err := NormalizePath("/x\xff")
	require.NoError(t, err)
	assert.Equal(t, "/x�", p)
}
