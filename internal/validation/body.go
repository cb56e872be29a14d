package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"gorm.io/datatypes"

	"github.com/Miguel-Alzate/modr/internal/model"
)

// TruncatedBody replaces a body above the size threshold.
type TruncatedBody struct {
	Truncated    bool   `json:"_truncated"`
	OriginalSize int    `json:"originalSize"`
	Preview      string `json:"preview"`
}

// NormalizeBody validates one JSON-bearing field. A JSON string value is
// treated as text that must itself parse as JSON. observed is the byte count
// seen on the wire when raw holds only a prefix of the body.
//
// The second return value is a validation message, empty on success.
func (v *Validator) NormalizeBody(field string, raw json.RawMessage, observed int) (*model.NormalizedBody, string) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ""
	}

	size := len(trimmed)
	if observed > size {
		size = observed
	}

	text := trimmed
	isText := false
	if trimmed[0] == '"' {
		parsed := gjson.ParseBytes(trimmed)
		if parsed.Type == gjson.String {
			text = []byte(strings.TrimSpace(parsed.String()))
			isText = true
		}
	}

	if size > v.rules.MaxBodyBytes {
		marker, err := json.Marshal(TruncatedBody{
			Truncated:    true,
			OriginalSize: size,
			Preview:      preview(text, v.rules.PreviewChars),
		})
		if err != nil {
			return nil, fmt.Sprintf("%s could not be summarized: %v", field, err)
		}
		return &model.NormalizedBody{JSON: datatypes.JSON(marker), Size: size, Truncated: true}, ""
	}

	if isText {
		if len(text) == 0 || !gjson.ValidBytes(text) {
			return nil, fmt.Sprintf("%s must contain valid JSON", field)
		}
		return &model.NormalizedBody{JSON: datatypes.JSON(text), Size: size}, ""
	}
	if !gjson.ValidBytes(trimmed) {
		return nil, fmt.Sprintf("%s must contain valid JSON", field)
	}
	return &model.NormalizedBody{JSON: datatypes.JSON(trimmed), Size: size}, ""
}

func preview(b []byte, limit int) string {
	s := strings.ToValidUTF8(string(b), "")
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
