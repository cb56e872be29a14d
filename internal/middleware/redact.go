package middleware

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const redactedValue = "***"

// redactBody masks credential-looking fields in a JSON document in place,
// keeping the rest of the bytes as they were. Anything that is not valid
// JSON comes back unchanged.
func redactBody(body []byte) []byte {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return body
	}
	var paths []string
	collectSensitive(gjson.ParseBytes(body), "", &paths)
	if len(paths) == 0 {
		return body
	}

	out := body
	for _, p := range paths {
		next, err := sjson.SetBytes(out, p, redactedValue)
		if err != nil {
			return body
		}
		out = next
	}
	return out
}

func collectSensitive(v gjson.Result, prefix string, paths *[]string) {
	switch {
	case v.IsObject():
		v.ForEach(func(key, val gjson.Result) bool {
			p := joinPath(prefix, escapePathKey(key.String()))
			if isSensitiveKey(key.String()) {
				*paths = append(*paths, p)
				return true
			}
			collectSensitive(val, p, paths)
			return true
		})
	case v.IsArray():
		i := 0
		v.ForEach(func(_, val gjson.Result) bool {
			collectSensitive(val, joinPath(prefix, strconv.Itoa(i)), paths)
			i++
			return true
		})
	}
}

func joinPath(prefix, part string) string {
	if prefix == "" {
		return part
	}
	return prefix + "." + part
}

var pathEscaper = strings.NewReplacer(
	`\`, `\\`,
	".", `\.`,
	"*", `\*`,
	"?", `\?`,
	"|", `\|`,
	"#", `\#`,
	"@", `\@`,
)

func escapePathKey(k string) string {
	return pathEscaper.Replace(k)
}

func isSensitiveKey(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "password",
		"passwd",
		"password_confirmation",
		"secret",
		"client_secret",
		"token",
		"access_token",
		"refresh_token",
		"id_token",
		"api_key",
		"apikey",
		"authorization",
		"private_key",
		"card_number",
		"cvv":
		return true
	default:
		return false
	}
}
