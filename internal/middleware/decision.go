package middleware

import (
	"net/http"
	"strings"

	"github.com/Miguel-Alzate/modr/internal/config"
)

// Skip reasons, also used as metric labels.
const (
	SkipBypass    = "bypass"
	SkipMethod    = "method"
	SkipIgnored   = "ignored_path"
	SkipUpgrade   = "upgrade"
	SkipSuccess   = "only_errors"
	SkipDisabled  = "disabled"
	captureReason = ""
)

// Decider applies the capture rules in order; the first matching rule wins.
type Decider struct {
	enabled    bool
	methods    map[string]bool
	ignore     []string
	onlyErrors bool
}

func NewDecider(cfg config.CaptureConfig) *Decider {
	methods := make(map[string]bool, len(cfg.Methods))
	for _, m := range cfg.Methods {
		methods[strings.ToUpper(strings.TrimSpace(m))] = true
	}
	ignore := make([]string, 0, len(cfg.IgnorePaths))
	for _, p := range cfg.IgnorePaths {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			ignore = append(ignore, p)
		}
	}
	return &Decider{
		enabled:    cfg.Enabled,
		methods:    methods,
		ignore:     ignore,
		onlyErrors: cfg.OnlyErrors,
	}
}

// Entry evaluates the rules that are known before the handler runs. It
// returns the skip reason, or "" when the request should be watched.
func (d *Decider) Entry(r *http.Request, bypassed bool) string {
	switch {
	case !d.enabled:
		return SkipDisabled
	case bypassed:
		return SkipBypass
	case !d.methods[r.Method]:
		return SkipMethod
	case d.ignored(r.URL.RequestURI()):
		return SkipIgnored
	case IsUpgrade(r):
		return SkipUpgrade
	}
	return captureReason
}

// Final re-checks the bypass marker, which a handler may have set, and
// applies the only-errors rule against the status actually sent.
func (d *Decider) Final(bypassed bool, status int) string {
	if bypassed {
		return SkipBypass
	}
	if d.onlyErrors && status < http.StatusBadRequest {
		return SkipSuccess
	}
	return captureReason
}

func (d *Decider) ignored(uri string) bool {
	for _, p := range d.ignore {
		if MatchPath(uri, p) {
			return true
		}
	}
	return false
}

// MatchPath reports whether uri is prefix itself or lies under it: the
// prefix must be followed by "/" or "?". Comparison ignores case.
func MatchPath(uri, prefix string) bool {
	if len(uri) < len(prefix) || !strings.EqualFold(uri[:len(prefix)], prefix) {
		return false
	}
	if len(uri) == len(prefix) || strings.HasSuffix(prefix, "/") {
		return true
	}
	next := uri[len(prefix)]
	return next == '/' || next == '?'
}

// IsUpgrade detects a websocket handshake.
func IsUpgrade(r *http.Request) bool {
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return false
	}
	for _, v := range strings.Split(r.Header.Get("Connection"), ",") {
		if strings.EqualFold(strings.TrimSpace(v), "upgrade") {
			return true
		}
	}
	return false
}

