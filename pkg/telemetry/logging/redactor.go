package logging

import (
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

// Redacted replaces masked values.
const Redacted = "***"

// sensitiveKeys are matched as case-insensitive substrings of attribute and
// map keys.
var sensitiveKeys = []string{
	"authorization",
	"token",
	"password",
	"passwd",
	"secret",
	"api_key",
	"apikey",
	"passphrase",
	"private_key",
	"cookie",
}

var bearerPattern = regexp.MustCompile(`(?i)(bearer|basic)\s+[a-zA-Z0-9\-._~+/]+=*`)

// Redactor masks credentials in log attributes and fetch configs.
type Redactor struct {
	keys []string
}

// NewRedactor creates a Redactor with the built-in sensitive keys plus any
// extra key fragments.
func NewRedactor(extraKeys ...string) *Redactor {
	keys := append([]string{}, sensitiveKeys...)
	for _, k := range extraKeys {
		keys = append(keys, strings.ToLower(k))
	}
	return &Redactor{keys: keys}
}

// IsSensitiveKey reports whether values stored under key are masked.
func (r *Redactor) IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, k := range r.keys {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// RedactString masks bearer/basic credentials and URL passwords in s.
func (r *Redactor) RedactString(s string) string {
	if s == "" {
		return s
	}
	s = bearerPattern.ReplaceAllString(s, "$1 "+Redacted)
	if strings.Contains(s, "@") && strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil && u.User != nil {
			if _, ok := u.User.Password(); ok {
				u.User = url.UserPassword(u.User.Username(), Redacted)
				s = u.String()
			}
		}
	}
	return s
}

// RedactConfig returns a deep copy of cfg with sensitive values masked.
// cfg itself is never modified.
func (r *Redactor) RedactConfig(cfg map[string]any) map[string]any {
	if cfg == nil {
		return nil
	}
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		if r.IsSensitiveKey(k) {
			out[k] = Redacted
			continue
		}
		out[k] = r.redactValue(v)
	}
	return out
}

func (r *Redactor) redactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return r.RedactConfig(val)
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, s := range val {
			if r.IsSensitiveKey(k) {
				out[k] = Redacted
			} else {
				out[k] = r.RedactString(s)
			}
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = r.redactValue(e)
		}
		return out
	case string:
		return r.RedactString(val)
	default:
		return v
	}
}

// RedactAttr masks a and, for groups, its members.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	if r.IsSensitiveKey(a.Key) && a.Value.Kind() != slog.KindGroup {
		return slog.String(a.Key, Redacted)
	}

	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, r.RedactString(a.Value.String()))
	case slog.KindGroup:
		members := a.Value.Group()
		redacted := make([]any, len(members))
		for i, m := range members {
			redacted[i] = r.RedactAttr(m)
		}
		return slog.Group(a.Key, redacted...)
	case slog.KindAny:
		switch v := a.Value.Any().(type) {
		case map[string]any, map[string]string, []any:
			return slog.Any(a.Key, r.redactValue(v))
		}
	}
	return a
}
