package logging

import (
	"log/slog"
	"regexp"
	"strings"

	"mercator-hq/callisto/pkg/redact"
)

// Scrubber removes credentials and PII from log values.
type Scrubber struct {
	redactor   *redact.Redactor
	categories []redact.Category
}

var credentialPatterns = []struct {
	regex       *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`sk-(?:ant-)?[a-zA-Z0-9_\-]{8,}`), "sk-***"},
	{regexp.MustCompile(`AIza[0-9A-Za-z_\-]{20,}`), "AIza***"},
	{regexp.MustCompile(`Bearer\s+[a-zA-Z0-9\-._~+/]+=*`), "Bearer ***"},
	{regexp.MustCompile(`(?i)(password|passwd|pwd)[:=]\s*[^\s]+`), "$1: ***"},
}

var sensitiveKeys = []string{
	"password", "passwd", "pwd",
	"secret", "token", "api_key", "apikey",
	"authorization", "credential",
	"private_key", "privatekey",
}

// NewScrubber returns a scrubber covering every PII category.
func NewScrubber() *Scrubber {
	return &Scrubber{
		redactor:   redact.New(redact.WithMaxInputBytes(0)),
		categories: redact.AllCategories(),
	}
}

// String scrubs a free-form value.
func (s *Scrubber) String(value string) string {
	if value == "" {
		return value
	}
	for _, p := range credentialPatterns {
		value = p.regex.ReplaceAllString(value, p.replacement)
	}
	out, err := s.redactor.Redact(value, s.categories)
	if err != nil {
		return "[UNLOGGABLE]"
	}
	return out
}

// Attr scrubs one attribute, descending into groups.
func (s *Scrubber) Attr(a slog.Attr) slog.Attr {
	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, maskValue(a.Value.String()))
	}

	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, s.String(v.String()))
	case slog.KindGroup:
		group := v.Group()
		scrubbed := make([]slog.Attr, len(group))
		for i, ga := range group {
			scrubbed[i] = s.Attr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(scrubbed...)}
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, s.String(err.Error()))
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lower, sensitive) {
			return true
		}
	}
	return false
}

// maskValue keeps a short prefix of long values for identification.
func maskValue(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 8 {
		return "***"
	}
	return v[:4] + "***"
}
