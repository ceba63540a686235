package redact

import (
	"errors"
	"fmt"
	"net/netip"
	"regexp"
	"strings"
)

var (
	// ErrUnknownCategory is returned for category names the redactor does not know.
	ErrUnknownCategory = errors.New("unknown redaction category")

	// ErrInputTooLarge is returned when text exceeds the configured size bound.
	ErrInputTooLarge = errors.New("input exceeds redaction size limit")

	// ErrInternal wraps unexpected matcher failures.
	ErrInternal = errors.New("redaction failed")
)

// DefaultMaxInputBytes bounds the text accepted by a Redactor.
const DefaultMaxInputBytes = 1 << 20

// matcher is a compiled pattern plus an optional validator that can reject
// candidate matches (Luhn check for cards, address parsing for IPs).
type matcher struct {
	category Category
	regex    *regexp.Regexp
	valid    func(string) bool
}

// patterns are compiled with Go's RE2 engine, which matches in time linear
// in the input, so adversarial input cannot cause backtracking blowups.
var patterns = map[Category]struct {
	regex string
	valid func(string) bool
}{
	Email: {
		regex: `(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`,
	},
	IP: {
		// The address is capture group 1. The leading class stands in for a
		// word boundary, which never holds before an address starting with "::".
		regex: `(?i)(?:^|[^0-9a-z_:.])((?:\d{1,3}\.){3}\d{1,3}\b|(?:[0-9a-f]{1,4}:){7}[0-9a-f]{1,4}\b|(?:[0-9a-f]{1,4}:){1,6}:(?:[0-9a-f]{1,4}(?::[0-9a-f]{1,4}){0,5}\b)?|::[0-9a-f]{1,4}(?::[0-9a-f]{1,4}){0,6}\b)`,
		valid: validIP,
	},
	CreditCard: {
		regex: `\b(?:\d[ \-]?){12,18}\d\b`,
		valid: validLuhn,
	},
	SSN: {
		regex: `\b\d{3}[\- ]\d{2}[\- ]\d{4}\b`,
	},
	TaxID: {
		regex: `\b\d{2}-\d{7}\b`,
	},
	Phone: {
		regex: `(?:\+?1[\-. ]?)?(?:\(\d{3}\)|\b\d{3})[\-. ]?\d{3}[\-. ]\d{4}\b`,
	},
	StreetAddress: {
		regex: `(?i)\b\d{1,6}(?:\s+[a-z0-9.'\-]+){1,5}\s+(?:street|st|avenue|ave|road|rd|boulevard|blvd|lane|ln|drive|dr|court|ct|way|place|pl|terrace|ter|parkway|pkwy|circle|cir|highway|hwy)\b\.?`,
	},
}

// Stats counts replacements per category.
type Stats map[Category]int

// Total returns the number of replacements across categories.
func (s Stats) Total() int {
	n := 0
	for _, v := range s {
		n += v
	}
	return n
}

// Redactor replaces sensitive substrings with category placeholders.
// A Redactor is immutable after construction and safe for concurrent use.
type Redactor struct {
	matchers      map[Category]*matcher
	maxInputBytes int
}

// Option configures a Redactor.
type Option func(*Redactor)

// WithMaxInputBytes bounds the input size. Zero or negative disables the bound.
func WithMaxInputBytes(n int) Option {
	return func(r *Redactor) {
		r.maxInputBytes = n
	}
}

// New creates a Redactor with every category compiled.
func New(opts ...Option) *Redactor {
	r := &Redactor{
		matchers:      make(map[Category]*matcher, len(patterns)),
		maxInputBytes: DefaultMaxInputBytes,
	}
	for c, p := range patterns {
		r.matchers[c] = &matcher{
			category: c,
			regex:    regexp.MustCompile(p.regex),
			valid:    p.valid,
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Redact replaces every match of the enabled categories with the category
// placeholder. Categories are applied in a fixed order regardless of the
// order given. Redacting already-redacted text changes nothing.
//
// An error means the text must not leave the process: the caller cannot
// know which sensitive data, if any, survived.
func (r *Redactor) Redact(text string, categories []Category) (string, error) {
	out, _, err := r.RedactWithStats(text, categories)
	return out, err
}

// RedactWithStats is Redact plus per-category replacement counts.
func (r *Redactor) RedactWithStats(text string, categories []Category) (out string, stats Stats, err error) {
	if r.maxInputBytes > 0 && len(text) > r.maxInputBytes {
		return "", nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrInputTooLarge, len(text), r.maxInputBytes)
	}

	enabled := make(map[Category]bool, len(categories))
	for _, c := range categories {
		if _, ok := r.matchers[c]; !ok {
			return "", nil, fmt.Errorf("%w: %q", ErrUnknownCategory, string(c))
		}
		enabled[c] = true
	}

	defer func() {
		if rec := recover(); rec != nil {
			out, stats = "", nil
			err = fmt.Errorf("%w: %v", ErrInternal, rec)
		}
	}()

	stats = make(Stats)
	out = text
	for _, c := range applyOrder {
		if !enabled[c] || out == "" {
			continue
		}
		var n int
		out, n = r.matchers[c].replace(out)
		if n > 0 {
			stats[c] = n
		}
	}

	return out, stats, nil
}

// Contains reports whether text has at least one match for any of the
// categories, without building a redacted copy.
func (r *Redactor) Contains(text string, categories []Category) bool {
	for _, c := range categories {
		m, ok := r.matchers[c]
		if !ok {
			continue
		}
		for _, loc := range m.regex.FindAllStringSubmatchIndex(text, -1) {
			start, end := span(loc)
			if m.valid == nil || m.valid(text[start:end]) {
				return true
			}
		}
	}
	return false
}

// replace substitutes the placeholder for every validated match.
func (m *matcher) replace(text string) (string, int) {
	locs := m.regex.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return text, 0
	}

	placeholder := m.category.Placeholder()
	var b strings.Builder
	b.Grow(len(text))
	last, count := 0, 0
	for _, loc := range locs {
		start, end := span(loc)
		if m.valid != nil && !m.valid(text[start:end]) {
			continue
		}
		b.WriteString(text[last:start])
		b.WriteString(placeholder)
		last = end
		count++
	}
	b.WriteString(text[last:])
	return b.String(), count
}

// span returns the part of a match to redact: capture group 1 when the
// pattern has one, otherwise the whole match.
func span(loc []int) (int, int) {
	if len(loc) >= 4 && loc[2] >= 0 {
		return loc[2], loc[3]
	}
	return loc[0], loc[1]
}

// validLuhn reports whether the digits in s pass the Luhn checksum.
func validLuhn(s string) bool {
	digits := make([]int, 0, len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}

	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// validIP reports whether s parses as an IPv4 or IPv6 address.
func validIP(s string) bool {
	_, err := netip.ParseAddr(s)
	return err == nil
}
