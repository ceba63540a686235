package redact

import (
	"fmt"
	"strings"
)

// Category names a class of sensitive data.
type Category string

// Supported categories.
const (
	SSN           Category = "ssn"
	Email         Category = "email"
	Phone         Category = "phone"
	CreditCard    Category = "credit_card"
	TaxID         Category = "tax_id"
	StreetAddress Category = "street_address"
	IP            Category = "ip"
)

// applyOrder fixes the order matchers run in. Broader numeric patterns run
// after the ones whose matches they could otherwise split.
var applyOrder = []Category{
	Email,
	IP,
	CreditCard,
	SSN,
	TaxID,
	Phone,
	StreetAddress,
}

// aliases maps accepted spellings to categories.
var aliases = map[string]Category{
	"ssn":                    SSN,
	"social_security_number": SSN,
	"email":                  Email,
	"phone":                  Phone,
	"phone_number":           Phone,
	"credit_card":            CreditCard,
	"card":                   CreditCard,
	"tax_id":                 TaxID,
	"ein":                    TaxID,
	"street_address":         StreetAddress,
	"address":                StreetAddress,
	"ip":                     IP,
	"ip_address":             IP,
}

// AllCategories returns every supported category in application order.
func AllCategories() []Category {
	out := make([]Category, len(applyOrder))
	copy(out, applyOrder)
	return out
}

// ParseCategory parses a category name. Matching ignores case and treats
// dashes and spaces as underscores.
func ParseCategory(name string) (Category, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	if c, ok := aliases[key]; ok {
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, name)
}

// ParseCategories parses a list of category names, dropping duplicates.
func ParseCategories(names []string) ([]Category, error) {
	seen := make(map[Category]bool, len(names))
	out := make([]Category, 0, len(names))
	for _, name := range names {
		c, err := ParseCategory(name)
		if err != nil {
			return nil, err
		}
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out, nil
}

// Placeholder returns the text that replaces a match, e.g. "[REDACTED:EMAIL]".
func (c Category) Placeholder() string {
	return "[REDACTED:" + strings.ToUpper(string(c)) + "]"
}

// String implements fmt.Stringer.
func (c Category) String() string {
	return string(c)
}
