// Package redact masks personally identifiable information in text before
// it leaves the process.
//
// Each Category (ssn, email, phone, credit_card, tax_id, street_address, ip)
// has a matcher and a fixed placeholder such as "[REDACTED:EMAIL]". Matching
// is case-insensitive and uses RE2 regular expressions, so matching time is
// linear in the input length. Card numbers must pass a Luhn check and IP
// candidates must parse as addresses before they are replaced.
//
// Redaction is idempotent: placeholders never match any category.
//
//	r := redact.New()
//	clean, err := r.Redact(prompt, redact.AllCategories())
//	if err != nil {
//	    // do not send prompt anywhere
//	}
package redact
