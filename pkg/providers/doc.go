// Package providers defines the capabilities the router consumes from model
// providers.
//
// # Overview
//
// Two interfaces separate what varies per provider family from the router:
//
//   - Client invokes one model call and reports usage and cost
//   - Family builds clients, estimates cost before a call, and classifies
//     failures into a FailureKind
//
// Families are implemented once per API shape (openai, anthropic, gemini,
// plus test doubles) and selected by the provider's configured family. The
// router never branches on the family name.
//
// # Failure Classification
//
// Every error a client returns maps to a FailureKind. Only transient,
// timeout and rate_limited failures are retried against the same provider;
// auth and invalid_request fail fast to the next candidate.
//
//	kind := family.Classify(err)
//	if kind.Retryable() {
//	    // back off and try again
//	}
//
// Base supplies the default classification: context deadlines become
// timeout, network timeouts become timeout, the typed errors in this
// package map directly, and HTTP status codes map by class (401/403 auth,
// 400/404/422 invalid_request, 408 timeout, 429 rate_limited, 5xx
// transient).
//
// # Cost
//
// Prices are cents per 1K tokens. Estimates use a character and word blend
// for prompt tokens and the request's MaxTokens (or three times the prompt,
// bounded by the provider's max_output_tokens) for completion tokens.
package providers
