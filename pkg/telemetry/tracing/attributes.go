package tracing

import (
	"go.opentelemetry.io/otel/attribute"
)

// Span attribute keys. Request and response text is never recorded.
const (
	AttrRequestID = attribute.Key("callisto.request_id")
	AttrModel     = attribute.Key("callisto.model")
	AttrProvider  = attribute.Key("callisto.provider")
	AttrAttempt   = attribute.Key("callisto.attempt")
	AttrStatus    = attribute.Key("callisto.status")
	AttrAttempts  = attribute.Key("callisto.attempts")
	AttrCostCents = attribute.Key("callisto.cost_cents")
	AttrTokens    = attribute.Key("callisto.tokens")
)

// RouteAttributes are set when a route span starts.
func RouteAttributes(requestID, model string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrRequestID.String(requestID),
		AttrModel.String(model),
	}
}

// OutcomeAttributes are set when a route span ends.
func OutcomeAttributes(status, providerID string, costCents float64, attempts int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrStatus.String(status),
		AttrProvider.String(providerID),
		AttrCostCents.Float64(costCents),
		AttrAttempts.Int(attempts),
	}
}

// AttemptAttributes are set when an attempt span starts.
func AttemptAttributes(providerID, model string, attempt int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrProvider.String(providerID),
		AttrModel.String(model),
		AttrAttempt.Int(attempt),
	}
}
