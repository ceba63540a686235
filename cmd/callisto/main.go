// Callisto routes LLM requests across configured model providers.
//
// Each request is scrubbed of PII, checked against per-provider daily
// budgets and circuit breakers, and dispatched to the cheapest admissible
// provider with retries and fallback.
//
// Usage:
//
//	# Check a configuration file
//	callisto validate --config callisto.yaml
//
//	# Route one prompt
//	callisto route --prompt "Summarize this lease" --model gpt-4o-mini
//
//	# Route a file of requests with eight workers and a metrics endpoint
//	callisto batch --input requests.yaml --concurrency 8 --metrics-addr :9090
//
//	# Inspect stored attempts and budget windows
//	callisto audit --since 24h
//	callisto budget
package main

func main() {
	Execute()
}
