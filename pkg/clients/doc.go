// Package clients talks to the services the finance engine depends on.
//
// # Overview
//
// AccountingClient reads the usage records of a user from the accounting
// service. OrchestrationClient pauses, hibernates, stops, resumes and purges
// the resources of a user through the resource allocation service.
//
// Both share one HTTP layer:
//
//   - otelhttp transport, so every outbound call is traced
//   - OAuth2 client credentials; a 401 refreshes the token and retries once
//   - exponential backoff for transport errors and 5xx responses
//
// Responses map to the finance sentinel errors: 501 is ErrNotImplemented,
// any other failure is ErrUnavailable.
//
// # Hibernation Support
//
// Providers that cannot hibernate answer 501. The orchestration client
// remembers that per user for HibernateCacheTTL, so later sweeps fall back to
// stopping resources without another round trip.
package clients
