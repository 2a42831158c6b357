// Package remote is the HTTP client for the remote itinerary service.
//
// # Endpoints
//
// Paths are resolved under the configured base URL (which may carry a path
// prefix such as /api):
//
//   - GET    /itineraries           list
//   - GET    /itineraries/{id}      fetch one
//   - POST   /itineraries           create
//   - PUT    /itineraries/{id}      update
//   - DELETE /itineraries/{id}      delete
//   - POST   /itineraries/{id}/share
//   - GET    /itineraries/{id}/pdf
//   - PUT    /user/profile
//   - PUT    /user/settings
//
// Requests carry a bearer token from the configured TokenSource when one is
// present. The client holds no state beyond its circuit breaker.
//
// # Errors
//
// Transport failures (refused connections, DNS, timeouts, an open breaker)
// wrap ErrUnreachable. A non-2xx answer is a *StatusError whose Message comes
// from the body's "message" field when present. Callers use IsUnreachable and
// IsRejected to tell them apart.
//
// # Normalisation
//
// Itinerary payloads are decoded with itinerary.Decode, so a formatted budget
// string, preferences.interests and createdAt are accepted in place of
// totalCost, tags and savedAt.
//
// # Circuit breaker
//
// Every call except Ping runs through a gobreaker circuit breaker. Transport
// failures and 5xx/429 answers count as failures; 4xx answers do not. Ping
// bypasses the breaker so the connectivity monitor can see the service come
// back while the breaker is open.
package remote
