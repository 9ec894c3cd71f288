// Package api provides the REST client for the skillforge marketplace API.
//
// # Overview
//
// The chat core reads conversation summaries, message history and
// notifications over REST, and posts outgoing messages and read receipts.
// All methods are context-first and safe for concurrent use.
//
// # Error taxonomy
//
// Failures map onto two typed errors:
//
//   - TransientError: network failures, timeouts, 5xx. Retry-eligible;
//     callers performing reads degrade to cached data instead of blocking.
//   - AuthError: 401/403. Fatal to the session; the caller must force a
//     re-login flow rather than retry.
//
// Use IsTransient and IsAuth to classify an error at a boundary.
package api
