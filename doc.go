// Package authcore implements the authentication and session-security core
// of the QuantConsole trading console: credential verification, JWT
// access/refresh token lifecycle with rotation, TOTP second-factor enrollment
// and verification, per-device session tracking, and an append-only security
// event log used to flag suspicious session activity.
//
// The package is a library, not a service. HTTP transport, request parsing,
// and process wiring are the caller's concern; authcore exposes [Engine],
// [Builder], [Config], and the persistence interfaces ([UserStore],
// [EventStore]) that callers back with their own database. Sessions live in
// Redis and are managed internally by the engine.
//
// # Architecture boundaries
//
//   - User records and security events are persisted through [UserStore] and
//     [EventStore]. The pgstore sub-package provides Postgres implementations.
//   - Sessions are Redis rows keyed by session id with a token index; refresh
//     rotation is a single atomic compare-and-swap, so two concurrent
//     refreshes of the same token cannot both succeed.
//   - Session inserts and security-event writes are best-effort side effects:
//     their failure is logged and swallowed, never failing the credential or
//     token operation that triggered them.
//
// Engine methods are safe for concurrent use after [Builder.Build].
package authcore
