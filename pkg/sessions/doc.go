// Package sessions manages opaque bearer tokens backed by the sessions table.
//
// Tokens are 256-bit random hex strings. A user may hold many sessions at once.
// Unknown, expired, revoked and malformed tokens all fail validation with the
// same ErrInvalidSession. Expiry is enforced lazily when a token is presented.
package sessions
