// Package audit records security-relevant actions and their outcomes.
//
// Rows are append-only. The Logger is best-effort: a failed write is logged
// with slog and never surfaces to the caller. Client IP and user agent are
// taken from the request context populated by Middleware.
package audit
