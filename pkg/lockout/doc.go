// Package lockout implements the per-account failed-attempt counter and timed lock.
//
// A lock is a future account_locked_until on the user row; while it runs,
// authentication is refused even with the right password. Unlock also resets
// the counter. Lockout is distinct from an admin disable (is_active=false).
package lockout
