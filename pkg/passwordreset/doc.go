// Package passwordreset implements the forgotten-password flow.
//
// Request answers every well-formed email with the same generic message, limits
// each IP to three requests an hour, replaces any unused token the account
// already has and mails a single-use 64 character hex token valid for an hour.
// Confirm checks the password policy, redeems the token exactly once, stores the
// new hash (clearing the failed-login counter) and revokes every session of the
// account.
package passwordreset
