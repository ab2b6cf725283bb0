// Package twofa implements TOTP two-factor authentication with single-use backup codes.
//
// Enrollment is two-phase: BeginSetup generates a secret and ten backup codes and parks
// them in a Store with a TTL; ConfirmSetup checks a code against that secret and only then
// enables 2FA on the account and stores the backup codes hashed.
//
// Logins that pass the password step start a Challenge. The client receives a signed
// token naming the challenge and completes it with either a TOTP code or a backup code.
// Codes are RFC 6238: 30 second step, one step of skew, six digits, HMAC-SHA1.
//
// The Store is Redis in production so a challenge started on one instance can be finished
// on another; InMemoryStore serves tests and single-node runs.
package twofa
