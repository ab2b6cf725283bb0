// Package ratelimit holds the two throttles in front of authentication.
//
// AttemptLimiter counts failed logins per IP over a sliding window computed
// from the login_attempts log (or a Redis sorted set when configured) and is
// consulted by the login flow. Throttle is a token-bucket HTTP middleware that
// caps raw request volume globally, per IP and per endpoint.
package ratelimit
