// Package errors provides structured error handling with error codes for game-auth.
//
// Every failure that crosses a service boundary is an *Error carrying an ErrorCode.
// The code decides the HTTP status through MapErrorCodeToHTTPStatus, so handlers never
// pick status codes themselves:
//
//	err := errors.New(errors.ErrCodeInvalidCredentials, "Invalid username or password")
//	errors.MapErrorCodeToHTTPStatus(errors.GetCode(err)) // 401
//
// Security-sensitive failures (unknown user, wrong password, bad token) share one code and
// one message so callers cannot enumerate accounts. Infrastructure failures are wrapped with
// InternalWrap; WriteHTTP logs the wrapped cause and sends the client only the opaque message.
package errors
