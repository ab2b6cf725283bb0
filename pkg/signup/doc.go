// Package signup registers new player accounts.
//
// Registration checks the device ban list before anything else, validates the
// username (3 to 30 letters, digits, underscores or hyphens), the email address
// and the password policy, refuses taken usernames and emails with
// USER_ALREADY_EXISTS, and records a REGISTER audit entry. When a session
// manager is configured the new account is signed in immediately.
//
// # Basic Usage
//
//	service := signup.NewSignupService(users,
//		signup.WithPasswordHasher(hasher),
//		signup.WithDeviceGuard(devices),
//		signup.WithSessionManager(sessionManager, 24*time.Hour),
//		signup.WithAuditLogger(auditLogger),
//	)
//
//	result, err := service.RegisterUser(ctx, signup.RegisterUserRequest{
//		Username: "player_one",
//		Email:    "player@example.com",
//		Password: "Sup3r-Secret!",
//	})
//
// # HTTP Handler Integration
//
//	handle := signup.NewHandle(service, signup.WithCookieOptions(cookies))
//	r.Route("/api/auth", func(r chi.Router) {
//		handle.Routes(r)
//	})
//
// Errors are *errors.Error values and render through errors.WriteHTTP:
//
//	400 VALIDATION_FAILED / PASSWORD_COMPLEXITY
//	403 DEVICE_BANNED (the ban marker cookies are set)
//	409 USER_ALREADY_EXISTS
package signup
