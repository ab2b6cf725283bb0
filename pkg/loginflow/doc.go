// Package loginflow provides the orchestrated login state machine for game-auth.
//
// A login is a sequence of ordered steps run by a FlowExecutor. Checks that hide
// information from the caller run before the checks they hide:
//
//  1. Device ban (bypassed for ban-excluded accounts)
//  2. Failed-attempt rate limit per IP
//  3. Username lookup (unknown usernames fail like wrong passwords)
//  4. Disabled account (temporary or permanent)
//  5. Account lockout
//  6. Password check (failures feed the lockout counter)
//  7. Success recording
//  8. 2FA challenge, which ends the first request without a session
//  9. Session issue, plus a remember-me session when asked
//  10. New-IP login alert, sent in the background
//
// Verify2FA runs a shorter flow: the IP rate limit, the challenge and its code,
// then the disabled and lockout checks again before the session is issued.
// A wrong code counts as a failed attempt for the IP.
//
// Every terminal branch writes one login attempt row; branches with a resolved
// account also write an audit entry.
//
// # Basic Usage
//
//	svc := loginflow.NewService(loginflow.ServiceDependencies{
//		Users:     userRepo,
//		Devices:   deviceGuard,
//		Attempts:  attemptLimiter,
//		Lockout:   lockoutGuard,
//		Hasher:    hasher,
//		TwoFactor: twofaService,
//		Sessions:  sessionManager,
//		Audit:     auditLogger,
//		Alerts:    notificationManager,
//	})
//
//	result, err := svc.Login(ctx, loginflow.Request{
//		Username:    "alice",
//		Password:    "...",
//		IPAddress:   device.ClientIP(r),
//		UserAgent:   r.UserAgent(),
//		Fingerprint: device.RequestFingerprint(r),
//	})
//	if result.RequiresTwoFA {
//		// send result.ChallengeToken back; the client calls Verify2FA with it
//	}
//
// Custom flows can be assembled from the exported steps with NewFlowBuilder.
package loginflow
