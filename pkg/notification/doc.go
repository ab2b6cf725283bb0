// Package notification sends the account security emails: new-login alerts,
// password reset links and reset confirmations.
//
// Templates are embedded and rendered with text/template and html/template.
// Delivery goes through a Notifier; EmailNotifier speaks SMTP via go-mail and
// MockNotifier records messages for tests.
//
//	nm, err := notification.NewNotificationManager(
//		notification.WithSMTP(cfg.Email.ToSMTPConfig()),
//		notification.WithFrontendURL(cfg.Security.FrontendURL),
//		notification.WithDefaultTemplates(),
//	)
package notification
