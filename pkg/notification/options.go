package notification

import (
	"embed"
	"log/slog"
)

//go:embed templates/*
var templateFiles embed.FS

func loadTemplate(filename string) string {
	content, err := templateFiles.ReadFile(filename)
	if err != nil {
		slog.Error("Error reading template file!", "err", err, "filename", filename)
		return ""
	}
	return string(content)
}

// NotificationManagerOption is a function that configures a NotificationManager
type NotificationManagerOption func(*NotificationManager) error

// WithSMTP sends through an SMTP server
func WithSMTP(config SMTPConfig) NotificationManagerOption {
	return func(nm *NotificationManager) error {
		emailNotifier, err := NewEmailNotifier(config)
		if err != nil {
			return err
		}
		nm.notifier = emailNotifier
		return nil
	}
}

// WithNotifier replaces the delivery channel
func WithNotifier(n Notifier) NotificationManagerOption {
	return func(nm *NotificationManager) error {
		nm.notifier = n
		return nil
	}
}

// WithFrontendURL sets the base of links placed in messages
func WithFrontendURL(url string) NotificationManagerOption {
	return func(nm *NotificationManager) error {
		nm.frontendURL = url
		return nil
	}
}

// WithDefaultTemplates registers the built-in account security templates
func WithDefaultTemplates() NotificationManagerOption {
	return func(nm *NotificationManager) error {
		nm.RegisterTemplate(LoginAlertNotice, NoticeTemplate{
			Subject: "New login to your myTAD account",
			Text:    loadTemplate("templates/email/login_alert.txt"),
			Html:    loadTemplate("templates/email/login_alert.html"),
		})
		nm.RegisterTemplate(PasswordResetNotice, NoticeTemplate{
			Subject: "Reset your myTAD password",
			Text:    loadTemplate("templates/email/password_reset.txt"),
			Html:    loadTemplate("templates/email/password_reset.html"),
		})
		nm.RegisterTemplate(PasswordResetConfirmNotice, NoticeTemplate{
			Subject: "Your myTAD password was changed",
			Text:    loadTemplate("templates/email/password_reset_confirm.txt"),
		})
		return nil
	}
}
