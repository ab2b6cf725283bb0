package notification

import (
	"fmt"
	"log/slog"
	"time"
)

// NotificationManager renders registered templates and hands them to the notifier.
type NotificationManager struct {
	notifier    Notifier
	templates   map[NoticeType]NoticeTemplate
	frontendURL string
}

// NewNotificationManager applies opts. Without a notifier every Send is logged and dropped.
func NewNotificationManager(opts ...NotificationManagerOption) (*NotificationManager, error) {
	nm := &NotificationManager{templates: make(map[NoticeType]NoticeTemplate)}
	for _, opt := range opts {
		if err := opt(nm); err != nil {
			return nil, err
		}
	}
	return nm, nil
}

// RegisterTemplate adds or replaces the template for noticeType
func (nm *NotificationManager) RegisterTemplate(noticeType NoticeType, tmpl NoticeTemplate) {
	nm.templates[noticeType] = tmpl
}

// Send delivers noticeType to data.To
func (nm *NotificationManager) Send(noticeType NoticeType, data NotificationData) error {
	tmpl, ok := nm.templates[noticeType]
	if !ok {
		return fmt.Errorf("no template registered for notice type: %s", noticeType)
	}
	if nm.notifier == nil {
		slog.Info("Email disabled, dropping notification", "notice", noticeType)
		return nil
	}
	return nm.notifier.Send(noticeType, data, tmpl)
}

// SendLoginAlert tells the owner of an account about a login from an unseen IP
func (nm *NotificationManager) SendLoginAlert(to, username, ip, userAgent string, at time.Time) error {
	return nm.Send(LoginAlertNotice, NotificationData{
		To: to,
		Data: map[string]string{
			"Username":  username,
			"IPAddress": ip,
			"UserAgent": userAgent,
			"Time":      at.UTC().Format(time.RFC1123),
		},
	})
}

// SendPasswordReset mails the reset link for token
func (nm *NotificationManager) SendPasswordReset(to, username, token string, expiresAt time.Time) error {
	return nm.Send(PasswordResetNotice, NotificationData{
		To: to,
		Data: map[string]string{
			"Username":  username,
			"Link":      nm.frontendURL + "/reset-password?token=" + token,
			"ExpiresAt": expiresAt.UTC().Format(time.RFC1123),
		},
	})
}

// SendPasswordResetConfirmation confirms a completed reset
func (nm *NotificationManager) SendPasswordResetConfirmation(to, username string) error {
	return nm.Send(PasswordResetConfirmNotice, NotificationData{
		To:   to,
		Data: map[string]string{"Username": username},
	})
}
