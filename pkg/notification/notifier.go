package notification

// NoticeType names one kind of message
type NoticeType string

const (
	LoginAlertNotice           NoticeType = "login_alert"
	PasswordResetNotice        NoticeType = "password_reset"
	PasswordResetConfirmNotice NoticeType = "password_reset_confirm"
)

type NotificationData struct {
	To   string            // Recipient address
	Data map[string]string // Template values
}

// NoticeTemplate holds text/template and html/template sources for one notice
type NoticeTemplate struct {
	Subject string
	Text    string
	Html    string
}

type Notifier interface {
	Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error
}
