package notification

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*NotificationManager, *MockNotifier) {
	t.Helper()
	mock := &MockNotifier{}
	nm, err := NewNotificationManager(WithNotifier(mock), WithFrontendURL("https://play.example"), WithDefaultTemplates())
	require.NoError(t, err)
	return nm, mock
}

func TestDefaultTemplatesRender(t *testing.T) {
	nm, mock := newTestManager(t)
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, nm.SendLoginAlert("a@example.com", "alice", "1.2.3.4", "Firefox", at))
	require.NoError(t, nm.SendPasswordReset("a@example.com", "alice", "abc123", at))
	require.NoError(t, nm.SendPasswordResetConfirmation("a@example.com", "alice"))

	sent := mock.Sent()
	require.Len(t, sent, 3)
	for _, s := range sent {
		msg, err := buildMessage("noreply@mytad.example", s.Data, s.Template)
		require.NoError(t, err, s.Type)
		assert.NotNil(t, msg)
	}

	reset := mock.SentTo(PasswordResetNotice, "a@example.com")
	require.Len(t, reset, 1)
	assert.Equal(t, "https://play.example/reset-password?token=abc123", reset[0].Data.Data["Link"])

	text, err := renderText(sent[0].Template.Text, sent[0].Data.Data)
	require.NoError(t, err)
	assert.Contains(t, text, "1.2.3.4")
	assert.Contains(t, text, "Firefox")
}

func TestSendErrors(t *testing.T) {
	nm, mock := newTestManager(t)

	err := nm.Send("unknown", NotificationData{To: "a@example.com"})
	assert.Error(t, err)

	mock.Err = errors.New("smtp down")
	assert.Error(t, nm.SendPasswordResetConfirmation("a@example.com", "alice"))
}

func TestNoNotifierDrops(t *testing.T) {
	nm, err := NewNotificationManager(WithDefaultTemplates())
	require.NoError(t, err)
	assert.NoError(t, nm.SendPasswordResetConfirmation("a@example.com", "alice"))
}

func TestBuildMessage(t *testing.T) {
	tmpl := NoticeTemplate{Subject: "s", Text: "hi {{.Name}}"}

	_, err := buildMessage("noreply@mytad.example", NotificationData{Data: map[string]string{"Name": "x"}}, tmpl)
	assert.Error(t, err, "missing recipient")

	_, err = buildMessage("noreply@mytad.example", NotificationData{To: "a@example.com", Data: map[string]string{}}, tmpl)
	assert.Error(t, err, "missing template key")

	_, err = buildMessage("noreply@mytad.example", NotificationData{To: "a@example.com"}, NoticeTemplate{Subject: "s"})
	assert.Error(t, err, "empty body")

	html, err := renderHTML("<b>{{.Name}}</b>", map[string]string{"Name": "<script>"})
	require.NoError(t, err)
	assert.Equal(t, "<b>&lt;script&gt;</b>", html)
}
