package notification

import "sync"

// SentNotification is one message captured by MockNotifier
type SentNotification struct {
	Type     NoticeType
	Data     NotificationData
	Template NoticeTemplate
}

type MockNotifier struct {
	mu   sync.Mutex
	sent []SentNotification
	Err  error
}

func (m *MockNotifier) Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, SentNotification{Type: noticeType, Data: notification, Template: template})
	return nil
}

// Sent returns a copy of everything sent so far
func (m *MockNotifier) Sent() []SentNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentNotification(nil), m.sent...)
}

// SentTo returns the messages of noticeType addressed to to
func (m *MockNotifier) SentTo(noticeType NoticeType, to string) []SentNotification {
	var out []SentNotification
	for _, s := range m.Sent() {
		if s.Type == noticeType && s.Data.To == to {
			out = append(out, s)
		}
	}
	return out
}
