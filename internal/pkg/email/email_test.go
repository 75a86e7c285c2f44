package email

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qs3c/subtrack_server/config"
)

func testData() *ReminderData {
	return &ReminderData{
		UserName:         "Alice <admin>",
		SubscriptionName: "Netflix",
		Price:            15.49,
		Currency:         "USD",
		Frequency:        "monthly",
		PaymentMethod:    "visa",
		RenewalDate:      time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		DaysBefore:       7,
	}
}

func TestReminderSubject(t *testing.T) {
	data := testData()
	assert.Contains(t, ReminderSubject(data), "in 7 days")

	data.DaysBefore = 1
	assert.Contains(t, ReminderSubject(data), "tomorrow")
}

func TestSendRenewalReminder_LogOnlyWithoutSMTP(t *testing.T) {
	svc := NewService(&config.EmailConfig{}, zap.NewNop())

	called := false
	svc.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		called = true
		return nil
	}

	require.NoError(t, svc.SendRenewalReminder("alice@example.com", testData()))
	assert.False(t, called)
	assert.False(t, svc.Enabled())
}

func TestSendRenewalReminder_SendsHTML(t *testing.T) {
	cfg := &config.EmailConfig{
		SMTPHost: "smtp.example.com",
		SMTPPort: 587,
		From:     "reminders@example.com",
	}
	svc := NewService(cfg, zap.NewNop())

	var gotAddr string
	var gotTo []string
	var gotMsg string
	svc.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotTo = to
		gotMsg = string(msg)
		return nil
	}

	require.NoError(t, svc.SendRenewalReminder("alice@example.com", testData()))

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, []string{"alice@example.com"}, gotTo)
	assert.True(t, strings.HasPrefix(gotMsg, "From: reminders@example.com\r\n"))
	assert.Contains(t, gotMsg, "Content-Type: text/html; charset=UTF-8")
	assert.Contains(t, gotMsg, "Feb 1, 2024")
	assert.Contains(t, gotMsg, "USD 15.49")
	assert.Contains(t, gotMsg, "Alice &lt;admin&gt;")
	assert.NotContains(t, gotMsg, "<admin>")
}

func TestSendRenewalReminder_WrapsError(t *testing.T) {
	svc := NewService(&config.EmailConfig{SMTPHost: "smtp.example.com", SMTPPort: 25}, zap.NewNop())

	smtpErr := errors.New("connection refused")
	svc.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		return smtpErr
	}

	err := svc.SendRenewalReminder("alice@example.com", testData())
	assert.ErrorIs(t, err, smtpErr)
}
