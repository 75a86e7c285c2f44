package email

import (
	"fmt"
	"html"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/subtrack_server/config"
)

// sendFunc 与 smtp.SendMail 签名一致，测试中可替换
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Service struct {
	cfg    *config.EmailConfig
	logger *zap.Logger
	send   sendFunc
}

func NewService(cfg *config.EmailConfig, logger *zap.Logger) *Service {
	return &Service{
		cfg:    cfg,
		logger: logger,
		send:   smtp.SendMail,
	}
}

// Enabled 是否配置了 SMTP；未配置时邮件只写日志
func (s *Service) Enabled() bool {
	return s.cfg != nil && s.cfg.SMTPHost != ""
}

// ReminderData 续费提醒邮件内容
type ReminderData struct {
	UserName         string
	SubscriptionName string
	Price            float64
	Currency         string
	Frequency        string
	PaymentMethod    string
	RenewalDate      time.Time
	DaysBefore       int
}

// ReminderSubject 续费提醒邮件标题
func ReminderSubject(data *ReminderData) string {
	if data.DaysBefore <= 1 {
		return fmt.Sprintf("📅 Reminder: Your %s subscription renews tomorrow", data.SubscriptionName)
	}
	return fmt.Sprintf("📅 Reminder: Your %s subscription renews in %d days", data.SubscriptionName, data.DaysBefore)
}

// SendRenewalReminder 发送续费提醒邮件
func (s *Service) SendRenewalReminder(to string, data *ReminderData) error {
	subject := ReminderSubject(data)

	if !s.Enabled() {
		s.logger.Info("smtp not configured, reminder email logged only",
			zap.String("to", to),
			zap.String("subject", subject),
			zap.Time("renewal_date", data.RenewalDate),
		)
		return nil
	}

	return s.sendHTML(to, subject, renderReminder(data))
}

func renderReminder(data *ReminderData) string {
	frequency := data.Frequency
	if frequency == "" {
		frequency = "-"
	}

	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #2563eb;">Subscription Renewal Reminder</h2>
        <p>Hello %s,</p>
        <p>Your <strong>%s</strong> subscription is set to renew on <strong>%s</strong> (%d day(s) from now).</p>
        <table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
            <tr><td style="padding: 6px 0; color: #6b7280;">Plan</td><td>%s</td></tr>
            <tr><td style="padding: 6px 0; color: #6b7280;">Price</td><td>%s %.2f (%s)</td></tr>
            <tr><td style="padding: 6px 0; color: #6b7280;">Payment Method</td><td>%s</td></tr>
        </table>
        <p>If you'd like to make changes or cancel your subscription, please visit your account settings before the renewal date.</p>
        <hr style="border: none; border-top: 1px solid #e5e7eb; margin: 20px 0;">
        <p style="color: #6b7280; font-size: 12px;">This email was sent automatically, please do not reply.</p>
    </div>
</body>
</html>
`,
		html.EscapeString(data.UserName),
		html.EscapeString(data.SubscriptionName),
		data.RenewalDate.Format("Jan 2, 2006"),
		data.DaysBefore,
		html.EscapeString(data.SubscriptionName),
		html.EscapeString(data.Currency),
		data.Price,
		html.EscapeString(frequency),
		html.EscapeString(data.PaymentMethod),
	)
}

// sendHTML 发送 HTML 邮件
func (s *Service) sendHTML(to, subject, body string) error {
	headers := [][2]string{
		{"From", s.cfg.From},
		{"To", to},
		{"Subject", mime.QEncoding.Encode("UTF-8", subject)},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/html; charset=UTF-8"},
	}

	var msg strings.Builder
	for _, h := range headers {
		msg.WriteString(fmt.Sprintf("%s: %s\r\n", h[0], h[1]))
	}
	msg.WriteString("\r\n")
	msg.WriteString(body)

	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)

	if err := s.send(addr, auth, s.cfg.From, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
