package mailer

import (
	"context"
	"fmt"

	"tecnodash/pkg/config"

	"github.com/wneessen/go-mail"
)

const emptyTextBody = "Sem conteúdo de texto"

// Message 待发送邮件
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
	From    string
}

// SMTPMailer 通过SMTP发送邮件
type SMTPMailer struct {
	cfg config.SMTPConfig
}

// NewSMTPMailer 创建SMTP发送器
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// Send 发送一封同时包含纯文本和HTML的邮件
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	email, err := m.buildMessage(msg)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if m.cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.User),
			mail.WithPassword(m.cfg.Password),
		)
	}

	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("创建SMTP客户端失败: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, email); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}
	return nil
}

// buildMessage 未指定发件人时使用配置的默认地址，纯文本为空时填充占位内容
func (m *SMTPMailer) buildMessage(msg Message) (*mail.Msg, error) {
	from := msg.From
	if from == "" {
		from = m.cfg.From
	}

	email := mail.NewMsg()
	if err := email.From(from); err != nil {
		return nil, fmt.Errorf("发件人地址无效: %w", err)
	}
	if err := email.To(msg.To); err != nil {
		return nil, fmt.Errorf("收件人地址无效: %w", err)
	}
	email.Subject(msg.Subject)

	text := msg.Text
	if text == "" {
		text = emptyTextBody
	}
	email.SetBodyString(mail.TypeTextPlain, text)
	if msg.HTML != "" {
		email.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}
	return email, nil
}
