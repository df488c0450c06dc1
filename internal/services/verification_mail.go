package services

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"tecnodash/pkg/mailer"
)

var verificationHTML = template.Must(template.New("verification").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8" /><meta name="viewport" content="width=device-width, initial-scale=1" /></head>
<body style="margin:0;background:#f4f7fb;font-family:Inter, system-ui, -apple-system, 'Segoe UI', Roboto, Arial;">
  <table width="100%" cellpadding="0" cellspacing="0" role="presentation">
    <tr><td align="center" style="padding:32px 12px;">
      <table width="600" cellpadding="0" cellspacing="0" role="presentation" style="background:#ffffff;border-radius:12px;">
        <tr><td style="padding:28px 36px 8px 36px;text-align:center;">
          <h1 style="margin:0;font-size:20px;color:#0f172a;">Código de Acesso</h1>
          <p style="margin:8px 0 0 0;color:#475569;">{{if .Name}}Olá, {{.Name}}{{else}}Olá{{end}}, use o código abaixo para continuar.</p>
        </td></tr>
        <tr><td style="padding:20px 36px;text-align:center;">
          <span style="font-family:monospace;letter-spacing:6px;font-size:28px;color:#0f172a;font-weight:700;">{{.Code}}</span>
        </td></tr>
        <tr><td style="padding:8px 48px 24px 48px;text-align:center;color:#64748b;font-size:14px;">
          <p style="margin:0 0 6px 0;">Este código expira em <strong>{{.Minutes}} minutos</strong>.</p>
          <p style="margin:0;">Se você não solicitou este código, ignore este e-mail.</p>
        </td></tr>
        <tr><td style="background:#f8fafc;padding:18px 36px;text-align:center;color:#94a3b8;font-size:13px;">
          <small>Equipe Dashbot</small>
        </td></tr>
      </table>
    </td></tr>
  </table>
</body>
</html>`))

type verificationMailData struct {
	Name    string
	Code    string
	Minutes int
}

// buildVerificationMail 生成验证码邮件
func buildVerificationMail(to, companyName, code string, validFor time.Duration) (mailer.Message, error) {
	minutes := int(validFor.Minutes())
	if minutes < 1 {
		minutes = 1
	}

	var html bytes.Buffer
	if err := verificationHTML.Execute(&html, verificationMailData{Name: companyName, Code: code, Minutes: minutes}); err != nil {
		return mailer.Message{}, fmt.Errorf("渲染邮件模板失败: %w", err)
	}

	return mailer.Message{
		To:      to,
		Subject: "Seu código de acesso - Dashbot",
		Text:    fmt.Sprintf("Seu código de acesso é: %s\nExpira em %d minutos.\nSe você não solicitou, ignore.", code, minutes),
		HTML:    html.String(),
	}, nil
}
