package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"

	"alert-core/internal/models"
)

func buildEmailHTML(a renderedAlert, isRecovery bool) string {
	var b strings.Builder
	b.WriteString("<h2>")
	b.WriteString(cardHeaderTitle(isRecovery))
	b.WriteString("</h2><table>")
	fmt.Fprintf(&b, "<tr><td>rule</td><td>%s</td></tr>", a.RuleName)
	fmt.Fprintf(&b, "<tr><td>severity</td><td>%s</td></tr>", a.Severity)
	fmt.Fprintf(&b, "<tr><td>value</td><td>%v</td></tr>", a.Value)
	for _, part := range sortedLabels(a.Labels) {
		fmt.Fprintf(&b, "<tr><td colspan=2>%s</td></tr>", part)
	}
	b.WriteString("</table>")
	return b.String()
}

func buildEmailBatchHTML(alerts []renderedAlert, isRecovery bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h2>%s (%d alerts)</h2><ul>", cardHeaderTitle(isRecovery), len(alerts))

	limit := len(alerts)
	if limit > emailCap {
		limit = emailCap
	}
	for _, a := range alerts[:limit] {
		fmt.Fprintf(&b, "<li>%s [%s] value=%v labels=%s</li>", a.RuleName, a.Severity, a.Value, joinSorted(a.Labels))
	}
	if len(alerts) > emailCap {
		fmt.Fprintf(&b, "<li>...and %d more not shown</li>", len(alerts)-emailCap)
	}
	b.WriteString("</ul>")
	return b.String()
}

// emailSubject matches the original notifier's literal subject format:
// "恢复"/"触发" rather than English FIRING/RESOLVED.
func emailSubject(prefix string, a renderedAlert, isRecovery bool, count int) string {
	status := "触发"
	if isRecovery {
		status = "恢复"
	}
	if count > 1 {
		return fmt.Sprintf("%s %s - %d 条告警 (%s)", prefix, a.RuleName, count, status)
	}
	return fmt.Sprintf("%s %s - %s (%s)", prefix, strings.ToUpper(a.Severity), a.RuleName, status)
}

func (d *Dispatcher) sendEmail(ctx context.Context, ch models.NotificationChannel, alerts []renderedAlert, isRecovery bool) error {
	cfg, err := d.smtp.SMTPConfig(ctx)
	if err != nil {
		return fmt.Errorf("smtp not configured: %w", err)
	}

	to := stringSlice(ch.Config["to"])
	if len(to) == 0 {
		return fmt.Errorf("email channel %s: no recipients configured", ch.Name)
	}
	cc := stringSlice(ch.Config["cc"])
	prefix := configString(ch.Config, "subject_prefix")
	if prefix == "" {
		prefix = "[Alert]"
	}

	var subject, text, html string
	if len(alerts) == 1 {
		subject = emailSubject(prefix, alerts[0], isRecovery, 1)
		text = buildAlertText(alerts[0], isRecovery)
		html = buildEmailHTML(alerts[0], isRecovery)
	} else {
		subject = emailSubject(prefix, alerts[0], isRecovery, len(alerts))
		text = buildBatchAlertText(alerts, isRecovery)
		html = buildEmailBatchHTML(alerts, isRecovery)
	}

	from := cfg.FromAddr
	if from == "" {
		from = "alert@example.com"
	}
	msg, err := buildMIMEMessage(from, to, cc, subject, text, html)
	if err != nil {
		return fmt.Errorf("build mime message: %w", err)
	}

	return sendSMTP(cfg, from, append(append([]string{}, to...), cc...), msg)
}

func stringSlice(v interface{}) []string {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// buildMIMEMessage wraps the plain-text and HTML bodies in a real
// multipart/alternative envelope, with the HTML part last per RFC 2046
// §5.1.4 (the richest alternative goes last so a client that only
// understands the first part still gets something sensible).
func buildMIMEMessage(from string, to, cc []string, subject, text, html string) ([]byte, error) {
	var partsBuf strings.Builder
	writer := multipart.NewWriter(&partsBuf)

	textPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=UTF-8"},
	})
	if err != nil {
		return nil, fmt.Errorf("create text part: %w", err)
	}
	if _, err := textPart.Write([]byte(text)); err != nil {
		return nil, fmt.Errorf("write text part: %w", err)
	}

	htmlPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/html; charset=UTF-8"},
	})
	if err != nil {
		return nil, fmt.Errorf("create html part: %w", err)
	}
	if _, err := htmlPart.Write([]byte(html)); err != nil {
		return nil, fmt.Errorf("write html part: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	if len(cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\r\n", strings.Join(cc, ", "))
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", writer.Boundary())
	b.WriteString(partsBuf.String())
	return []byte(b.String()), nil
}

// sendSMTP opens one connection per send, matching the teacher's
// resource policy of not pooling outbound notification connections.
func sendSMTP(cfg models.SMTPConfig, from string, recipients []string, msg []byte) error {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	if !cfg.UseTLS {
		return smtp.SendMail(addr, auth, from, recipients, msg)
	}

	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: cfg.Host})
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		return err
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return err
		}
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}
