package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"github.com/joshua-takyi/eventix/internal/broker"
	"github.com/mailersend/mailersend-go"
)

type Mailer interface {
	SendVerificationCode(ctx context.Context, email, code string, ttl time.Duration) error
	SendTickets(ctx context.Context, msg broker.OrderCompleted) error
}

type MailerSendService struct {
	client    *mailersend.Mailersend
	fromEmail string
	fromName  string
	logger    *slog.Logger
}

func NewMailerSendService(apiKey, fromEmail, fromName string, logger *slog.Logger) *MailerSendService {
	return &MailerSendService{
		client:    mailersend.NewMailersend(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
		logger:    logger,
	}
}

func (m *MailerSendService) send(ctx context.Context, to, subject, html, text string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	message := m.client.Email.NewMessage()
	message.SetFrom(mailersend.From{Name: m.fromName, Email: m.fromEmail})
	message.SetRecipients([]mailersend.Recipient{{Email: to}})
	message.SetSubject(subject)
	message.SetHTML(html)
	message.SetText(text)

	res, err := m.client.Email.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	m.logger.Info("Email sent", "to", to, "subject", subject, "message_id", res.Header.Get("X-Message-Id"))
	return nil
}

func (m *MailerSendService) SendVerificationCode(ctx context.Context, email, code string, ttl time.Duration) error {
	html, text, err := RenderVerificationCode(code, ttl)
	if err != nil {
		return err
	}
	return m.send(ctx, email, "Your Eventix verification code", html, text)
}

func (m *MailerSendService) SendTickets(ctx context.Context, msg broker.OrderCompleted) error {
	html, text, err := RenderTickets(msg)
	if err != nil {
		return err
	}
	return m.send(ctx, msg.Email, "Your tickets for "+msg.EventTitle, html, text)
}

// LogMailer writes messages to the log instead of sending them. Used in
// development when no MailerSend key is configured.
type LogMailer struct {
	Logger *slog.Logger
}

func (l LogMailer) SendVerificationCode(ctx context.Context, email, code string, ttl time.Duration) error {
	l.Logger.Info("Verification code (email disabled)", "email", email, "code", code, "expires_in", ttl)
	return nil
}

func (l LogMailer) SendTickets(ctx context.Context, msg broker.OrderCompleted) error {
	codes := make([]string, 0, len(msg.Tickets))
	for _, t := range msg.Tickets {
		codes = append(codes, t.TicketID)
	}
	l.Logger.Info("Ticket email (email disabled)", "email", msg.Email, "order_id", msg.OrderID, "tickets", strings.Join(codes, ","))
	return nil
}

var codeTmpl = template.Must(template.New("code").Parse(
	`<p>Your verification code is <strong>{{.Code}}</strong>.</p><p>It expires in {{.Minutes}} minutes.</p>`))

var ticketsTmpl = template.Must(template.New("tickets").Parse(`<h2>{{.EventTitle}}</h2>
<p>{{.EventStart.Format "Mon, 02 Jan 2006 15:04 MST"}}{{if .Venue}} at {{.Venue}}{{end}}</p>
<p>Order {{.Reference}}. Show one code per person at the entrance.</p>
<ul>{{range .Tickets}}<li>{{.Name}}: <code>{{.TicketID}}</code></li>{{end}}</ul>`))

func RenderVerificationCode(code string, ttl time.Duration) (string, string, error) {
	minutes := int(ttl.Minutes())
	var buf bytes.Buffer
	if err := codeTmpl.Execute(&buf, struct {
		Code    string
		Minutes int
	}{code, minutes}); err != nil {
		return "", "", fmt.Errorf("render verification email: %w", err)
	}
	text := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, minutes)
	return buf.String(), text, nil
}

func RenderTickets(msg broker.OrderCompleted) (string, string, error) {
	var buf bytes.Buffer
	if err := ticketsTmpl.Execute(&buf, msg); err != nil {
		return "", "", fmt.Errorf("render ticket email: %w", err)
	}
	var text strings.Builder
	fmt.Fprintf(&text, "%s\nOrder %s\n", msg.EventTitle, msg.Reference)
	for _, t := range msg.Tickets {
		fmt.Fprintf(&text, "%s: %s\n", t.Name, t.TicketID)
	}
	return buf.String(), text.String(), nil
}
