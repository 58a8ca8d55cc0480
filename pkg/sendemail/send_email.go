package sendemail

import (
	"context"
	"fmt"
	"html"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"userdash/pkg/users"
)

type EmailService interface {
	SendEmail(ctx context.Context, subject, toEmail, plainTextContent, htmlContent string) error
}

// sender is the part of *sendgrid.Client the service needs.
type sender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

type emailService struct {
	client      sender
	senderEmail string
	senderName  string
}

func NewEmailService(apiKey, senderEmail, senderName string) EmailService {
	return &emailService{
		client:      sendgrid.NewSendClient(apiKey),
		senderEmail: senderEmail,
		senderName:  senderName,
	}
}

func (e *emailService) SendEmail(ctx context.Context, subject, toEmail, plainTextContent, htmlContent string) error {
	from := mail.NewEmail(e.senderName, e.senderEmail)
	to := mail.NewEmail("", toEmail)
	message := mail.NewSingleEmail(from, subject, to, plainTextContent, htmlContent)
	response, err := e.client.SendWithContext(ctx, message)
	if err != nil {
		return err
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("failed to send email: status %d", response.StatusCode)
	}
	return nil
}

// WelcomeNotifier greets newly created users by e-mail.
type WelcomeNotifier struct {
	email EmailService
}

func NewWelcomeNotifier(email EmailService) *WelcomeNotifier {
	return &WelcomeNotifier{email: email}
}

// SendWelcome implements users.Notifier.
func (n *WelcomeNotifier) SendWelcome(ctx context.Context, u users.User) error {
	subject := "Welcome aboard"
	plain := fmt.Sprintf("Hi %s,\n\nAn account with the %s role was created for %s.\n", u.Name, u.Role, u.Email)
	body := fmt.Sprintf("<p>Hi %s,</p><p>An account with the <strong>%s</strong> role was created for %s.</p>",
		html.EscapeString(u.Name), html.EscapeString(string(u.Role)), html.EscapeString(u.Email))
	return n.email.SendEmail(ctx, subject, u.Email, plain, body)
}
