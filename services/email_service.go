package services

import (
	"crypto/tls"
	"fmt"
	"html"
	"log"
	"net/smtp"
	"strings"

	"github.com/sahilchouksey/learnhub-api/config"
)

// EmailService handles sending emails via SMTP
type EmailService struct {
	host     string
	port     int
	username string
	password string
	from     string
	appURL   string
}

// NewEmailService creates a new email service instance
func NewEmailService(cfg config.SMTPConfig) *EmailService {
	return &EmailService{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		appURL:   cfg.AppURL,
	}
}

// IsConfigured checks if SMTP is properly configured
func (e *EmailService) IsConfigured() bool {
	return e.username != "" && e.password != ""
}

// EnrollmentEmail carries what the confirmation email shows
type EnrollmentEmail struct {
	To          string
	UserName    string
	CourseID    uint
	CourseTitle string
	AmountText  string // Empty for free courses
	OrderID     string
}

// SendEnrollmentConfirmation tells the student their enrollment is active
func (e *EmailService) SendEnrollmentConfirmation(msg EnrollmentEmail) error {
	if !e.IsConfigured() {
		return fmt.Errorf("SMTP not configured")
	}

	subject := fmt.Sprintf("You're enrolled: %s - LearnHub", msg.CourseTitle)
	return e.sendEmail(msg.To, subject, e.buildEnrollmentEmailBody(msg))
}

// buildEnrollmentEmailBody creates the HTML email body for an enrollment confirmation
func (e *EmailService) buildEnrollmentEmailBody(msg EnrollmentEmail) string {
	userName := msg.UserName
	if userName == "" {
		userName = "Learner"
	}

	courseLink := fmt.Sprintf("%s/courses/%d", e.appURL, msg.CourseID)

	payment := "This course is free, no payment was taken."
	if msg.AmountText != "" {
		payment = fmt.Sprintf("We received your payment of <strong>%s</strong> (order %s).",
			html.EscapeString(msg.AmountText), html.EscapeString(msg.OrderID))
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Enrollment confirmed - LearnHub</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, sans-serif;
            line-height: 1.6;
            color: #333;
            max-width: 600px;
            margin: 0 auto;
            padding: 20px;
            background-color: #f5f5f5;
        }
        .container {
            background-color: #ffffff;
            border-radius: 8px;
            padding: 40px;
        }
        h2 {
            color: #1f3b73;
            margin-top: 0;
        }
        .button {
            display: inline-block;
            background-color: #1f3b73;
            color: #ffffff !important;
            padding: 14px 28px;
            text-decoration: none;
            border-radius: 6px;
            font-weight: 600;
            margin: 20px 0;
        }
        .footer {
            margin-top: 30px;
            padding-top: 20px;
            border-top: 1px solid #eee;
            font-size: 12px;
            color: #666;
            text-align: center;
        }
    </style>
</head>
<body>
    <div class="container">
        <h2>You're enrolled!</h2>

        <p>Hello %s,</p>

        <p>Your enrollment in <strong>%s</strong> is now active. %s</p>

        <p style="text-align: center;">
            <a href="%s" class="button">Start learning</a>
        </p>

        <div class="footer">
            <p><strong>LearnHub</strong></p>
        </div>
    </div>
</body>
</html>`, html.EscapeString(userName), html.EscapeString(msg.CourseTitle), payment, courseLink)
}

// sendEmail sends an email using SMTP with TLS
func (e *EmailService) sendEmail(to, subject, htmlBody string) error {
	headers := make(map[string]string)
	headers["From"] = fmt.Sprintf("LearnHub <%s>", e.from)
	headers["To"] = to
	headers["Subject"] = subject
	headers["MIME-Version"] = "1.0"
	headers["Content-Type"] = "text/html; charset=UTF-8"
	headers["X-Mailer"] = "LearnHub Mailer"

	var message strings.Builder
	for k, v := range headers {
		message.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
	}
	message.WriteString("\r\n")
	message.WriteString(htmlBody)

	addr := fmt.Sprintf("%s:%d", e.host, e.port)
	auth := smtp.PlainAuth("", e.username, e.password, e.host)

	tlsConfig := &tls.Config{
		ServerName: e.host,
	}

	conn, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	if err := conn.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}

	if err := conn.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}

	if err := conn.Mail(e.from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}

	if err := conn.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := conn.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}

	if _, err := w.Write([]byte(message.String())); err != nil {
		return fmt.Errorf("failed to write email body: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	conn.Quit()

	log.Printf("Enrollment email sent to: %s", to)
	return nil
}
