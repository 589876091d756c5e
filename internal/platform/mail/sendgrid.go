// Package mail sends transactional email through SendGrid.
package mail

import (
	"context"
	"errors"
	"fmt"
	"html"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/agatticelli/flower-shop/internal/platform/apierr"
	"github.com/agatticelli/flower-shop/internal/platform/observability"
)

// Message is a single plain-text email
type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

// Sender delivers messages
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SendGridClient implements Sender
type SendGridClient struct {
	apiKey   string
	from     string
	fromName string
	logger   *observability.Logger
}

// NewSendGridClient creates a SendGrid sender
func NewSendGridClient(apiKey, from, fromName string, logger *observability.Logger) (*SendGridClient, error) {
	if apiKey == "" {
		return nil, errors.New("sendgrid api key is empty")
	}
	if from == "" {
		return nil, errors.New("from address is empty")
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &SendGridClient{apiKey: apiKey, from: from, fromName: fromName, logger: logger}, nil
}

// Send sends msg. A 4xx/5xx answer is returned as an apierr.StatusError so
// callers can retry server failures.
func (c *SendGridClient) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("to address is empty")
	}

	message := sgmail.NewSingleEmail(
		sgmail.NewEmail(c.fromName, c.from),
		msg.Subject,
		sgmail.NewEmail(msg.ToName, msg.To),
		msg.Body,
		fmt.Sprintf("<pre>%s</pre>", html.EscapeString(msg.Body)),
	)

	client := sendgrid.NewSendClient(c.apiKey)
	response, err := client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send error: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid send failed: %w", &apierr.StatusError{Status: response.StatusCode, Message: response.Body})
	}

	c.logger.LogInfo(ctx, "mail sent", "status", response.StatusCode, "subject", msg.Subject)
	return nil
}
