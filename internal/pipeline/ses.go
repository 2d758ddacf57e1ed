package pipeline

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

const emailCharset = "UTF-8"

// SESMailer dispatches report emails through SES.
type SESMailer struct {
	client *sesv2.Client
}

var _ Mailer = (*SESMailer)(nil)

// NewSESMailer wraps an SES client.
func NewSESMailer(client *sesv2.Client) *SESMailer {
	return &SESMailer{client: client}
}

// Send delivers one email with both text and HTML bodies.
func (m *SESMailer) Send(ctx context.Context, e Email) error {
	if e.Sender == "" || len(e.Recipients) == 0 {
		return fmt.Errorf("mail sender and recipients must be configured")
	}

	_, err := m.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(e.Sender),
		Destination: &types.Destination{
			ToAddresses: e.Recipients,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(e.Subject),
					Charset: aws.String(emailCharset),
				},
				Body: &types.Body{
					Text: &types.Content{
						Data:    aws.String(e.TextBody),
						Charset: aws.String(emailCharset),
					},
					Html: &types.Content{
						Data:    aws.String(e.HTMLBody),
						Charset: aws.String(emailCharset),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
