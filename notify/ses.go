package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"
	"go.uber.org/zap"
)

// SESConfig configures the email backend. VerifyEmail makes the backend
// request SES identity verification for the sender at startup, which
// local stacks need before they will accept sends from the address.
type SESConfig struct {
	FromAddress string
	Region      string
	EndpointURL string
	VerifyEmail bool
}

// SESBackend sends alert email through Amazon SES.
type SESBackend struct {
	client *ses.SES
	from   string
	logger *zap.SugaredLogger
}

// NewSESBackend connects to SES and optionally verifies the sender
// identity.
func NewSESBackend(cfg SESConfig, logger *zap.SugaredLogger) (*SESBackend, error) {
	if cfg.FromAddress == "" {
		return nil, fmt.Errorf("email backend requires a from address")
	}

	awsCfg := aws.NewConfig()
	if cfg.Region != "" {
		awsCfg = awsCfg.WithRegion(cfg.Region)
	}
	if cfg.EndpointURL != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.EndpointURL)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("creating AWS session: %w", err)
	}

	backend := &SESBackend{
		client: ses.New(sess),
		from:   cfg.FromAddress,
		logger: logger,
	}

	if cfg.VerifyEmail {
		_, err := backend.client.VerifyEmailIdentity(&ses.VerifyEmailIdentityInput{
			EmailAddress: aws.String(cfg.FromAddress),
		})
		if err != nil {
			return nil, fmt.Errorf("verifying sender identity %s: %w", cfg.FromAddress, err)
		}
		logger.Infof("Requested SES identity verification for %s", cfg.FromAddress)
	}

	return backend, nil
}

// SendAlert sends one plain-text email to the recipient list.
func (b *SESBackend) SendAlert(ctx context.Context, to []string, subject, body string) error {
	addresses := make([]*string, 0, len(to))
	for _, addr := range to {
		addresses = append(addresses, aws.String(addr))
	}

	_, err := b.client.SendEmailWithContext(ctx, &ses.SendEmailInput{
		Source:      aws.String(b.from),
		Destination: &ses.Destination{ToAddresses: addresses},
		Message: &ses.Message{
			Subject: &ses.Content{Data: aws.String(subject)},
			Body: &ses.Body{
				Text: &ses.Content{Data: aws.String(body)},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}
