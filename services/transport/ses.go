package transport

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/opentracing/opentracing-go"

	"github.com/mailgate/mailgate/internal/tracing"
)

type sesSender struct{}

// Deliver submits the raw message through Amazon SES using the domain's
// own credentials. A fresh session is built per call so no tenant state
// leaks between sends.
func (s *sesSender) Deliver(ctx context.Context, cfg *Config, msg *Message, buffer *bytes.Buffer) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "sesSender.Deliver")
	defer span.Finish()
	tracing.SetDefaultTransportSpanTags(ctx, span)
	span.LogKV("ses_region", cfg.SES.Region)

	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(cfg.SES.Region),
		Credentials: credentials.NewStaticCredentials(cfg.SES.AccessKey, cfg.SES.SecretKey, ""),
	})
	if err != nil {
		err = fmt.Errorf("failed to create SES session: %w", err)
		tracing.TraceErr(span, err)
		return "", err
	}

	client := ses.New(sess)
	output, err := client.SendRawEmailWithContext(ctx, &ses.SendRawEmailInput{
		Source:       aws.String(cfg.FromEmail),
		Destinations: []*string{aws.String(msg.To)},
		RawMessage: &ses.RawMessage{
			Data: buffer.Bytes(),
		},
	})
	if err != nil {
		err = fmt.Errorf("failed to send email via SES: %w", err)
		tracing.TraceErr(span, err)
		return "", err
	}

	return aws.StringValue(output.MessageId), nil
}
