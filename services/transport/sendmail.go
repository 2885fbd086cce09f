package transport

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/opentracing/opentracing-go"

	"github.com/mailgate/mailgate/internal/tracing"
	"github.com/mailgate/mailgate/internal/utils"
)

const sendmailPath = "/usr/sbin/sendmail"

type sendmailSender struct{}

// Deliver hands the message to the local sendmail binary. Used directly
// for sendmail domains and as the fallback for smtp domains with no
// host configured.
func (s *sendmailSender) Deliver(ctx context.Context, cfg *Config, msg *Message, buffer *bytes.Buffer) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "sendmailSender.Deliver")
	defer span.Finish()
	tracing.SetDefaultTransportSpanTags(ctx, span)

	cmd := exec.CommandContext(ctx, sendmailPath, "-t", "-i", "-f", cfg.FromEmail)
	cmd.Stdin = bytes.NewReader(buffer.Bytes())

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		err = fmt.Errorf("sendmail failed: %w: %s", err, stderr.String())
		tracing.TraceErr(span, err)
		return "", err
	}

	return utils.GenerateMessageID(), nil
}
