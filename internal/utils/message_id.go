package utils

import (
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// GenerateMessageID creates the provider-assigned identifier recorded on a
// successful send: process-unique and unguessable, formed from a microsecond
// timestamp and random bytes.
func GenerateMessageID() string {
	id, err := gonanoid.Generate(idAlphabet, 16)
	if err != nil {
		panic(err)
	}
	return fmt.Sprintf("eak_%d.%s", time.Now().UnixMicro(), id)
}

// GenerateRFCMessageID creates an RFC 5322 Message-ID header value for the
// outgoing SMTP message.
func GenerateRFCMessageID(domain string) string {
	id, err := gonanoid.Generate(idAlphabet, 12)
	if err != nil {
		panic(err)
	}
	return fmt.Sprintf("<%d.%s@%s>", time.Now().UnixMicro(), id, domain)
}
