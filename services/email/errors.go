package email

import (
	"fmt"

	"github.com/pkg/errors"
)

// Errors returned before a log entry exists. Sends rejected with these
// leave no trace in the delivery log.
var (
	ErrDomainInactive     = errors.New("domain is not active")
	ErrTemplateNotFound   = errors.New("template not found or not active")
	ErrInvalidRecipient   = errors.New("recipient address is not valid")
	ErrInvalidStatsPeriod = errors.New("unknown stats period")
)

// RateLimitError reports which quota window rejected the send.
type RateLimitError struct {
	Reason  string
	Limit   int
	Current int64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %s (%d of %d)", e.Reason, e.Current, e.Limit)
}
