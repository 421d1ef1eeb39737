package mail

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/emersion/go-smtp"
)

// DialError reports that no connection could be opened to the server.
type DialError struct {
	Addr string
	Err  error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("dial %s: %v", e.Addr, e.Err)
}

func (e *DialError) Unwrap() error {
	return e.Err
}

// ErrorCode classifies a transport failure for audit lines and span status:
// smtp_<status> for server replies, timeout, dial, or unknown.
func ErrorCode(err error) string {
	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		return "smtp_" + strconv.Itoa(smtpErr.Code)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	var dialErr *DialError
	if errors.As(err, &dialErr) {
		return "dial"
	}
	return "unknown"
}
