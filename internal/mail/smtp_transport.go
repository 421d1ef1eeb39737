package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/awnumar/memguard"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/proxy"
)

const defaultDialTimeout = 10 * time.Second

var tracer trace.Tracer = otel.Tracer("folio/internal/mail")

// SMTPTransport delivers over SMTP with PLAIN authentication. The password is
// sealed in a memguard enclave and only opened for the duration of an attempt.
type SMTPTransport struct {
	user        string
	pass        *memguard.Enclave
	tlsInsecure bool
	dialer      proxy.ContextDialer
}

type TransportOption func(*SMTPTransport) error

// WithTLSInsecure skips certificate verification.
func WithTLSInsecure(insecure bool) TransportOption {
	return func(t *SMTPTransport) error {
		t.tlsInsecure = insecure
		return nil
	}
}

// WithSOCKS5Proxy routes every connection through the SOCKS5 proxy at addr.
// An empty addr dials directly.
func WithSOCKS5Proxy(addr string) TransportOption {
	return func(t *SMTPTransport) error {
		if addr == "" {
			return nil
		}
		d, err := proxy.SOCKS5("tcp", addr, nil, &net.Dialer{Timeout: defaultDialTimeout})
		if err != nil {
			return fmt.Errorf("socks5 proxy %s: %w", addr, err)
		}
		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return fmt.Errorf("socks5 proxy %s: dialer does not support contexts", addr)
		}
		t.dialer = cd
		return nil
	}
}

func NewSMTPTransport(user, pass string, opts ...TransportOption) (*SMTPTransport, error) {
	if user == "" || pass == "" {
		return nil, errors.New("smtp user and password are required")
	}
	t := &SMTPTransport{
		user:   user,
		pass:   memguard.NewEnclave([]byte(pass)),
		dialer: &net.Dialer{Timeout: defaultDialTimeout},
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Send performs one complete SMTP transaction. The context deadline is applied
// to the connection so a stalled server cannot hold the request open.
func (t *SMTPTransport) Send(ctx context.Context, attempt Attempt, msg *Message) (err error) {
	ctx, span := tracer.Start(ctx, "mail.attempt")
	span.SetAttributes(
		attribute.String("smtp.host", attempt.Host),
		attribute.Int("smtp.port", attempt.Port),
		attribute.String("smtp.security", string(attempt.Security)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, ErrorCode(err))
		}
		span.End()
	}()

	raw, err := msg.Bytes()
	if err != nil {
		return err
	}

	conn, err := t.dialer.DialContext(ctx, "tcp", attempt.Addr())
	if err != nil {
		return &DialError{Addr: attempt.Addr(), Err: err}
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	client, err := t.newClient(conn, attempt)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer client.Close()

	if err := t.authenticate(client); err != nil {
		return err
	}
	if err := client.SendMail(msg.From, []string{msg.To}, bytes.NewReader(raw)); err != nil {
		return err
	}
	return client.Quit()
}

func (t *SMTPTransport) newClient(conn net.Conn, attempt Attempt) (*smtp.Client, error) {
	tlsConfig := &tls.Config{
		ServerName:         attempt.Host,
		InsecureSkipVerify: t.tlsInsecure, //nolint:gosec // operator opt-in via SMTP_TLS_INSECURE
		MinVersion:         tls.VersionTLS12,
	}
	switch attempt.Security {
	case SecurityTLS:
		return smtp.NewClient(tls.Client(conn, tlsConfig)), nil
	case SecurityStartTLS:
		return smtp.NewClientStartTLS(conn, tlsConfig)
	default:
		return smtp.NewClient(conn), nil
	}
}

func (t *SMTPTransport) authenticate(client *smtp.Client) error {
	buf, err := t.pass.Open()
	if err != nil {
		return fmt.Errorf("open smtp credentials: %w", err)
	}
	defer buf.Destroy()
	return client.Auth(sasl.NewPlainClient("", t.user, buf.String()))
}
