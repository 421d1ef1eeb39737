package mail

import "context"

//go:generate mockgen -source=transport.go -destination=mocks/transport-mocks.go -package=mocks Transport

// Transport delivers one message through one attempt's connection settings.
type Transport interface {
	Send(ctx context.Context, attempt Attempt, msg *Message) error
}
