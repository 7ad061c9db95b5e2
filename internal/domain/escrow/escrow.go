package escrow

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_collaborator.go -package=mocks . Collaborator

import (
	"context"

	"github.com/access-broker/access-broker/internal/domain/identity"
)

// Collaborator is the external escrow ledger holding payment for a
// request id. Calls are synchronous and all-or-nothing: any error must
// propagate as an operation-level abort, never be swallowed.
type Collaborator interface {
	// PaymentReceived reports whether escrow holds payment for id.
	PaymentReceived(ctx context.Context, id identity.RequestID) (bool, error)

	// ReleasePayment settles the escrowed payment to the provider.
	ReleasePayment(ctx context.Context, id identity.RequestID) error

	// RefundPayment returns the escrowed payment to the consumer.
	RefundPayment(ctx context.Context, id identity.RequestID) error
}
