package request

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"

	"github.com/access-broker/access-broker/internal/domain/identity"
)

// Repository defines read access to stored requests. Writes go through
// the event repository, which couples every request mutation with its
// lifecycle event. Get returns ErrNotFound when no record exists.
type Repository interface {
	Get(ctx context.Context, id identity.RequestID) (*AccessRequest, error)
	ListByParty(ctx context.Context, addr identity.Address, status *Status, limit, offset int) ([]*AccessRequest, error)
}
