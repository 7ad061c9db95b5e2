package party

import (
	"context"

	"github.com/google/uuid"

	"github.com/access-broker/access-broker/internal/domain/identity"
)

// Repository defines party persistence.
type Repository interface {
	Create(ctx context.Context, p *Party) error
	GetByPartyID(ctx context.Context, partyID uuid.UUID) (*Party, error)
	GetByAddress(ctx context.Context, addr identity.Address) (*Party, error)
	Update(ctx context.Context, p *Party) error
}
