package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/access-broker/access-broker/internal/domain/identity"
	"github.com/access-broker/access-broker/internal/domain/party"
)

// PartyRepository is an in-memory party.Repository.
type PartyRepository struct {
	mu        sync.RWMutex
	byID      map[uuid.UUID]*party.Party
	byAddress map[identity.Address]uuid.UUID
}

// NewPartyRepository creates an empty in-memory party store.
func NewPartyRepository() *PartyRepository {
	return &PartyRepository{
		byID:      make(map[uuid.UUID]*party.Party),
		byAddress: make(map[identity.Address]uuid.UUID),
	}
}

func (r *PartyRepository) Create(_ context.Context, p *party.Party) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byAddress[p.Address]; ok {
		return party.ErrAddressTaken
	}
	stored := *p
	r.byID[p.PartyID] = &stored
	r.byAddress[p.Address] = p.PartyID
	return nil
}

func (r *PartyRepository) GetByPartyID(_ context.Context, partyID uuid.UUID) (*party.Party, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[partyID]
	if !ok {
		return nil, party.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *PartyRepository) GetByAddress(_ context.Context, addr identity.Address) (*party.Party, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byAddress[addr]
	if !ok {
		return nil, party.ErrNotFound
	}
	copied := *r.byID[id]
	return &copied, nil
}

func (r *PartyRepository) Update(_ context.Context, p *party.Party) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[p.PartyID]; !ok {
		return party.ErrNotFound
	}
	stored := *p
	r.byID[p.PartyID] = &stored
	return nil
}
