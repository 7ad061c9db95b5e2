package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/access-broker/access-broker/internal/domain/identity"
	"github.com/access-broker/access-broker/internal/domain/party"
)

// PartyRepository implements party.Repository.
type PartyRepository struct {
	pool *pgxpool.Pool
}

func NewPartyRepository(pool *pgxpool.Pool) *PartyRepository {
	return &PartyRepository{pool: pool}
}

func (r *PartyRepository) Create(ctx context.Context, p *party.Party) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO parties
		(party_id, address, name, token_hash, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, p.PartyID, p.Address, p.Name, p.TokenHash, p.Status, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return party.ErrAddressTaken
	}
	return err
}

func (r *PartyRepository) GetByPartyID(ctx context.Context, partyID uuid.UUID) (*party.Party, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, party_id, address, name, token_hash, status, created_at, updated_at
		FROM parties WHERE party_id=$1
	`, partyID)
	return scanParty(row)
}

func (r *PartyRepository) GetByAddress(ctx context.Context, addr identity.Address) (*party.Party, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, party_id, address, name, token_hash, status, created_at, updated_at
		FROM parties WHERE address=$1
	`, addr)
	return scanParty(row)
}

func (r *PartyRepository) Update(ctx context.Context, p *party.Party) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE parties
		SET name=$1, token_hash=$2, status=$3, updated_at=$4
		WHERE party_id=$5
	`, p.Name, p.TokenHash, p.Status, p.UpdatedAt, p.PartyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return party.ErrNotFound
	}
	return nil
}

func scanParty(row pgx.Row) (*party.Party, error) {
	var p party.Party
	if err := row.Scan(&p.ID, &p.PartyID, &p.Address, &p.Name, &p.TokenHash, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, party.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}
