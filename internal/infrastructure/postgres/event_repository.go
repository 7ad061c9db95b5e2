package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/access-broker/access-broker/internal/domain/event"
	"github.com/access-broker/access-broker/internal/domain/identity"
	"github.com/access-broker/access-broker/internal/domain/request"
)

// EventRepository implements event.Repository. Each write runs the
// request statement and the event insert in one transaction, so a
// failed append rolls the status change back with it. The per-request
// sequence number is assigned by the insert itself.
type EventRepository struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

func (r *EventRepository) CreateWithEvent(ctx context.Context, req *request.AccessRequest, e *event.Event) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := createRequest(ctx, tx, req); err != nil {
		return err
	}
	if err := appendEvent(ctx, tx, e); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *EventRepository) UpdateWithEvent(ctx context.Context, req *request.AccessRequest, e *event.Event) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := updateRequest(ctx, tx, req); err != nil {
		return err
	}
	if err := appendEvent(ctx, tx, e); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *EventRepository) ListByRequest(ctx context.Context, id identity.RequestID) ([]*event.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_id, request_id, event_type, actor, status, payload, sequence, created_at
		FROM lifecycle_events WHERE request_id=$1 ORDER BY sequence ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []*event.Event
	for rows.Next() {
		var e event.Event
		if err := rows.Scan(&e.ID, &e.EventID, &e.RequestID, &e.Type, &e.Actor, &e.Status, &e.Payload, &e.Sequence, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

func appendEvent(ctx context.Context, db dbtx, e *event.Event) error {
	row := db.QueryRow(ctx, `
		INSERT INTO lifecycle_events
		(event_id, request_id, event_type, actor, status, payload, sequence, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,
			(SELECT COALESCE(MAX(sequence),0)+1 FROM lifecycle_events WHERE request_id=$2),
			$7)
		RETURNING id, sequence
	`, e.EventID, e.RequestID, e.Type, e.Actor, e.Status, e.Payload, e.CreatedAt)
	return row.Scan(&e.ID, &e.Sequence)
}
