package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/access-broker/access-broker/internal/domain/identity"
	"github.com/access-broker/access-broker/internal/domain/request"
)

// RequestRepository implements request.Repository. Writes live in
// EventRepository, which couples them with the event insert; the
// statement helpers below are shared with that path.
type RequestRepository struct {
	pool *pgxpool.Pool
}

func NewRequestRepository(pool *pgxpool.Pool) *RequestRepository {
	return &RequestRepository{pool: pool}
}

const requestColumns = `id, request_id, consumer, provider, resource_id, is_available, start_date, expiration_date, discovery, permissions, agreement_ref, agreement_doc_type, timeout_seconds, temp_pub_key, encrypted_token, status, created_at, updated_at`

func (r *RequestRepository) Get(ctx context.Context, id identity.RequestID) (*request.AccessRequest, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+requestColumns+` FROM access_requests WHERE request_id=$1
	`, id)
	return scanRequest(row)
}

func (r *RequestRepository) ListByParty(ctx context.Context, addr identity.Address, status *request.Status, limit, offset int) ([]*request.AccessRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM access_requests WHERE (consumer=$1 OR provider=$1)`
	args := []interface{}{addr}
	idx := 2
	if status != nil {
		query += " AND status=$" + itoa(idx)
		args = append(args, *status)
		idx++
	}
	query += " ORDER BY created_at DESC LIMIT $" + itoa(idx) + " OFFSET $" + itoa(idx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var requests []*request.AccessRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

func createRequest(ctx context.Context, db dbtx, req *request.AccessRequest) error {
	_, err := db.Exec(ctx, `
		INSERT INTO access_requests
		(request_id, consumer, provider, resource_id, is_available, start_date, expiration_date, discovery, permissions, agreement_ref, agreement_doc_type, timeout_seconds, temp_pub_key, encrypted_token, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, req.RequestID, req.Consumer, req.Provider, req.ResourceID,
		req.Consent.IsAvailable, req.Consent.StartDate, req.Consent.ExpirationDate,
		req.Consent.Discovery, req.Consent.Permissions,
		req.Consent.Agreement.Ref, req.Consent.Agreement.DocType,
		int64(req.Consent.Timeout/time.Second),
		req.TempPubKey, req.EncryptedToken, req.Status, req.CreatedAt, req.UpdatedAt)
	if isUniqueViolation(err) {
		return request.ErrRequestExists
	}
	return err
}

func updateRequest(ctx context.Context, db dbtx, req *request.AccessRequest) error {
	tag, err := db.Exec(ctx, `
		UPDATE access_requests
		SET is_available=$1, start_date=$2, expiration_date=$3, discovery=$4, permissions=$5, agreement_ref=$6, agreement_doc_type=$7, encrypted_token=$8, status=$9, updated_at=$10
		WHERE request_id=$11
	`, req.Consent.IsAvailable, req.Consent.StartDate, req.Consent.ExpirationDate,
		req.Consent.Discovery, req.Consent.Permissions,
		req.Consent.Agreement.Ref, req.Consent.Agreement.DocType,
		req.EncryptedToken, req.Status, req.UpdatedAt, req.RequestID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return request.ErrNotFound
	}
	return nil
}

func scanRequest(row pgx.Row) (*request.AccessRequest, error) {
	var req request.AccessRequest
	var timeoutSeconds int64
	if err := row.Scan(&req.ID, &req.RequestID, &req.Consumer, &req.Provider, &req.ResourceID,
		&req.Consent.IsAvailable, &req.Consent.StartDate, &req.Consent.ExpirationDate,
		&req.Consent.Discovery, &req.Consent.Permissions,
		&req.Consent.Agreement.Ref, &req.Consent.Agreement.DocType,
		&timeoutSeconds, &req.TempPubKey, &req.EncryptedToken, &req.Status,
		&req.CreatedAt, &req.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, request.ErrNotFound
		}
		return nil, err
	}
	req.Consent.Timeout = time.Duration(timeoutSeconds) * time.Second
	return &req, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func itoa(i int) string {
	if i < 10 {
		return string(rune('0' + i))
	}
	return string(rune('0'+i/10)) + string(rune('0'+i%10))
}
