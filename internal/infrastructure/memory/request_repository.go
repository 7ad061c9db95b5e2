// Package memory provides mutex-guarded in-memory repositories. They back
// the memory store mode used for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/access-broker/access-broker/internal/domain/identity"
	"github.com/access-broker/access-broker/internal/domain/request"
)

// RequestRepository is an in-memory request.Repository.
type RequestRepository struct {
	mu       sync.RWMutex
	requests map[identity.RequestID]*request.AccessRequest
}

// NewRequestRepository creates an empty in-memory request store.
func NewRequestRepository() *RequestRepository {
	return &RequestRepository{requests: make(map[identity.RequestID]*request.AccessRequest)}
}

func (r *RequestRepository) Create(_ context.Context, req *request.AccessRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.requests[req.RequestID]; ok {
		return request.ErrRequestExists
	}
	r.requests[req.RequestID] = cloneRequest(req)
	return nil
}

func (r *RequestRepository) Get(_ context.Context, id identity.RequestID) (*request.AccessRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, request.ErrNotFound
	}
	return cloneRequest(req), nil
}

func (r *RequestRepository) Update(_ context.Context, req *request.AccessRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.requests[req.RequestID]; !ok {
		return request.ErrNotFound
	}
	r.requests[req.RequestID] = cloneRequest(req)
	return nil
}

func (r *RequestRepository) ListByParty(_ context.Context, addr identity.Address, status *request.Status, limit, offset int) ([]*request.AccessRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*request.AccessRequest, 0)
	for _, req := range r.requests {
		if !req.IsConsumer(addr) && !req.IsProvider(addr) {
			continue
		}
		if status != nil && req.Status != *status {
			continue
		}
		matched = append(matched, cloneRequest(req))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if offset >= len(matched) {
		return []*request.AccessRequest{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

// cloneRequest copies the record so callers never share state with the
// store.
func cloneRequest(req *request.AccessRequest) *request.AccessRequest {
	out := *req
	if req.Consent.StartDate != nil {
		start := *req.Consent.StartDate
		out.Consent.StartDate = &start
	}
	if req.Consent.ExpirationDate != nil {
		exp := *req.Consent.ExpirationDate
		out.Consent.ExpirationDate = &exp
	}
	if req.EncryptedToken != nil {
		out.EncryptedToken = append([]byte(nil), req.EncryptedToken...)
	}
	return &out
}
