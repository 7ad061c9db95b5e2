package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/access-broker/access-broker/internal/domain/event"
	"github.com/access-broker/access-broker/internal/domain/identity"
	"github.com/access-broker/access-broker/internal/domain/request"
)

// EventRepository is an in-memory append-only event log. It writes
// through the request repository first; the append itself cannot fail,
// so a rejected request write leaves the log untouched.
type EventRepository struct {
	mu       sync.RWMutex
	requests *RequestRepository
	events   map[identity.RequestID][]*event.Event
}

// NewEventRepository creates an empty in-memory event log writing
// requests through requests.
func NewEventRepository(requests *RequestRepository) *EventRepository {
	return &EventRepository{
		requests: requests,
		events:   make(map[identity.RequestID][]*event.Event),
	}
}

func (r *EventRepository) CreateWithEvent(ctx context.Context, req *request.AccessRequest, e *event.Event) error {
	if err := r.requests.Create(ctx, req); err != nil {
		return err
	}
	r.append(e)
	return nil
}

func (r *EventRepository) UpdateWithEvent(ctx context.Context, req *request.AccessRequest, e *event.Event) error {
	if err := r.requests.Update(ctx, req); err != nil {
		return err
	}
	r.append(e)
	return nil
}

func (r *EventRepository) ListByRequest(_ context.Context, id identity.RequestID) ([]*event.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored := r.events[id]
	out := make([]*event.Event, len(stored))
	for i, e := range stored {
		copied := *e
		out[i] = &copied
	}
	return out, nil
}

func (r *EventRepository) append(e *event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.EventID == uuid.Nil {
		e.EventID = uuid.New()
	}
	e.Sequence = int64(len(r.events[e.RequestID]) + 1)
	stored := *e
	r.events[e.RequestID] = append(r.events[e.RequestID], &stored)
}
