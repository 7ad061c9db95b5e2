package event

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository,WatchHub

import (
	"context"

	"github.com/access-broker/access-broker/internal/domain/identity"
	"github.com/access-broker/access-broker/internal/domain/request"
)

// Repository defines the append-only event log. Every lifecycle write
// pairs a request mutation with its event, and implementations must make
// the pair atomic: either both land or neither does. The append assigns
// the event id and the per-request sequence number.
type Repository interface {
	CreateWithEvent(ctx context.Context, req *request.AccessRequest, e *Event) error
	UpdateWithEvent(ctx context.Context, req *request.AccessRequest, e *Event) error
	ListByRequest(ctx context.Context, id identity.RequestID) ([]*Event, error)
}

// WatchHub pushes lifecycle events to connected watchers.
type WatchHub interface {
	BroadcastToAddress(addr identity.Address, msg *WatchMessage)
}
