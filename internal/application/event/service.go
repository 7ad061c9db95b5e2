package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	domainEvent "github.com/access-broker/access-broker/internal/domain/event"
	"github.com/access-broker/access-broker/internal/domain/identity"
	"github.com/access-broker/access-broker/internal/domain/request"
)

// Service persists lifecycle writes and fans the events out to
// watchers. Each record call hands the request and its event to the
// repository as one atomic write, so an aborted operation never leaves
// a status change without its event or the reverse. Fan-out is
// fire-and-forget.
type Service struct {
	repo   domainEvent.Repository
	hub    domainEvent.WatchHub
	logger zerolog.Logger
}

// NewService creates an event service.
func NewService(repo domainEvent.Repository, hub domainEvent.WatchHub, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		hub:    hub,
		logger: logger.With().Str("service", "event").Logger(),
	}
}

// RecordCreate persists a new request together with its first lifecycle
// event and notifies both parties.
func (s *Service) RecordCreate(ctx context.Context, req *request.AccessRequest, evType domainEvent.Type, actor identity.Address, payload map[string]interface{}) error {
	return s.record(ctx, s.repo.CreateWithEvent, req, evType, actor, payload)
}

// RecordUpdate persists a request mutation together with its lifecycle
// event and notifies both parties.
func (s *Service) RecordUpdate(ctx context.Context, req *request.AccessRequest, evType domainEvent.Type, actor identity.Address, payload map[string]interface{}) error {
	return s.record(ctx, s.repo.UpdateWithEvent, req, evType, actor, payload)
}

func (s *Service) record(ctx context.Context, write func(context.Context, *request.AccessRequest, *domainEvent.Event) error, req *request.AccessRequest, evType domainEvent.Type, actor identity.Address, payload map[string]interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	e := &domainEvent.Event{
		EventID:   uuid.New(),
		RequestID: req.RequestID,
		Type:      evType,
		Actor:     actor,
		Status:    req.Status,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}
	if err := write(ctx, req, e); err != nil {
		return err
	}

	s.logger.Debug().
		Str("requestId", req.RequestID.String()).
		Str("type", string(evType)).
		Str("status", string(req.Status)).
		Msg("lifecycle event recorded")

	s.notify(req, e)
	return nil
}

// List returns the ordered event log for one request.
func (s *Service) List(ctx context.Context, id identity.RequestID) ([]*domainEvent.Event, error) {
	return s.repo.ListByRequest(ctx, id)
}

func (s *Service) notify(req *request.AccessRequest, e *domainEvent.Event) {
	data, err := json.Marshal(map[string]interface{}{
		"requestId": e.RequestID,
		"type":      e.Type,
		"status":    e.Status,
		"actor":     e.Actor,
		"sequence":  e.Sequence,
		"createdAt": e.CreatedAt.Format(time.RFC3339),
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to marshal watch message")
		return
	}
	msg := domainEvent.NewWatchMessage(string(e.Type), data)
	s.hub.BroadcastToAddress(req.Consumer, msg)
	if req.Provider != req.Consumer {
		s.hub.BroadcastToAddress(req.Provider, msg)
	}
}
