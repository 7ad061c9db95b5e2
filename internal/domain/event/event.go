package event

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/access-broker/access-broker/internal/domain/identity"
	"github.com/access-broker/access-broker/internal/domain/request"
)

// Type names one lifecycle event. The names are part of the external
// contract: watchers match on them.
type Type string

const (
	TypeConsentRequested Type = "AccessConsentRequested"
	TypeCommitted        Type = "AccessRequestCommitted"
	TypeRejected         Type = "AccessRequestRejected"
	TypeRevoked          Type = "AccessRequestRevoked"
	TypeTokenPublished   Type = "EncryptedTokenPublished"
	TypeDelivered        Type = "AccessRequestDelivered"
)

var (
	ErrClientNotFound = errors.New("watch client not found")
	ErrChannelFull    = errors.New("watch message channel full")
)

// Event is one append-only lifecycle log entry. Emission happens inside
// the same atomic operation as the state write; an aborted operation
// never leaves an event behind.
type Event struct {
	ID        int64              `json:"id"`
	EventID   uuid.UUID          `json:"eventId"`
	RequestID identity.RequestID `json:"requestId"`
	Type      Type               `json:"type"`
	Actor     identity.Address   `json:"actor"`
	Status    request.Status     `json:"status"`
	Payload   json.RawMessage    `json:"payload,omitempty"`
	Sequence  int64              `json:"sequence"`
	CreatedAt time.Time          `json:"createdAt"`
}

// WatchClient is one active watcher connection, keyed by the address it
// authenticated as.
type WatchClient struct {
	ClientID    string
	Address     identity.Address
	ConnectedAt time.Time
	MessageChan chan *WatchMessage
}

// NewWatchClient creates a watch client with a buffered channel.
func NewWatchClient(clientID string, addr identity.Address) *WatchClient {
	return &WatchClient{
		ClientID:    clientID,
		Address:     addr,
		ConnectedAt: time.Now().UTC(),
		MessageChan: make(chan *WatchMessage, 100),
	}
}

// Close closes the client's message channel.
func (c *WatchClient) Close() {
	close(c.MessageChan)
}

// WatchMessage is one message pushed to watchers.
type WatchMessage struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewWatchMessage creates a watch message.
func NewWatchMessage(event string, data json.RawMessage) *WatchMessage {
	return &WatchMessage{
		ID:        uuid.New().String(),
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}
