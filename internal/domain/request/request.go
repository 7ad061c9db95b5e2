package request

import (
	"errors"
	"time"

	"github.com/access-broker/access-broker/internal/domain/identity"
)

// Status represents access request status.
type Status string

const (
	StatusRequested Status = "REQUESTED"
	StatusCommitted Status = "COMMITTED"
	StatusDelivered Status = "DELIVERED"
	StatusVerified  Status = "VERIFIED"
	StatusRevoked   Status = "REVOKED"
)

var (
	ErrNotFound      = errors.New("access request not found")
	ErrRequestExists = errors.New("access request already exists")
	ErrUnauthorized  = errors.New("caller not authorized for this request")
	ErrInvalidState  = errors.New("operation not permitted in current status")

	ErrTimeoutNotElapsed        = errors.New("cancellation timeout not elapsed")
	ErrEscrowVerificationFailed = errors.New("escrow payment verification failed")
	ErrEscrowSettlementFailed   = errors.New("escrow settlement failed")
)

// AccessAgreement describes the off-band access agreement document.
// Immutable once written by commit.
type AccessAgreement struct {
	Ref     string `json:"ref"`
	DocType string `json:"docType"`
}

// Consent holds the agreed terms of access. Timeout is fixed at request
// creation; every other field is written together, atomically, by commit.
type Consent struct {
	IsAvailable    bool            `json:"isAvailable"`
	StartDate      *time.Time      `json:"startDate,omitempty"`
	ExpirationDate *time.Time      `json:"expirationDate,omitempty"`
	Discovery      string          `json:"discovery,omitempty"`
	Permissions    string          `json:"permissions,omitempty"`
	Agreement      AccessAgreement `json:"agreement"`
	Timeout        time.Duration   `json:"timeout"`
}

// AccessRequest is the aggregate root: one record per request id. Records
// are never deleted; terminal states are retained for audit reads.
type AccessRequest struct {
	ID             int64              `json:"id"`
	RequestID      identity.RequestID `json:"requestId"`
	Consumer       identity.Address   `json:"consumer"`
	Provider       identity.Address   `json:"provider"`
	ResourceID     string             `json:"resourceId"`
	Consent        Consent            `json:"consent"`
	TempPubKey     string             `json:"tempPubKey"`
	EncryptedToken []byte             `json:"encryptedToken,omitempty"`
	Status         Status             `json:"status"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// CanTransitionTo validates a status transition. VERIFIED and REVOKED are
// terminal.
func (r *AccessRequest) CanTransitionTo(target Status) bool {
	transitions := map[Status][]Status{
		StatusRequested: {StatusCommitted, StatusRevoked},
		StatusCommitted: {StatusDelivered, StatusRevoked},
		StatusDelivered: {StatusVerified, StatusRevoked},
		StatusVerified:  {},
		StatusRevoked:   {},
	}
	for _, s := range transitions[r.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are permitted.
func (s Status) IsTerminal() bool {
	return s == StatusVerified || s == StatusRevoked
}

// IsConsumer reports whether addr is the consumer of this request.
func (r *AccessRequest) IsConsumer(addr identity.Address) bool {
	return !addr.IsZero() && r.Consumer == addr
}

// IsProvider reports whether addr is the provider of this request.
func (r *AccessRequest) IsProvider(addr identity.Address) bool {
	return !addr.IsZero() && r.Provider == addr
}

// CancelDeadline returns the instant after which the consumer may cancel
// a committed request.
func (r *AccessRequest) CancelDeadline() time.Time {
	return r.CreatedAt.Add(r.Consent.Timeout)
}
