// Package state holds the deterministic lifecycle state machine
// replicated through Raft. Every guard decision uses the transaction
// timestamp, never local time, so all nodes reach the same state.
package state

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/access-broker/access-broker/internal/cluster/protocol"
	domainEvent "github.com/access-broker/access-broker/internal/domain/event"
	"github.com/access-broker/access-broker/internal/domain/identity"
	"github.com/access-broker/access-broker/internal/domain/request"
	"github.com/access-broker/access-broker/internal/domain/signature"
)

// Record is one replicated access request, including its escrow ledger
// entry. Parties and statuses mirror the single-node domain model.
type Record struct {
	RequestID  string         `json:"requestId"`
	Consumer   string         `json:"consumer"`
	Provider   string         `json:"provider"`
	ResourceID string         `json:"resourceId"`
	TempPubKey string         `json:"tempPubKey"`
	Status     request.Status `json:"status"`

	IsAvailable      bool       `json:"isAvailable"`
	StartDate        *time.Time `json:"startDate,omitempty"`
	ExpirationDate   *time.Time `json:"expirationDate,omitempty"`
	Discovery        string     `json:"discovery,omitempty"`
	Permissions      string     `json:"permissions,omitempty"`
	AgreementRef     string     `json:"agreementRef,omitempty"`
	AgreementDocType string     `json:"agreementDocType,omitempty"`
	TimeoutSeconds   int64      `json:"timeoutSeconds"`

	EncryptedToken string `json:"encryptedToken,omitempty"` // base64

	PaymentReceived bool `json:"paymentReceived"`
	PaymentReleased bool `json:"paymentReleased"`
	PaymentRefunded bool `json:"paymentRefunded"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CancelDeadline mirrors the single-node rule.
func (r Record) CancelDeadline() time.Time {
	return r.CreatedAt.Add(time.Duration(r.TimeoutSeconds) * time.Second)
}

// Event is one replicated lifecycle log entry.
type Event struct {
	TxID       string           `json:"txId"`
	RequestID  string           `json:"requestId"`
	Type       domainEvent.Type `json:"type"`
	Actor      string           `json:"actor"`
	Status     request.Status   `json:"status"`
	Sequence   int64            `json:"sequence"`
	CommitTime time.Time        `json:"commitTime"`
}

type snapshot struct {
	Requests        map[string]Record  `json:"requests"`
	EventsByRequest map[string][]Event `json:"eventsByRequest"`
	AppliedTx       map[string]bool    `json:"appliedTx"`
}

// Machine is the deterministic access request state machine.
type Machine struct {
	mu sync.RWMutex
	s  snapshot
}

func NewMachine() *Machine {
	m := &Machine{}
	m.s = emptySnapshot()
	return m
}

func emptySnapshot() snapshot {
	return snapshot{
		Requests:        map[string]Record{},
		EventsByRequest: map[string][]Event{},
		AppliedTx:       map[string]bool{},
	}
}

// Marshal serializes current machine snapshot.
func (m *Machine) Marshal() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return json.Marshal(m.copySnapshotLocked())
}

// Unmarshal restores machine state from snapshot payload.
func (m *Machine) Unmarshal(data []byte) error {
	if len(data) == 0 {
		return errors.New("empty snapshot")
	}
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s.Requests == nil {
		s.Requests = map[string]Record{}
	}
	if s.EventsByRequest == nil {
		s.EventsByRequest = map[string][]Event{}
	}
	if s.AppliedTx == nil {
		s.AppliedTx = map[string]bool{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = s
	return nil
}

func (m *Machine) copySnapshotLocked() snapshot {
	out := emptySnapshot()
	for k, v := range m.s.Requests {
		out.Requests[k] = v
	}
	for k, v := range m.s.EventsByRequest {
		out.EventsByRequest[k] = append([]Event(nil), v...)
	}
	for k, v := range m.s.AppliedTx {
		out.AppliedTx[k] = v
	}
	return out
}

// ApplyTx validates and applies one signed transaction. Replays of an
// already applied tx_id are accepted and ignored.
func (m *Machine) ApplyTx(tx protocol.Tx) error {
	if err := tx.Verify(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s.AppliedTx[tx.TxID] {
		return nil
	}
	at := tx.Timestamp.UTC()

	var err error
	switch tx.Op {
	case protocol.OpRequestInitiate:
		err = m.applyInitiateLocked(tx, at)
	case protocol.OpRequestCommit:
		err = m.applyCommitLocked(tx, at)
	case protocol.OpTokenDeliver:
		err = m.applyDeliverLocked(tx, at)
	case protocol.OpRequestCancel:
		err = m.applyCancelLocked(tx, at)
	case protocol.OpDeliveryVerify:
		err = m.applyVerifyLocked(tx, at)
	case protocol.OpPaymentRecord:
		err = m.applyPaymentRecordLocked(tx, at)
	default:
		err = fmt.Errorf("unsupported op: %s", tx.Op)
	}
	if err != nil {
		return err
	}
	m.s.AppliedTx[tx.TxID] = true
	return nil
}

func (m *Machine) applyInitiateLocked(tx protocol.Tx, at time.Time) error {
	payload, err := protocol.DecodePayload[protocol.RequestInitiatePayload](tx.Payload)
	if err != nil {
		return err
	}
	consumer, err := identity.ParseAddress(payload.Consumer)
	if err != nil {
		return fmt.Errorf("invalid consumer: %w", err)
	}
	provider, err := identity.ParseAddress(payload.Provider)
	if err != nil {
		return fmt.Errorf("invalid provider: %w", err)
	}
	if !strings.EqualFold(tx.Actor, payload.Consumer) {
		return errors.New("actor must be the consumer")
	}
	if strings.TrimSpace(payload.ResourceID) == "" {
		return errors.New("resource_id is required")
	}
	if strings.TrimSpace(payload.TempPubKey) == "" {
		return errors.New("temp_pub_key is required")
	}
	if payload.TimeoutSeconds <= 0 {
		return errors.New("timeout_seconds must be positive")
	}

	id := identity.DeriveRequestID(payload.ResourceID, consumer, provider, payload.TempPubKey).String()
	if tx.RequestID != "" && tx.RequestID != id {
		return errors.New("request_id does not match derived id")
	}
	if _, ok := m.s.Requests[id]; ok {
		return fmt.Errorf("request already exists: %s", id)
	}

	m.s.Requests[id] = Record{
		RequestID:      id,
		Consumer:       consumer.String(),
		Provider:       provider.String(),
		ResourceID:     payload.ResourceID,
		TempPubKey:     payload.TempPubKey,
		Status:         request.StatusRequested,
		TimeoutSeconds: payload.TimeoutSeconds,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
	m.appendEventLocked(tx, id, domainEvent.TypeConsentRequested, request.StatusRequested, at)
	return nil
}

func (m *Machine) applyCommitLocked(tx protocol.Tx, at time.Time) error {
	payload, err := protocol.DecodePayload[protocol.RequestCommitPayload](tx.Payload)
	if err != nil {
		return err
	}
	rec, err := m.requireRequestLocked(payload.RequestID)
	if err != nil {
		return err
	}
	if !strings.EqualFold(tx.Actor, rec.Consumer) && !strings.EqualFold(tx.Actor, rec.Provider) {
		return errors.New("actor is not a party to this request")
	}
	if !strings.EqualFold(tx.Actor, rec.Provider) {
		return errors.New("only the provider may commit")
	}
	if rec.Status != request.StatusRequested {
		return fmt.Errorf("commit not permitted in status %s", rec.Status)
	}

	accepted := payload.IsAvailable && payload.ExpirationDate != nil && at.Before(*payload.ExpirationDate)
	if accepted {
		start := at
		exp := payload.ExpirationDate.UTC()
		rec.IsAvailable = true
		rec.StartDate = &start
		rec.ExpirationDate = &exp
		rec.Discovery = payload.Discovery
		rec.Permissions = payload.Permissions
		rec.AgreementRef = payload.AgreementRef
		rec.AgreementDocType = payload.AgreementDocType
		rec.Status = request.StatusCommitted
	} else {
		rec.Status = request.StatusRevoked
	}
	rec.UpdatedAt = at
	m.s.Requests[rec.RequestID] = rec

	evType := domainEvent.TypeCommitted
	if !accepted {
		evType = domainEvent.TypeRejected
	}
	m.appendEventLocked(tx, rec.RequestID, evType, rec.Status, at)
	return nil
}

func (m *Machine) applyDeliverLocked(tx protocol.Tx, at time.Time) error {
	payload, err := protocol.DecodePayload[protocol.TokenDeliverPayload](tx.Payload)
	if err != nil {
		return err
	}
	rec, err := m.requireRequestLocked(payload.RequestID)
	if err != nil {
		return err
	}
	if !strings.EqualFold(tx.Actor, rec.Provider) {
		return errors.New("only the provider may deliver")
	}
	if rec.Status != request.StatusCommitted {
		return fmt.Errorf("deliver not permitted in status %s", rec.Status)
	}
	if payload.EncryptedToken == "" {
		return errors.New("encrypted_token is required")
	}
	if _, err := base64.StdEncoding.DecodeString(payload.EncryptedToken); err != nil {
		return errors.New("encrypted_token must be base64")
	}

	rec.EncryptedToken = payload.EncryptedToken
	rec.Status = request.StatusDelivered
	rec.UpdatedAt = at
	m.s.Requests[rec.RequestID] = rec
	m.appendEventLocked(tx, rec.RequestID, domainEvent.TypeTokenPublished, rec.Status, at)
	return nil
}

func (m *Machine) applyCancelLocked(tx protocol.Tx, at time.Time) error {
	payload, err := protocol.DecodePayload[protocol.RequestCancelPayload](tx.Payload)
	if err != nil {
		return err
	}
	rec, err := m.requireRequestLocked(payload.RequestID)
	if err != nil {
		return err
	}
	if !strings.EqualFold(tx.Actor, rec.Consumer) {
		return errors.New("only the consumer may cancel")
	}
	if rec.Status != request.StatusCommitted {
		return fmt.Errorf("cancel not permitted in status %s", rec.Status)
	}
	if !at.After(rec.CancelDeadline()) {
		return errors.New("cancellation timeout not elapsed")
	}

	if rec.PaymentReceived && !rec.PaymentReleased && !rec.PaymentRefunded {
		rec.PaymentRefunded = true
	}
	rec.Status = request.StatusRevoked
	rec.UpdatedAt = at
	m.s.Requests[rec.RequestID] = rec
	m.appendEventLocked(tx, rec.RequestID, domainEvent.TypeRevoked, rec.Status, at)
	return nil
}

func (m *Machine) applyVerifyLocked(tx protocol.Tx, at time.Time) error {
	payload, err := protocol.DecodePayload[protocol.DeliveryVerifyPayload](tx.Payload)
	if err != nil {
		return err
	}
	rec, err := m.requireRequestLocked(payload.RequestID)
	if err != nil {
		return err
	}
	if !strings.EqualFold(tx.Actor, rec.Provider) {
		return errors.New("only the provider may verify delivery")
	}
	if rec.Status != request.StatusDelivered {
		return fmt.Errorf("verify not permitted in status %s", rec.Status)
	}
	if !rec.PaymentReceived || rec.PaymentReleased || rec.PaymentRefunded {
		return errors.New("escrow does not hold payment")
	}

	signer, digest, v, sigR, sigS, err := decodeProof(payload)
	if err != nil {
		return err
	}
	acknowledged := strings.EqualFold(signer.String(), rec.Consumer) && signature.Verify(signer, digest, v, sigR, sigS)
	if acknowledged {
		rec.PaymentReleased = true
		rec.Status = request.StatusVerified
	} else {
		rec.PaymentRefunded = true
		rec.Status = request.StatusRevoked
	}
	rec.UpdatedAt = at
	m.s.Requests[rec.RequestID] = rec

	evType := domainEvent.TypeDelivered
	if !acknowledged {
		evType = domainEvent.TypeRevoked
	}
	m.appendEventLocked(tx, rec.RequestID, evType, rec.Status, at)
	return nil
}

func (m *Machine) applyPaymentRecordLocked(tx protocol.Tx, at time.Time) error {
	payload, err := protocol.DecodePayload[protocol.PaymentRecordPayload](tx.Payload)
	if err != nil {
		return err
	}
	rec, err := m.requireRequestLocked(payload.RequestID)
	if err != nil {
		return err
	}
	if rec.Status.IsTerminal() {
		return fmt.Errorf("payment not accepted in status %s", rec.Status)
	}
	if rec.PaymentReceived {
		return errors.New("payment already recorded")
	}

	rec.PaymentReceived = true
	rec.UpdatedAt = at
	m.s.Requests[rec.RequestID] = rec
	return nil
}

func (m *Machine) requireRequestLocked(id string) (Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Record{}, errors.New("request_id is required")
	}
	rec, ok := m.s.Requests[id]
	if !ok {
		return Record{}, fmt.Errorf("request not found: %s", id)
	}
	return rec, nil
}

func (m *Machine) appendEventLocked(tx protocol.Tx, requestID string, evType domainEvent.Type, status request.Status, at time.Time) {
	seq := int64(len(m.s.EventsByRequest[requestID]) + 1)
	m.s.EventsByRequest[requestID] = append(m.s.EventsByRequest[requestID], Event{
		TxID:       tx.TxID,
		RequestID:  requestID,
		Type:       evType,
		Actor:      strings.TrimSpace(tx.Actor),
		Status:     status,
		Sequence:   seq,
		CommitTime: at,
	})
}

func decodeProof(payload protocol.DeliveryVerifyPayload) (identity.Address, []byte, byte, [32]byte, [32]byte, error) {
	var sigR, sigS [32]byte
	signer, err := identity.ParseAddress(payload.Signer)
	if err != nil {
		return "", nil, 0, sigR, sigS, errors.New("invalid signer address")
	}
	digest, err := hex.DecodeString(strings.TrimPrefix(payload.Digest, "0x"))
	if err != nil || len(digest) != 32 {
		return "", nil, 0, sigR, sigS, errors.New("digest must be 32 hex bytes")
	}
	rBytes, err := hex.DecodeString(strings.TrimPrefix(payload.R, "0x"))
	if err != nil || len(rBytes) != 32 {
		return "", nil, 0, sigR, sigS, errors.New("r must be 32 hex bytes")
	}
	sBytes, err := hex.DecodeString(strings.TrimPrefix(payload.S, "0x"))
	if err != nil || len(sBytes) != 32 {
		return "", nil, 0, sigR, sigS, errors.New("s must be 32 hex bytes")
	}
	copy(sigR[:], rBytes)
	copy(sigS[:], sBytes)
	return signer, digest, payload.V, sigR, sigS, nil
}

// GetRequest returns one replicated request.
func (m *Machine) GetRequest(id string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.s.Requests[strings.TrimSpace(id)]
	return rec, ok
}

// ListByParty returns requests where addr is a party, newest first.
func (m *Machine) ListByParty(addr string, limit, offset int) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]Record, 0)
	for _, rec := range m.s.Requests {
		if strings.EqualFold(rec.Consumer, addr) || strings.EqualFold(rec.Provider, addr) {
			matched = append(matched, rec)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].RequestID < matched[j].RequestID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if offset >= len(matched) {
		return []Record{}
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched
}

// ListEvents returns the ordered event log for one request.
func (m *Machine) ListEvents(id string, limit, offset int) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := m.s.EventsByRequest[strings.TrimSpace(id)]
	if offset >= len(events) {
		return []Event{}
	}
	out := append([]Event(nil), events[offset:]...)
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// StateStats summarizes replicated state for operators.
func (m *Machine) StateStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byStatus := map[request.Status]int{}
	funded := 0
	for _, rec := range m.s.Requests {
		byStatus[rec.Status]++
		if rec.PaymentReceived && !rec.PaymentReleased && !rec.PaymentRefunded {
			funded++
		}
	}
	events := 0
	for _, evs := range m.s.EventsByRequest {
		events += len(evs)
	}
	return map[string]interface{}{
		"requests":       len(m.s.Requests),
		"requestsFunded": funded,
		"requestsBy":     byStatus,
		"events":         events,
		"appliedTx":      len(m.s.AppliedTx),
	}
}
