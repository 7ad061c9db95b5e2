package access

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	appEvent "github.com/access-broker/access-broker/internal/application/event"
	"github.com/access-broker/access-broker/internal/application/policy"
	"github.com/access-broker/access-broker/internal/domain/escrow"
	domainEvent "github.com/access-broker/access-broker/internal/domain/event"
	"github.com/access-broker/access-broker/internal/domain/identity"
	"github.com/access-broker/access-broker/internal/domain/request"
	"github.com/access-broker/access-broker/internal/domain/signature"
	"github.com/access-broker/access-broker/internal/infrastructure/metrics"
)

// CommitParams carries the provider's commit decision inputs. If
// AvailabilityRule is set it is evaluated against the request context and
// overrides IsAvailable.
type CommitParams struct {
	IsAvailable      bool
	AvailabilityRule string
	ExpirationDate   time.Time
	Discovery        string
	Permissions      string
	AgreementRef     string
	AgreementDocType string
}

// Service is the access request lifecycle engine. Every mutating
// operation runs under a per-request-id lock: two mutations of the same
// id never interleave, and a reentrant call during an escrow round-trip
// waits for the first operation to finish. Guard failures abort before
// any write; escrow settlement runs before the local state write so that
// funds and status never diverge. The state write and its lifecycle
// event land together as one repository write.
type Service struct {
	requests request.Repository
	escrow   escrow.Collaborator
	events   *appEvent.Service
	logger   zerolog.Logger

	now   func() time.Time
	locks sync.Map
}

// NewService creates the lifecycle service.
func NewService(requests request.Repository, collaborator escrow.Collaborator, events *appEvent.Service, logger zerolog.Logger) *Service {
	return &Service{
		requests: requests,
		escrow:   collaborator,
		events:   events,
		logger:   logger.With().Str("service", "access").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) lockRequest(id identity.RequestID) func() {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Initiate creates an access request; the caller becomes its consumer.
// The request id is the deterministic hash of the four identity-defining
// inputs, so both parties can recompute it off-band. A duplicate
// four-tuple is rejected rather than silently overwritten.
func (s *Service) Initiate(ctx context.Context, caller identity.Address, resourceID string, provider identity.Address, tempPubKey string, timeout time.Duration) (identity.RequestID, error) {
	if caller.IsZero() || provider.IsZero() {
		return "", errors.New("consumer and provider addresses are required")
	}
	if resourceID == "" {
		return "", errors.New("resource id is required")
	}
	if tempPubKey == "" {
		return "", errors.New("temp public key is required")
	}
	if timeout <= 0 {
		return "", errors.New("timeout must be positive")
	}

	id := identity.DeriveRequestID(resourceID, caller, provider, tempPubKey)
	unlock := s.lockRequest(id)
	defer unlock()

	now := s.now()
	req := &request.AccessRequest{
		RequestID:  id,
		Consumer:   caller,
		Provider:   provider,
		ResourceID: resourceID,
		TempPubKey: tempPubKey,
		Consent:    request.Consent{Timeout: timeout},
		Status:     request.StatusRequested,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.events.RecordCreate(ctx, req, domainEvent.TypeConsentRequested, caller, map[string]interface{}{
		"resourceId":     resourceID,
		"provider":       provider,
		"timeoutSeconds": int64(timeout / time.Second),
	}); err != nil {
		metrics.ObserveOperation("initiate", "error")
		return "", err
	}

	metrics.ObserveOperation("initiate", "ok")
	s.logger.Info().
		Str("requestId", id.String()).
		Str("consumer", caller.String()).
		Str("provider", provider.String()).
		Msg("access request initiated")
	return id, nil
}

// Commit is the provider's single decision entry point. The accept branch
// writes all consent fields plus the agreement atomically and moves the
// request to COMMITTED; the reject branch moves it to REVOKED and leaves
// consent unset. The returned bool is the business outcome, not an error.
func (s *Service) Commit(ctx context.Context, caller identity.Address, id identity.RequestID, params CommitParams) (bool, error) {
	unlock := s.lockRequest(id)
	defer unlock()

	req, err := s.requests.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if !req.IsProvider(caller) {
		metrics.ObserveOperation("commit", "unauthorized")
		return false, request.ErrUnauthorized
	}
	if !req.CanTransitionTo(request.StatusCommitted) {
		metrics.ObserveOperation("commit", "invalid_state")
		return false, request.ErrInvalidState
	}

	available := params.IsAvailable
	if params.AvailabilityRule != "" {
		available, err = policy.EvaluateAvailability(params.AvailabilityRule, s.ruleParams(req, params))
		if err != nil {
			return false, fmt.Errorf("availability rule: %w", err)
		}
	}

	now := s.now()
	if available && now.Before(params.ExpirationDate) {
		start := now
		expiration := params.ExpirationDate.UTC()
		req.Consent.IsAvailable = true
		req.Consent.StartDate = &start
		req.Consent.ExpirationDate = &expiration
		req.Consent.Discovery = params.Discovery
		req.Consent.Permissions = params.Permissions
		req.Consent.Agreement = request.AccessAgreement{
			Ref:     params.AgreementRef,
			DocType: params.AgreementDocType,
		}
		req.Status = request.StatusCommitted
		req.UpdatedAt = now
		if err := s.events.RecordUpdate(ctx, req, domainEvent.TypeCommitted, caller, map[string]interface{}{
			"expirationDate": expiration.Format(time.RFC3339),
			"permissions":    params.Permissions,
			"discovery":      params.Discovery,
			"agreementRef":   params.AgreementRef,
		}); err != nil {
			metrics.ObserveOperation("commit", "error")
			return false, err
		}
		metrics.ObserveOperation("commit", "accepted")
		s.logger.Info().Str("requestId", id.String()).Msg("access request committed")
		return true, nil
	}

	req.Status = request.StatusRevoked
	req.UpdatedAt = now
	if err := s.events.RecordUpdate(ctx, req, domainEvent.TypeRejected, caller, map[string]interface{}{
		"available": available,
	}); err != nil {
		metrics.ObserveOperation("commit", "error")
		return false, err
	}
	metrics.ObserveOperation("commit", "rejected")
	s.logger.Info().Str("requestId", id.String()).Msg("access request rejected")
	return false, nil
}

// Deliver publishes the encrypted access token. Only deliver writes the
// token; it is immutable afterwards.
func (s *Service) Deliver(ctx context.Context, caller identity.Address, id identity.RequestID, encryptedToken []byte) (bool, error) {
	if len(encryptedToken) == 0 {
		return false, errors.New("encrypted token is required")
	}

	unlock := s.lockRequest(id)
	defer unlock()

	req, err := s.requests.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if !req.IsProvider(caller) {
		metrics.ObserveOperation("deliver", "unauthorized")
		return false, request.ErrUnauthorized
	}
	if !req.CanTransitionTo(request.StatusDelivered) {
		metrics.ObserveOperation("deliver", "invalid_state")
		return false, request.ErrInvalidState
	}

	req.EncryptedToken = encryptedToken
	req.Status = request.StatusDelivered
	req.UpdatedAt = s.now()
	if err := s.events.RecordUpdate(ctx, req, domainEvent.TypeTokenPublished, caller, map[string]interface{}{
		"tokenBytes": len(encryptedToken),
	}); err != nil {
		metrics.ObserveOperation("deliver", "error")
		return false, err
	}
	metrics.ObserveOperation("deliver", "ok")
	s.logger.Info().Str("requestId", id.String()).Msg("encrypted token published")
	return true, nil
}

// Cancel revokes a committed request after its timeout has elapsed. If
// escrow already holds payment, the refund must succeed before any local
// change; a failed refund aborts the whole operation.
func (s *Service) Cancel(ctx context.Context, caller identity.Address, id identity.RequestID) error {
	unlock := s.lockRequest(id)
	defer unlock()

	req, err := s.requests.Get(ctx, id)
	if err != nil {
		return err
	}
	if !req.IsConsumer(caller) {
		metrics.ObserveOperation("cancel", "unauthorized")
		return request.ErrUnauthorized
	}
	if req.Status != request.StatusCommitted {
		metrics.ObserveOperation("cancel", "invalid_state")
		return request.ErrInvalidState
	}
	if !s.now().After(req.CancelDeadline()) {
		metrics.ObserveOperation("cancel", "timeout_not_elapsed")
		return request.ErrTimeoutNotElapsed
	}

	received, err := s.escrow.PaymentReceived(ctx, id)
	metrics.ObserveEscrowCall("payment_received", err)
	if err != nil {
		metrics.ObserveOperation("cancel", "error")
		return fmt.Errorf("%w: %v", request.ErrEscrowVerificationFailed, err)
	}
	if received {
		refundErr := s.escrow.RefundPayment(ctx, id)
		metrics.ObserveEscrowCall("refund", refundErr)
		if refundErr != nil {
			metrics.ObserveOperation("cancel", "error")
			return fmt.Errorf("%w: refund: %v", request.ErrEscrowSettlementFailed, refundErr)
		}
	}

	req.Status = request.StatusRevoked
	req.UpdatedAt = s.now()
	if err := s.events.RecordUpdate(ctx, req, domainEvent.TypeRevoked, caller, map[string]interface{}{
		"refunded": received,
	}); err != nil {
		metrics.ObserveOperation("cancel", "error")
		return err
	}
	metrics.ObserveOperation("cancel", "ok")
	s.logger.Info().Str("requestId", id.String()).Bool("refunded", received).Msg("access request cancelled")
	return nil
}

// VerifyDelivery settles a delivered request. A signature recovering to
// the stored consumer releases payment to the provider and moves the
// request to VERIFIED; any other signature refunds the consumer and moves
// it to REVOKED. Settlement runs first: if it fails, status and event are
// suppressed and the request stays DELIVERED.
func (s *Service) VerifyDelivery(ctx context.Context, caller identity.Address, id identity.RequestID, signer identity.Address, digest []byte, v byte, r, sigS [32]byte) (bool, error) {
	unlock := s.lockRequest(id)
	defer unlock()

	req, err := s.requests.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if !req.IsProvider(caller) {
		metrics.ObserveOperation("verify", "unauthorized")
		return false, request.ErrUnauthorized
	}
	if !req.CanTransitionTo(request.StatusVerified) {
		metrics.ObserveOperation("verify", "invalid_state")
		return false, request.ErrInvalidState
	}

	received, err := s.escrow.PaymentReceived(ctx, id)
	metrics.ObserveEscrowCall("payment_received", err)
	if err != nil {
		metrics.ObserveOperation("verify", "error")
		return false, fmt.Errorf("%w: %v", request.ErrEscrowVerificationFailed, err)
	}
	if !received {
		metrics.ObserveOperation("verify", "payment_missing")
		return false, request.ErrEscrowVerificationFailed
	}

	acknowledged := signer == req.Consumer && signature.Verify(signer, digest, v, r, sigS)
	if acknowledged {
		releaseErr := s.escrow.ReleasePayment(ctx, id)
		metrics.ObserveEscrowCall("release", releaseErr)
		if releaseErr != nil {
			metrics.ObserveOperation("verify", "error")
			return false, fmt.Errorf("%w: release: %v", request.ErrEscrowSettlementFailed, releaseErr)
		}
		req.Status = request.StatusVerified
		req.UpdatedAt = s.now()
		if err := s.events.RecordUpdate(ctx, req, domainEvent.TypeDelivered, caller, map[string]interface{}{
			"signer": signer,
		}); err != nil {
			metrics.ObserveOperation("verify", "error")
			return false, err
		}
		metrics.ObserveOperation("verify", "released")
		s.logger.Info().Str("requestId", id.String()).Msg("delivery verified, payment released")
		return true, nil
	}

	refundErr := s.escrow.RefundPayment(ctx, id)
	metrics.ObserveEscrowCall("refund", refundErr)
	if refundErr != nil {
		metrics.ObserveOperation("verify", "error")
		return false, fmt.Errorf("%w: refund: %v", request.ErrEscrowSettlementFailed, refundErr)
	}
	req.Status = request.StatusRevoked
	req.UpdatedAt = s.now()
	if err := s.events.RecordUpdate(ctx, req, domainEvent.TypeRevoked, caller, map[string]interface{}{
		"reason": "signature mismatch",
	}); err != nil {
		metrics.ObserveOperation("verify", "error")
		return false, err
	}
	metrics.ObserveOperation("verify", "refunded")
	s.logger.Info().Str("requestId", id.String()).Msg("delivery rejected, payment refunded")
	return false, nil
}

// TempPubKey returns the consumer's temporary public key to the provider
// of a committed request.
func (s *Service) TempPubKey(ctx context.Context, caller identity.Address, id identity.RequestID) (string, error) {
	req, err := s.requests.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if !req.IsProvider(caller) {
		return "", request.ErrUnauthorized
	}
	if req.Status != request.StatusCommitted {
		return "", request.ErrInvalidState
	}
	return req.TempPubKey, nil
}

// EncryptedToken returns the published token to the consumer of a
// delivered request, once escrow holds payment.
func (s *Service) EncryptedToken(ctx context.Context, caller identity.Address, id identity.RequestID) ([]byte, error) {
	req, err := s.requests.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !req.IsConsumer(caller) {
		return nil, request.ErrUnauthorized
	}
	if req.Status != request.StatusDelivered {
		return nil, request.ErrInvalidState
	}
	received, err := s.escrow.PaymentReceived(ctx, id)
	metrics.ObserveEscrowCall("payment_received", err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", request.ErrEscrowVerificationFailed, err)
	}
	if !received {
		return nil, request.ErrEscrowVerificationFailed
	}
	return req.EncryptedToken, nil
}

// Status returns the request status. No caller constraint.
func (s *Service) Status(ctx context.Context, id identity.RequestID) (request.Status, error) {
	req, err := s.requests.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return req.Status, nil
}

// Get returns the full record to one of its parties.
func (s *Service) Get(ctx context.Context, caller identity.Address, id identity.RequestID) (*request.AccessRequest, error) {
	req, err := s.requests.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !req.IsConsumer(caller) && !req.IsProvider(caller) {
		return nil, request.ErrUnauthorized
	}
	return req, nil
}

// Events returns the ordered event log to one of the request's parties.
func (s *Service) Events(ctx context.Context, caller identity.Address, id identity.RequestID) ([]*domainEvent.Event, error) {
	req, err := s.requests.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !req.IsConsumer(caller) && !req.IsProvider(caller) {
		return nil, request.ErrUnauthorized
	}
	return s.events.List(ctx, id)
}

// List returns requests where the caller is a party.
func (s *Service) List(ctx context.Context, caller identity.Address, status *request.Status, limit, offset int) ([]*request.AccessRequest, error) {
	return s.requests.ListByParty(ctx, caller, status, limit, offset)
}

func (s *Service) ruleParams(req *request.AccessRequest, params CommitParams) map[string]interface{} {
	return map[string]interface{}{
		"resourceId":     req.ResourceID,
		"consumer":       req.Consumer.String(),
		"permissions":    params.Permissions,
		"discovery":      params.Discovery,
		"timeoutSeconds": int64(req.Consent.Timeout / time.Second),
		"ageSeconds":     int64(s.now().Sub(req.CreatedAt) / time.Second),
	}
}
