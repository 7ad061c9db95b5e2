package access

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	appEvent "github.com/access-broker/access-broker/internal/application/event"
	escrowMocks "github.com/access-broker/access-broker/internal/domain/escrow/mocks"
	domainEvent "github.com/access-broker/access-broker/internal/domain/event"
	eventMocks "github.com/access-broker/access-broker/internal/domain/event/mocks"
	"github.com/access-broker/access-broker/internal/domain/identity"
	"github.com/access-broker/access-broker/internal/domain/request"
	requestMocks "github.com/access-broker/access-broker/internal/domain/request/mocks"
	"github.com/access-broker/access-broker/internal/domain/signature"
)

var (
	consumerAddr, _ = identity.ParseAddress("0xab5801a7d398351b8be11c439e05c5b3259aec9b")
	providerAddr, _ = identity.ParseAddress("0x00a329c0648769a73afac7f9381e08fb43dbea72")
	strangerAddr, _ = identity.ParseAddress("0x1111111111111111111111111111111111111111")
)

type testEnv struct {
	svc      *Service
	requests *requestMocks.MockRepository
	escrow   *escrowMocks.MockCollaborator
	events   *eventMocks.MockRepository
	hub      *eventMocks.MockWatchHub
	clock    time.Time
}

func newTestEnv(t *testing.T, ctrl *gomock.Controller) *testEnv {
	requests := requestMocks.NewMockRepository(ctrl)
	collaborator := escrowMocks.NewMockCollaborator(ctrl)
	eventRepo := eventMocks.NewMockRepository(ctrl)
	hub := eventMocks.NewMockWatchHub(ctrl)
	hub.EXPECT().BroadcastToAddress(gomock.Any(), gomock.Any()).AnyTimes()

	logger := zerolog.Nop()
	eventSvc := appEvent.NewService(eventRepo, hub, logger)
	svc := NewService(requests, collaborator, eventSvc, logger)

	env := &testEnv{
		svc:      svc,
		requests: requests,
		escrow:   collaborator,
		events:   eventRepo,
		hub:      hub,
		clock:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	svc.now = func() time.Time { return env.clock }
	return env
}

func (e *testEnv) advance(d time.Duration) {
	e.clock = e.clock.Add(d)
}

func (e *testEnv) expectEvent(t *testing.T, evType domainEvent.Type) {
	t.Helper()
	e.events.EXPECT().
		UpdateWithEvent(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *request.AccessRequest, ev *domainEvent.Event) error {
			assert.Equal(t, evType, ev.Type)
			return nil
		})
}

func committedRequest(env *testEnv, timeout time.Duration) *request.AccessRequest {
	start := env.clock
	expiration := env.clock.Add(2 * time.Hour)
	return &request.AccessRequest{
		RequestID:  identity.DeriveRequestID("res-1", consumerAddr, providerAddr, "tmp-key"),
		Consumer:   consumerAddr,
		Provider:   providerAddr,
		ResourceID: "res-1",
		TempPubKey: "tmp-key",
		Status:     request.StatusCommitted,
		Consent: request.Consent{
			IsAvailable:    true,
			StartDate:      &start,
			ExpirationDate: &expiration,
			Permissions:    "read",
			Timeout:        timeout,
		},
		CreatedAt: env.clock,
		UpdatedAt: env.clock,
	}
}

func TestInitiate(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	env := newTestEnv(t, ctrl)
	ctx := context.Background()

	var created *request.AccessRequest
	env.events.EXPECT().
		CreateWithEvent(ctx, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *request.AccessRequest, ev *domainEvent.Event) error {
			created = req
			assert.Equal(t, domainEvent.TypeConsentRequested, ev.Type)
			return nil
		})

	id, err := env.svc.Initiate(ctx, consumerAddr, "res-1", providerAddr, "tmp-key", time.Hour)
	require.NoError(t, err)

	wantID := identity.DeriveRequestID("res-1", consumerAddr, providerAddr, "tmp-key")
	assert.Equal(t, wantID, id)
	require.NotNil(t, created)
	assert.Equal(t, request.StatusRequested, created.Status)
	assert.Equal(t, consumerAddr, created.Consumer)
	assert.Equal(t, time.Hour, created.Consent.Timeout)
	assert.Empty(t, created.EncryptedToken)
	assert.Nil(t, created.Consent.StartDate)
}

func TestInitiateValidation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	env := newTestEnv(t, ctrl)
	ctx := context.Background()

	_, err := env.svc.Initiate(ctx, consumerAddr, "", providerAddr, "tmp-key", time.Hour)
	assert.Error(t, err)
	_, err = env.svc.Initiate(ctx, consumerAddr, "res-1", "", "tmp-key", time.Hour)
	assert.Error(t, err)
	_, err = env.svc.Initiate(ctx, consumerAddr, "res-1", providerAddr, "", time.Hour)
	assert.Error(t, err)
	_, err = env.svc.Initiate(ctx, consumerAddr, "res-1", providerAddr, "tmp-key", 0)
	assert.Error(t, err)
}

func TestInitiateDuplicateRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	env := newTestEnv(t, ctrl)
	ctx := context.Background()

	env.events.EXPECT().CreateWithEvent(ctx, gomock.Any(), gomock.Any()).Return(request.ErrRequestExists)

	_, err := env.svc.Initiate(ctx, consumerAddr, "res-1", providerAddr, "tmp-key", time.Hour)
	assert.ErrorIs(t, err, request.ErrRequestExists)
}

func TestCommitUnauthorized(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	env := newTestEnv(t, ctrl)
	ctx := context.Background()

	for _, status := range []request.Status{request.StatusRequested, request.StatusCommitted, request.StatusRevoked} {
		req := committedRequest(env, time.Hour)
		req.Status = status
		env.requests.EXPECT().Get(ctx, req.RequestID).Return(req, nil)

		_, err := env.svc.Commit(ctx, strangerAddr, req.RequestID, CommitParams{IsAvailable: true})
		assert.ErrorIs(t, err, request.ErrUnauthorized, "status %s", status)
	}
}

func TestCommitInvalidState(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	env := newTestEnv(t, ctrl)
	ctx := context.Background()

	for _, status := range []request.Status{request.StatusCommitted, request.StatusDelivered, request.StatusVerified, request.StatusRevoked} {
		req := committedRequest(env, time.Hour)
		req.Status = status
		env.requests.EXPECT().Get(ctx, req.RequestID).Return(req, nil)

		_, err := env.svc.Commit(ctx, providerAddr, req.RequestID, CommitParams{IsAvailable: true})
		assert.ErrorIs(t, err, request.ErrInvalidState, "status %s", status)
	}
}

func TestCommitAccept(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	env := newTestEnv(t, ctrl)
	ctx := context.Background()

	req := committedRequest(env, time.Hour)
	req.Status = request.StatusRequested
	req.Consent = request.Consent{Timeout: time.Hour}
	env.requests.EXPECT().Get(ctx, req.RequestID).Return(req, nil)

	var updated *request.AccessRequest
	env.events.EXPECT().
		UpdateWithEvent(ctx, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, r *request.AccessRequest, ev *domainEvent.Event) error {
			updated = r
			assert.Equal(t, domainEvent.TypeCommitted, ev.Type)
			return nil
		})

	expiration := env.clock.Add(2 * time.Hour)
	committed, err := env.svc.Commit(ctx, providerAddr, req.RequestID, CommitParams{
		IsAvailable:      true,
		ExpirationDate:   expiration,
		Discovery:        "disc",
		Permissions:      "read",
		AgreementRef:     "ipfs://ref",
		AgreementDocType: "JSON",
	})
	require.NoError(t, err)
	assert.True(t, committed)

	require.NotNil(t, updated)
	assert.Equal(t, request.StatusCommitted, updated.Status)
	assert.True(t, updated.Consent.IsAvailable)
	require.NotNil(t, updated.Consent.StartDate)
	assert.Equal(t, env.clock, *updated.Consent.StartDate)
	require.NotNil(t, updated.Consent.ExpirationDate)
	assert.Equal(t, expiration, *updated.Consent.ExpirationDate)
	assert.Equal(t, "disc", updated.Consent.Discovery)
	assert.Equal(t, "read", updated.Consent.Permissions)
	assert.Equal(t, request.AccessAgreement{Ref: "ipfs://ref", DocType: "JSON"}, updated.Consent.Agreement)
	assert.Equal(t, time.Hour, updated.Consent.Timeout)
}

func TestCommitRejectPaths(t *testing.T) {
	cases := []struct {
		name   string
		params func(env *testEnv) CommitParams
	}{
		{"unavailable", func(env *testEnv) CommitParams {
			return CommitParams{IsAvailable: false, ExpirationDate: env.clock.Add(time.Hour)}
		}},
		{"expiration in the past", func(env *testEnv) CommitParams {
			return CommitParams{IsAvailable: true, ExpirationDate: env.clock.Add(-time.Hour)}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()
			env := newTestEnv(t, ctrl)
			ctx := context.Background()

			req := committedRequest(env, time.Hour)
			req.Status = request.StatusRequested
			req.Consent = request.Consent{Timeout: time.Hour}
			env.requests.EXPECT().Get(ctx, req.RequestID).Return(req, nil)

			var updated *request.AccessRequest
			env.events.EXPECT().
				UpdateWithEvent(ctx, gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, r *request.AccessRequest, ev *domainEvent.Event) error {
					updated = r
					assert.Equal(t, domainEvent.TypeRejected, ev.Type)
					return nil
				})

			committed, err := env.svc.Commit(ctx, providerAddr, req.RequestID, tc.params(env))
			require.NoError(t, err)
			assert.False(t, committed)

			require.NotNil(t, updated)
			assert.Equal(t, request.StatusRevoked, updated.Status)
			assert.False(t, updated.Consent.IsAvailable)
			assert.Nil(t, updated.Consent.StartDate)
			assert.Nil(t, updated.Consent.ExpirationDate)
			assert.Empty(t, updated.Consent.Permissions)
		})
	}
}

func TestCommitAvailabilityRule(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	env := newTestEnv(t, ctrl)
	ctx := context.Background()

	req := committedRequest(env, time.Hour)
	req.Status = request.StatusRequested
	req.Consent = request.Consent{Timeout: time.Hour}
	env.requests.EXPECT().Get(ctx, req.RequestID).Return(req, nil)
	env.expectEvent(t, domainEvent.TypeCommitted)

	committed, err := env.svc.Commit(ctx, providerAddr, req.RequestID, CommitParams{
		AvailabilityRule: `permissions == "read" && timeoutSeconds >= 600`,
		ExpirationDate:   env.clock.Add(time.Hour),
		Permissions:      "read",
	})
	require.NoError(t, err)
	assert.True(t, committed)
}

func TestDeliver(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	env := newTestEnv(t, ctrl)
	ctx := context.Background()

	req := committedRequest(env, time.Hour)
	env.requests.EXPECT().Get(ctx, req.RequestID).Return(req, nil)

	var updated *request.AccessRequest
	env.events.EXPECT().
		UpdateWithEvent(ctx, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, r *request.AccessRequest, ev *domainEvent.Event) error {
			updated = r
			assert.Equal(t, domainEvent.TypeTokenPublished, ev.Type)
			return nil
		})

	ok, err := env.svc.Deliver(ctx, providerAddr, req.RequestID, []byte("ciphertext"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, request.StatusDelivered, updated.Status)
	assert.Equal(t, []byte("ciphertext"), updated.EncryptedToken)
}

func TestDeliverGuards(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	env := newTestEnv(t, ctrl)
	ctx := context.Background()

	req := committedRequest(env, time.Hour)
	env.requests.EXPECT().Get(ctx, req.RequestID).Return(req, nil)
	_, err := env.svc.Deliver(ctx, consumerAddr, req.RequestID, []byte("x"))
	assert.ErrorIs(t, err, request.ErrUnauthorized)

	req2 := committedRequest(env, time.Hour)
	req2.Status = request.StatusRequested
	env.requests.EXPECT().Get(ctx, req2.RequestID).Return(req2, nil)
	_, err = env.svc.Deliver(ctx, providerAddr, req2.RequestID, []byte("x"))
	assert.ErrorIs(t, err, request.ErrInvalidState)

	_, err = env.svc.Deliver(ctx, providerAddr, req.RequestID, nil)
	assert.Error(t, err)
}

func TestDeliverWriteFailurePropagates(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	env := newTestEnv(t, ctrl)
	ctx := context.Background()

	req := committedRequest(env, time.Hour)
	env.requests.EXPECT().Get(ctx, req.RequestID).Return(req, nil)
	env.events.EXPECT().UpdateWithEvent(ctx, gomock.Any(), gomock.Any()).Return(assert.AnError)

	ok, err := env.svc.Deliver(ctx, providerAddr, req.RequestID, []byte("ciphertext"))
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, ok)
}

func TestCancelBeforeTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	env := newTestEnv(t, ctrl)
	ctx := context.Background()

	req := committedRequest(env, time.Hour)
	env.requests.EXPECT().Get(ctx, req.RequestID).Return(req, nil)

	err := env.svc.Cancel(ctx, consumerAddr, req.RequestID)
	assert.ErrorIs(t, err, request.ErrTimeoutNotElapsed)
	assert.Equal(t, request.StatusCommitted, req.Status)
}

func TestCancelNoPayment(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	env := newTestEnv(t, ctrl)
	ctx := context.Background()

	req := committedRequest(env, time.Hour)
	env.advance(2 * time.Hour)
	env.requests.EXPECT().Get(ctx, req.RequestID).Return(req, nil)
	env.escrow.EXPECT().PaymentReceived(ctx, req.RequestID).Return(false, nil)

	var updated *request.AccessRequest
	env.events.EXPECT().
		UpdateWithEvent(ctx, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, r *request.AccessRequest, ev *domainEvent.Event) error {
			updated = r
			assert.Equal(t, domainEvent.TypeRevoked, ev.Type)
			return nil
		})

	require.NoError(t, env.svc.Cancel(ctx, consumerAddr, req.RequestID))
	assert.Equal(t, request.StatusRevoked, updated.Status)
}

func TestCancelWithRefund(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	env := newTestEnv(t, ctrl)
	ctx := context.Background()

	req := committedRequest(env, time.Hour)
	env.advance(2 * time.Hour)
	env.requests.EXPECT().Get(ctx, req.RequestID).Return(req, nil)
	env.escrow.EXPECT().PaymentReceived(ctx, req.RequestID).Return(true, nil)
	env.escrow.EXPECT().RefundPayment(ctx, req.RequestID).Return(nil)
	env.expectEvent(t, domainEvent.TypeRevoked)

	require.NoError(t, env.svc.Cancel(ctx, consumerAddr, req.RequestID))
}

func TestCancelRefundFailureAborts(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	env := newTestEnv(t, ctrl)
	ctx := context.Background()

	req := committedRequest(env, time.Hour)
	env.advance(2 * time.Hour)
	env.requests.EXPECT().Get(ctx, req.RequestID).Return(req, nil)
	env.escrow.EXPECT().PaymentReceived(ctx, req.RequestID).Return(true, nil)
	env.escrow.EXPECT().RefundPayment(ctx, req.RequestID).Return(assert.AnError)

	// No state write, no event: the whole operation aborts.
	err := env.svc.Cancel(ctx, consumerAddr, req.RequestID)
	assert.ErrorIs(t, err, request.ErrEscrowSettlementFailed)
	assert.Equal(t, request.StatusCommitted, req.Status)
}

func TestCancelGuards(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	env := newTestEnv(t, ctrl)
	ctx := context.Background()

	req := committedRequest(env, time.Hour)
	env.requests.EXPECT().Get(ctx, req.RequestID).Return(req, nil)
	assert.ErrorIs(t, env.svc.Cancel(ctx, providerAddr, req.RequestID), request.ErrUnauthorized)

	req2 := committedRequest(env, time.Hour)
	req2.Status = request.StatusDelivered
	env.requests.EXPECT().Get(ctx, req2.RequestID).Return(req2, nil)
	assert.ErrorIs(t, env.svc.Cancel(ctx, consumerAddr, req2.RequestID), request.ErrInvalidState)
}

func signedDelivery(t *testing.T) (identity.Address, []byte, byte, [32]byte, [32]byte) {
	t.Helper()
	key, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	addr := signature.AddressFromPubKey(key.PubKey())
	digest := sha256.Sum256([]byte("token received"))
	sig := secpecdsa.SignCompact(key, digest[:], false)
	var r, s [32]byte
	copy(r[:], sig[1:33])
	copy(s[:], sig[33:65])
	return addr, digest[:], sig[0], r, s
}

func TestVerifyDeliveryAccept(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	env := newTestEnv(t, ctrl)
	ctx := context.Background()

	signer, digest, v, r, s := signedDelivery(t)
	req := committedRequest(env, time.Hour)
	req.Consumer = signer
	req.Status = request.StatusDelivered
	req.EncryptedToken = []byte("ciphertext")

	env.requests.EXPECT().Get(ctx, req.RequestID).Return(req, nil)
	env.escrow.EXPECT().PaymentReceived(ctx, req.RequestID).Return(true, nil)
	env.escrow.EXPECT().ReleasePayment(ctx, req.RequestID).Return(nil).Times(1)

	var updated *request.AccessRequest
	env.events.EXPECT().
		UpdateWithEvent(ctx, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, r *request.AccessRequest, ev *domainEvent.Event) error {
			updated = r
			assert.Equal(t, domainEvent.TypeDelivered, ev.Type)
			return nil
		})

	ok, err := env.svc.VerifyDelivery(ctx, providerAddr, req.RequestID, signer, digest, v, r, s)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, request.StatusVerified, updated.Status)
}

func TestVerifyDeliveryReject(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	env := newTestEnv(t, ctrl)
	ctx := context.Background()

	// Signature from a key that is not the stored consumer.
	signer, digest, v, r, s := signedDelivery(t)
	req := committedRequest(env, time.Hour)
	req.Status = request.StatusDelivered

	env.requests.EXPECT().Get(ctx, req.RequestID).Return(req, nil)
	env.escrow.EXPECT().PaymentReceived(ctx, req.RequestID).Return(true, nil)
	env.escrow.EXPECT().RefundPayment(ctx, req.RequestID).Return(nil).Times(1)

	var updated *request.AccessRequest
	env.events.EXPECT().
		UpdateWithEvent(ctx, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, r *request.AccessRequest, ev *domainEvent.Event) error {
			updated = r
			assert.Equal(t, domainEvent.TypeRevoked, ev.Type)
			return nil
		})

	ok, err := env.svc.VerifyDelivery(ctx, providerAddr, req.RequestID, signer, digest, v, r, s)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, request.StatusRevoked, updated.Status)
}

func TestVerifyDeliveryPaymentMissing(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	env := newTestEnv(t, ctrl)
	ctx := context.Background()

	signer, digest, v, r, s := signedDelivery(t)
	req := committedRequest(env, time.Hour)
	req.Consumer = signer
	req.Status = request.StatusDelivered

	env.requests.EXPECT().Get(ctx, req.RequestID).Return(req, nil)
	env.escrow.EXPECT().PaymentReceived(ctx, req.RequestID).Return(false, nil)

	_, err := env.svc.VerifyDelivery(ctx, providerAddr, req.RequestID, signer, digest, v, r, s)
	assert.ErrorIs(t, err, request.ErrEscrowVerificationFailed)
	assert.Equal(t, request.StatusDelivered, req.Status)
}

func TestVerifyDeliverySettlementFailureAborts(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	env := newTestEnv(t, ctrl)
	ctx := context.Background()

	signer, digest, v, r, s := signedDelivery(t)
	req := committedRequest(env, time.Hour)
	req.Consumer = signer
	req.Status = request.StatusDelivered

	env.requests.EXPECT().Get(ctx, req.RequestID).Return(req, nil)
	env.escrow.EXPECT().PaymentReceived(ctx, req.RequestID).Return(true, nil)
	env.escrow.EXPECT().ReleasePayment(ctx, req.RequestID).Return(assert.AnError)

	_, err := env.svc.VerifyDelivery(ctx, providerAddr, req.RequestID, signer, digest, v, r, s)
	assert.ErrorIs(t, err, request.ErrEscrowSettlementFailed)
	assert.Equal(t, request.StatusDelivered, req.Status)
}

func TestTempPubKeyGuards(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	env := newTestEnv(t, ctrl)
	ctx := context.Background()

	req := committedRequest(env, time.Hour)
	env.requests.EXPECT().Get(ctx, req.RequestID).Return(req, nil)
	key, err := env.svc.TempPubKey(ctx, providerAddr, req.RequestID)
	require.NoError(t, err)
	assert.Equal(t, "tmp-key", key)

	env.requests.EXPECT().Get(ctx, req.RequestID).Return(req, nil)
	_, err = env.svc.TempPubKey(ctx, consumerAddr, req.RequestID)
	assert.ErrorIs(t, err, request.ErrUnauthorized)

	req2 := committedRequest(env, time.Hour)
	req2.Status = request.StatusDelivered
	env.requests.EXPECT().Get(ctx, req2.RequestID).Return(req2, nil)
	_, err = env.svc.TempPubKey(ctx, providerAddr, req2.RequestID)
	assert.ErrorIs(t, err, request.ErrInvalidState)
}

func TestEncryptedTokenGuards(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	env := newTestEnv(t, ctrl)
	ctx := context.Background()

	req := committedRequest(env, time.Hour)
	req.Status = request.StatusDelivered
	req.EncryptedToken = []byte("ciphertext")

	env.requests.EXPECT().Get(ctx, req.RequestID).Return(req, nil)
	env.escrow.EXPECT().PaymentReceived(ctx, req.RequestID).Return(true, nil)
	token, err := env.svc.EncryptedToken(ctx, consumerAddr, req.RequestID)
	require.NoError(t, err)
	assert.Equal(t, []byte("ciphertext"), token)

	env.requests.EXPECT().Get(ctx, req.RequestID).Return(req, nil)
	_, err = env.svc.EncryptedToken(ctx, providerAddr, req.RequestID)
	assert.ErrorIs(t, err, request.ErrUnauthorized)

	env.requests.EXPECT().Get(ctx, req.RequestID).Return(req, nil)
	env.escrow.EXPECT().PaymentReceived(ctx, req.RequestID).Return(false, nil)
	_, err = env.svc.EncryptedToken(ctx, consumerAddr, req.RequestID)
	assert.ErrorIs(t, err, request.ErrEscrowVerificationFailed)

	req2 := committedRequest(env, time.Hour)
	env.requests.EXPECT().Get(ctx, req2.RequestID).Return(req2, nil)
	_, err = env.svc.EncryptedToken(ctx, consumerAddr, req2.RequestID)
	assert.ErrorIs(t, err, request.ErrInvalidState)
}

func TestStatusIsReadOnly(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	env := newTestEnv(t, ctrl)
	ctx := context.Background()

	req := committedRequest(env, time.Hour)
	env.requests.EXPECT().Get(ctx, req.RequestID).Return(req, nil).Times(3)

	for i := 0; i < 3; i++ {
		status, err := env.svc.Status(ctx, req.RequestID)
		require.NoError(t, err)
		assert.Equal(t, request.StatusCommitted, status)
	}
}
