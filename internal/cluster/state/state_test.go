package state

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/access-broker/access-broker/internal/cluster/protocol"
	"github.com/access-broker/access-broker/internal/domain/identity"
	"github.com/access-broker/access-broker/internal/domain/request"
	"github.com/access-broker/access-broker/internal/domain/signature"
)

const providerAddr = "0x00a329c0648769a73afac7f9381e08fb43dbea72"

func TestMachineLifecycleEndToEnd(t *testing.T) {
	m := NewMachine()
	_, priv := mustKey(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	consumerKey, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate consumer key: %v", err)
	}
	consumerAddr := signature.AddressFromPubKey(consumerKey.PubKey()).String()
	consumer, _ := identity.ParseAddress(consumerAddr)
	provider, _ := identity.ParseAddress(providerAddr)
	id := identity.DeriveRequestID("dataset-42", consumer, provider, "tmp-key").String()
	exp := base.Add(2 * time.Hour)

	mustApply(t, m, signedTx(t, priv, "tx-001", consumerAddr, base,
		protocol.OpRequestInitiate, protocol.RequestInitiatePayload{
			ResourceID:     "dataset-42",
			Consumer:       consumerAddr,
			Provider:       providerAddr,
			TempPubKey:     "tmp-key",
			TimeoutSeconds: 3600,
		}))
	mustApply(t, m, signedTx(t, priv, "tx-002", providerAddr, base.Add(time.Second),
		protocol.OpRequestCommit, protocol.RequestCommitPayload{
			RequestID:      id,
			IsAvailable:    true,
			ExpirationDate: &exp,
			Permissions:    "read",
			AgreementRef:   "ipfs://agreement",
		}))
	mustApply(t, m, signedTx(t, priv, "tx-003", providerAddr, base.Add(2*time.Second),
		protocol.OpTokenDeliver, protocol.TokenDeliverPayload{
			RequestID:      id,
			EncryptedToken: "Y2lwaGVydGV4dA==",
		}))
	mustApply(t, m, signedTx(t, priv, "tx-004", consumerAddr, base.Add(3*time.Second),
		protocol.OpPaymentRecord, protocol.PaymentRecordPayload{RequestID: id}))

	digest := sha256.Sum256([]byte("token received"))
	sig := secpecdsa.SignCompact(consumerKey, digest[:], false)
	mustApply(t, m, signedTx(t, priv, "tx-005", providerAddr, base.Add(4*time.Second),
		protocol.OpDeliveryVerify, protocol.DeliveryVerifyPayload{
			RequestID: id,
			Signer:    consumerAddr,
			Digest:    hex.EncodeToString(digest[:]),
			V:         sig[0],
			R:         hex.EncodeToString(sig[1:33]),
			S:         hex.EncodeToString(sig[33:65]),
		}))

	rec, ok := m.GetRequest(id)
	if !ok {
		t.Fatalf("request not found")
	}
	if rec.Status != request.StatusVerified {
		t.Fatalf("expected verified request, got %s", rec.Status)
	}
	if !rec.PaymentReleased || rec.PaymentRefunded {
		t.Fatalf("expected released payment, got %+v", rec)
	}

	events := m.ListEvents(id, 100, 0)
	if len(events) != 4 {
		t.Fatalf("expected 4 lifecycle events, got %d", len(events))
	}
	for i, e := range events {
		if e.Sequence != int64(i+1) {
			t.Fatalf("unexpected sequence at %d: %d", i, e.Sequence)
		}
	}
}

func TestMachineReplayIsIdempotent(t *testing.T) {
	m := NewMachine()
	_, priv := mustKey(t)
	base := time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC)

	tx := signedTx(t, priv, "tx-r1", "0xab5801a7d398351b8be11c439e05c5b3259aec9b", base,
		protocol.OpRequestInitiate, protocol.RequestInitiatePayload{
			ResourceID:     "dataset-7",
			Consumer:       "0xab5801a7d398351b8be11c439e05c5b3259aec9b",
			Provider:       providerAddr,
			TempPubKey:     "tmp",
			TimeoutSeconds: 600,
		})
	mustApply(t, m, tx)
	mustApply(t, m, tx)

	stats := m.StateStats()
	if stats["requests"].(int) != 1 {
		t.Fatalf("expected one request after replay, got %v", stats["requests"])
	}
}

func TestMachineGuards(t *testing.T) {
	m := NewMachine()
	_, priv := mustKey(t)
	base := time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC)

	consumerAddr := "0xab5801a7d398351b8be11c439e05c5b3259aec9b"
	consumer, _ := identity.ParseAddress(consumerAddr)
	provider, _ := identity.ParseAddress(providerAddr)
	id := identity.DeriveRequestID("dataset-9", consumer, provider, "tmp").String()
	exp := base.Add(2 * time.Hour)

	mustApply(t, m, signedTx(t, priv, "tx-g1", consumerAddr, base,
		protocol.OpRequestInitiate, protocol.RequestInitiatePayload{
			ResourceID:     "dataset-9",
			Consumer:       consumerAddr,
			Provider:       providerAddr,
			TempPubKey:     "tmp",
			TimeoutSeconds: 3600,
		}))

	// Only the provider may commit.
	if err := m.ApplyTx(signedTx(t, priv, "tx-g2", consumerAddr, base.Add(time.Second),
		protocol.OpRequestCommit, protocol.RequestCommitPayload{RequestID: id, IsAvailable: true, ExpirationDate: &exp})); err == nil {
		t.Fatalf("expected commit by consumer to fail")
	}

	mustApply(t, m, signedTx(t, priv, "tx-g3", providerAddr, base.Add(2*time.Second),
		protocol.OpRequestCommit, protocol.RequestCommitPayload{RequestID: id, IsAvailable: true, ExpirationDate: &exp}))

	// Cancel before the timeout elapses is rejected.
	if err := m.ApplyTx(signedTx(t, priv, "tx-g4", consumerAddr, base.Add(3*time.Second),
		protocol.OpRequestCancel, protocol.RequestCancelPayload{RequestID: id})); err == nil {
		t.Fatalf("expected early cancel to fail")
	}

	// Cancel after the timeout revokes and refunds the recorded payment.
	mustApply(t, m, signedTx(t, priv, "tx-g5", consumerAddr, base.Add(4*time.Second),
		protocol.OpPaymentRecord, protocol.PaymentRecordPayload{RequestID: id}))
	mustApply(t, m, signedTx(t, priv, "tx-g6", consumerAddr, base.Add(2*time.Hour),
		protocol.OpRequestCancel, protocol.RequestCancelPayload{RequestID: id}))

	rec, _ := m.GetRequest(id)
	if rec.Status != request.StatusRevoked {
		t.Fatalf("expected revoked request, got %s", rec.Status)
	}
	if !rec.PaymentRefunded {
		t.Fatalf("expected refunded payment")
	}

	// Revoked is terminal.
	if err := m.ApplyTx(signedTx(t, priv, "tx-g7", providerAddr, base.Add(3*time.Hour),
		protocol.OpTokenDeliver, protocol.TokenDeliverPayload{RequestID: id, EncryptedToken: "Y2lwaGVydGV4dA=="})); err == nil {
		t.Fatalf("expected deliver on revoked request to fail")
	}
	if err := m.ApplyTx(signedTx(t, priv, "tx-g8", consumerAddr, base.Add(3*time.Hour),
		protocol.OpPaymentRecord, protocol.PaymentRecordPayload{RequestID: id})); err == nil {
		t.Fatalf("expected payment on revoked request to fail")
	}
}

func TestMachineSnapshotRoundTrip(t *testing.T) {
	m := NewMachine()
	_, priv := mustKey(t)
	base := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)

	mustApply(t, m, signedTx(t, priv, "tx-s1", "0xab5801a7d398351b8be11c439e05c5b3259aec9b", base,
		protocol.OpRequestInitiate, protocol.RequestInitiatePayload{
			ResourceID:     "dataset-11",
			Consumer:       "0xab5801a7d398351b8be11c439e05c5b3259aec9b",
			Provider:       providerAddr,
			TempPubKey:     "tmp",
			TimeoutSeconds: 600,
		}))

	data, err := m.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	restored := NewMachine()
	if err := restored.Unmarshal(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	consumer, _ := identity.ParseAddress("0xab5801a7d398351b8be11c439e05c5b3259aec9b")
	provider, _ := identity.ParseAddress(providerAddr)
	id := identity.DeriveRequestID("dataset-11", consumer, provider, "tmp").String()
	rec, ok := restored.GetRequest(id)
	if !ok {
		t.Fatalf("request missing after restore")
	}
	if rec.Status != request.StatusRequested {
		t.Fatalf("unexpected status after restore: %s", rec.Status)
	}
}

func mustKey(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return pub, priv
}

func mustApply(t *testing.T, m *Machine, tx protocol.Tx) {
	t.Helper()
	if err := m.ApplyTx(tx); err != nil {
		t.Fatalf("apply tx %s: %v", tx.TxID, err)
	}
}

func signedTx(t *testing.T, priv ed25519.PrivateKey, txID, actor string, at time.Time, op protocol.Operation, payload interface{}) protocol.Tx {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	tx := protocol.Tx{
		TxID:      txID,
		Nonce:     txID,
		Timestamp: at,
		Actor:     actor,
		Op:        op,
		Payload:   raw,
	}
	if err := tx.Sign(priv); err != nil {
		t.Fatalf("sign tx: %v", err)
	}
	return tx
}
