package protocol

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"testing"
	"time"
)

func TestTxSignAndVerify(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	payload, _ := json.Marshal(RequestInitiatePayload{
		ResourceID:     "dataset-42",
		Consumer:       "0xab5801a7d398351b8be11c439e05c5b3259aec9b",
		Provider:       "0x00a329c0648769a73afac7f9381e08fb43dbea72",
		TempPubKey:     "tmp-key",
		TimeoutSeconds: 3600,
	})
	tx := Tx{
		TxID:      "tx-1",
		Nonce:     "n1",
		Timestamp: time.Now().UTC(),
		Actor:     "0xab5801a7d398351b8be11c439e05c5b3259aec9b",
		Op:        OpRequestInitiate,
		Payload:   payload,
	}
	if err := tx.Sign(priv); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := tx.Verify(); err != nil {
		t.Fatalf("verify: %v", err)
	}

	tx.Actor = "0x1111111111111111111111111111111111111111"
	if err := tx.Verify(); err == nil {
		t.Fatalf("expected verify failure after tamper")
	}
}

func TestTxValidateBasicRejectsUnknownOp(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tx := Tx{
		TxID:      "tx-2",
		Nonce:     "n2",
		Timestamp: time.Now().UTC(),
		Actor:     "0xab5801a7d398351b8be11c439e05c5b3259aec9b",
		Op:        Operation("SOMETHING_ELSE"),
		Payload:   json.RawMessage(`{}`),
	}
	if err := tx.Sign(priv); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := tx.Verify(); err == nil {
		t.Fatalf("expected unsupported op error")
	}
}
