// Package protocol defines the signed command envelope replicated
// between broker nodes.
package protocol

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Operation defines supported replicated lifecycle writes.
type Operation string

const (
	OpRequestInitiate Operation = "REQUEST_INITIATE"
	OpRequestCommit   Operation = "REQUEST_COMMIT"
	OpTokenDeliver    Operation = "TOKEN_DELIVER"
	OpRequestCancel   Operation = "REQUEST_CANCEL"
	OpDeliveryVerify  Operation = "DELIVERY_VERIFY"
	OpPaymentRecord   Operation = "PAYMENT_RECORD"
)

var validOps = map[Operation]struct{}{
	OpRequestInitiate: {},
	OpRequestCommit:   {},
	OpTokenDeliver:    {},
	OpRequestCancel:   {},
	OpDeliveryVerify:  {},
	OpPaymentRecord:   {},
}

// Tx is the signed, replicated command envelope. Actor is the party
// address the operation runs as; the node gateway is responsible for
// resolving it before signing. Timestamp is the cluster clock: guard
// checks inside the state machine use it, never local time.
type Tx struct {
	TxID      string          `json:"tx_id"`
	RequestID string          `json:"request_id,omitempty"`
	Nonce     string          `json:"nonce"`
	Timestamp time.Time       `json:"timestamp"`
	Actor     string          `json:"actor"`
	Op        Operation       `json:"op"`
	Payload   json.RawMessage `json:"payload"`
	PublicKey string          `json:"public_key"` // base64 raw ed25519 public key
	Signature string          `json:"signature"`  // base64 raw signature
}

type txSignable struct {
	TxID      string          `json:"tx_id"`
	RequestID string          `json:"request_id,omitempty"`
	Nonce     string          `json:"nonce"`
	Timestamp time.Time       `json:"timestamp"`
	Actor     string          `json:"actor"`
	Op        Operation       `json:"op"`
	Payload   json.RawMessage `json:"payload"`
	PublicKey string          `json:"public_key"`
}

// CanonicalBytes returns the deterministic signing payload.
func (t Tx) CanonicalBytes() ([]byte, error) {
	signable := txSignable{
		TxID:      strings.TrimSpace(t.TxID),
		RequestID: strings.TrimSpace(t.RequestID),
		Nonce:     strings.TrimSpace(t.Nonce),
		Timestamp: t.Timestamp.UTC(),
		Actor:     strings.TrimSpace(t.Actor),
		Op:        t.Op,
		Payload:   t.Payload,
		PublicKey: strings.TrimSpace(t.PublicKey),
	}
	return json.Marshal(signable)
}

// ValidateBasic checks required immutable tx fields.
func (t Tx) ValidateBasic() error {
	if strings.TrimSpace(t.TxID) == "" {
		return errors.New("tx_id is required")
	}
	if strings.TrimSpace(t.Nonce) == "" {
		return errors.New("nonce is required")
	}
	if strings.TrimSpace(t.Actor) == "" {
		return errors.New("actor is required")
	}
	if t.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	if _, ok := validOps[t.Op]; !ok {
		return fmt.Errorf("unsupported op: %s", t.Op)
	}
	if len(t.Payload) == 0 {
		return errors.New("payload is required")
	}
	if strings.TrimSpace(t.PublicKey) == "" {
		return errors.New("public_key is required")
	}
	if strings.TrimSpace(t.Signature) == "" {
		return errors.New("signature is required")
	}
	return nil
}

// Sign sets tx public key/signature for the given private key.
func (t *Tx) Sign(privateKey ed25519.PrivateKey) error {
	if len(privateKey) != ed25519.PrivateKeySize {
		return errors.New("invalid private key")
	}
	t.PublicKey = base64.StdEncoding.EncodeToString(privateKey.Public().(ed25519.PublicKey))
	payload, err := t.CanonicalBytes()
	if err != nil {
		return err
	}
	sig := ed25519.Sign(privateKey, payload)
	t.Signature = base64.StdEncoding.EncodeToString(sig)
	return nil
}

// Verify validates tx signature using included public key.
func (t Tx) Verify() error {
	if err := t.ValidateBasic(); err != nil {
		return err
	}
	pubRaw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(t.PublicKey))
	if err != nil {
		return fmt.Errorf("invalid public_key: %w", err)
	}
	if len(pubRaw) != ed25519.PublicKeySize {
		return errors.New("invalid public_key size")
	}
	sigRaw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(t.Signature))
	if err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}
	if len(sigRaw) != ed25519.SignatureSize {
		return errors.New("invalid signature size")
	}
	payload, err := t.CanonicalBytes()
	if err != nil {
		return err
	}
	if !ed25519.Verify(ed25519.PublicKey(pubRaw), payload, sigRaw) {
		return errors.New("signature verification failed")
	}
	return nil
}

// DecodePayload decodes operation payloads.
func DecodePayload[T any](raw json.RawMessage) (T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

type RequestInitiatePayload struct {
	ResourceID     string `json:"resource_id"`
	Consumer       string `json:"consumer"`
	Provider       string `json:"provider"`
	TempPubKey     string `json:"temp_pub_key"`
	TimeoutSeconds int64  `json:"timeout_seconds"`
}

type RequestCommitPayload struct {
	RequestID        string     `json:"request_id"`
	IsAvailable      bool       `json:"is_available"`
	ExpirationDate   *time.Time `json:"expiration_date,omitempty"`
	Discovery        string     `json:"discovery,omitempty"`
	Permissions      string     `json:"permissions,omitempty"`
	AgreementRef     string     `json:"agreement_ref,omitempty"`
	AgreementDocType string     `json:"agreement_doc_type,omitempty"`
}

type TokenDeliverPayload struct {
	RequestID      string `json:"request_id"`
	EncryptedToken string `json:"encrypted_token"` // base64
}

type RequestCancelPayload struct {
	RequestID string `json:"request_id"`
}

type DeliveryVerifyPayload struct {
	RequestID string `json:"request_id"`
	Signer    string `json:"signer"`
	Digest    string `json:"digest"` // hex, 32 bytes
	V         byte   `json:"v"`
	R         string `json:"r"` // hex, 32 bytes
	S         string `json:"s"` // hex, 32 bytes
}

type PaymentRecordPayload struct {
	RequestID string `json:"request_id"`
	Amount    string `json:"amount,omitempty"`
}
