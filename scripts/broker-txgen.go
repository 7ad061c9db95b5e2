// Command broker-txgen emits a signed cluster tx as JSON on stdout, for
// smoke-testing broker nodes with curl.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/access-broker/access-broker/internal/cluster/protocol"
	"github.com/access-broker/access-broker/internal/infrastructure/keystore"
)

type options struct {
	op         string
	requestID  string
	actor      string
	txID       string
	nonce      string
	timestamp  string
	privateKey string
	useEnvKey  bool

	resourceID     string
	consumer       string
	provider       string
	tempPubKey     string
	timeoutSeconds int64

	isAvailable      bool
	expirationDate   string
	discovery        string
	permissions      string
	agreementRef     string
	agreementDocType string

	encryptedToken string

	signer string
	digest string
	sigV   int
	sigR   string
	sigS   string

	amount string
}

func main() {
	var opt options

	flag.StringVar(&opt.op, "op", "", "operation: request-initiate|request-commit|token-deliver|request-cancel|delivery-verify|payment-record")
	flag.StringVar(&opt.requestID, "request-id", "", "request identifier; derived by the node for request-initiate")
	flag.StringVar(&opt.actor, "actor", "", "actor party address")
	flag.StringVar(&opt.txID, "tx-id", "", "tx identifier; auto-generated when empty")
	flag.StringVar(&opt.nonce, "nonce", "", "nonce; auto-generated when empty")
	flag.StringVar(&opt.timestamp, "timestamp", "", "RFC3339 timestamp; default now UTC")
	flag.StringVar(&opt.privateKey, "private-key", "", "base64 private key (32-byte seed or 64-byte private key); default random")
	flag.BoolVar(&opt.useEnvKey, "env-key", false, "resolve the signing key for the actor from BROKER_SIGNING_* env vars")

	flag.StringVar(&opt.resourceID, "resource-id", "", "resource identifier for request-initiate")
	flag.StringVar(&opt.consumer, "consumer", "", "consumer address for request-initiate")
	flag.StringVar(&opt.provider, "provider", "", "provider address for request-initiate")
	flag.StringVar(&opt.tempPubKey, "temp-pub-key", "", "consumer session public key for request-initiate")
	flag.Int64Var(&opt.timeoutSeconds, "timeout-seconds", 3600, "cancellation timeout seconds for request-initiate")

	flag.BoolVar(&opt.isAvailable, "available", true, "provider availability for request-commit")
	flag.StringVar(&opt.expirationDate, "expiration-date", "", "RFC3339 consent expiration for request-commit")
	flag.StringVar(&opt.discovery, "discovery", "", "discovery endpoint for request-commit")
	flag.StringVar(&opt.permissions, "permissions", "", "granted permissions for request-commit")
	flag.StringVar(&opt.agreementRef, "agreement-ref", "", "agreement reference for request-commit")
	flag.StringVar(&opt.agreementDocType, "agreement-doc-type", "", "agreement document type for request-commit")

	flag.StringVar(&opt.encryptedToken, "encrypted-token", "", "base64 encrypted access token for token-deliver")

	flag.StringVar(&opt.signer, "signer", "", "claimed signer address for delivery-verify")
	flag.StringVar(&opt.digest, "digest", "", "hex 32-byte signed digest for delivery-verify")
	flag.IntVar(&opt.sigV, "v", 27, "recovery id (27 or 28) for delivery-verify")
	flag.StringVar(&opt.sigR, "r", "", "hex 32-byte signature r for delivery-verify")
	flag.StringVar(&opt.sigS, "s", "", "hex 32-byte signature s for delivery-verify")

	flag.StringVar(&opt.amount, "amount", "", "escrow amount for payment-record")
	flag.Parse()

	op, err := parseOperation(opt.op)
	if err != nil {
		log.Fatal(err)
	}
	opt.actor = strings.ToLower(strings.TrimSpace(opt.actor))
	if opt.actor == "" {
		log.Fatal("actor is required")
	}

	payload, err := buildPayload(op, opt)
	if err != nil {
		log.Fatal(err)
	}

	privateKey, err := loadPrivateKey(opt)
	if err != nil {
		log.Fatal(err)
	}
	ts, err := parseTimestamp(opt.timestamp)
	if err != nil {
		log.Fatal(err)
	}

	txID := strings.TrimSpace(opt.txID)
	if txID == "" {
		txID = autoID("tx", ts)
	}
	nonce := strings.TrimSpace(opt.nonce)
	if nonce == "" {
		nonce = autoID("n", ts)
	}
	tx := protocol.Tx{
		TxID:      txID,
		RequestID: strings.TrimSpace(opt.requestID),
		Nonce:     nonce,
		Timestamp: ts,
		Actor:     opt.actor,
		Op:        op,
		Payload:   payload,
	}
	if err := tx.Sign(privateKey); err != nil {
		log.Fatal(err)
	}

	out, err := json.Marshal(tx)
	if err != nil {
		log.Fatal(err)
	}
	_, _ = os.Stdout.Write(out)
}

func parseOperation(raw string) (protocol.Operation, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "request-initiate", "request_initiate":
		return protocol.OpRequestInitiate, nil
	case "request-commit", "request_commit":
		return protocol.OpRequestCommit, nil
	case "token-deliver", "token_deliver":
		return protocol.OpTokenDeliver, nil
	case "request-cancel", "request_cancel":
		return protocol.OpRequestCancel, nil
	case "delivery-verify", "delivery_verify":
		return protocol.OpDeliveryVerify, nil
	case "payment-record", "payment_record":
		return protocol.OpPaymentRecord, nil
	default:
		return "", fmt.Errorf("unsupported op: %q", raw)
	}
}

func buildPayload(op protocol.Operation, opt options) (json.RawMessage, error) {
	switch op {
	case protocol.OpRequestInitiate:
		resourceID := strings.TrimSpace(opt.resourceID)
		consumer := strings.ToLower(strings.TrimSpace(opt.consumer))
		provider := strings.ToLower(strings.TrimSpace(opt.provider))
		tempPubKey := strings.TrimSpace(opt.tempPubKey)
		if consumer == "" {
			consumer = opt.actor
		}
		if resourceID == "" || provider == "" || tempPubKey == "" {
			return nil, errors.New("resource-id, provider and temp-pub-key are required for request-initiate")
		}
		if opt.timeoutSeconds <= 0 {
			return nil, errors.New("timeout-seconds must be positive")
		}
		return json.Marshal(protocol.RequestInitiatePayload{
			ResourceID:     resourceID,
			Consumer:       consumer,
			Provider:       provider,
			TempPubKey:     tempPubKey,
			TimeoutSeconds: opt.timeoutSeconds,
		})

	case protocol.OpRequestCommit:
		requestID := strings.TrimSpace(opt.requestID)
		if requestID == "" {
			return nil, errors.New("request-id is required for request-commit")
		}
		var expiration *time.Time
		if strings.TrimSpace(opt.expirationDate) != "" {
			parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(opt.expirationDate))
			if err != nil {
				return nil, fmt.Errorf("invalid expiration-date: %w", err)
			}
			utc := parsed.UTC()
			expiration = &utc
		}
		return json.Marshal(protocol.RequestCommitPayload{
			RequestID:        requestID,
			IsAvailable:      opt.isAvailable,
			ExpirationDate:   expiration,
			Discovery:        strings.TrimSpace(opt.discovery),
			Permissions:      strings.TrimSpace(opt.permissions),
			AgreementRef:     strings.TrimSpace(opt.agreementRef),
			AgreementDocType: strings.TrimSpace(opt.agreementDocType),
		})

	case protocol.OpTokenDeliver:
		requestID := strings.TrimSpace(opt.requestID)
		token := strings.TrimSpace(opt.encryptedToken)
		if requestID == "" || token == "" {
			return nil, errors.New("request-id and encrypted-token are required for token-deliver")
		}
		if _, err := base64.StdEncoding.DecodeString(token); err != nil {
			return nil, fmt.Errorf("encrypted-token must be base64: %w", err)
		}
		return json.Marshal(protocol.TokenDeliverPayload{
			RequestID:      requestID,
			EncryptedToken: token,
		})

	case protocol.OpRequestCancel:
		requestID := strings.TrimSpace(opt.requestID)
		if requestID == "" {
			return nil, errors.New("request-id is required for request-cancel")
		}
		return json.Marshal(protocol.RequestCancelPayload{RequestID: requestID})

	case protocol.OpDeliveryVerify:
		requestID := strings.TrimSpace(opt.requestID)
		signer := strings.ToLower(strings.TrimSpace(opt.signer))
		digest := strings.TrimSpace(opt.digest)
		sigR := strings.TrimSpace(opt.sigR)
		sigS := strings.TrimSpace(opt.sigS)
		if requestID == "" || signer == "" || digest == "" || sigR == "" || sigS == "" {
			return nil, errors.New("request-id, signer, digest, r and s are required for delivery-verify")
		}
		if opt.sigV != 27 && opt.sigV != 28 {
			return nil, errors.New("v must be 27 or 28")
		}
		return json.Marshal(protocol.DeliveryVerifyPayload{
			RequestID: requestID,
			Signer:    signer,
			Digest:    digest,
			V:         byte(opt.sigV),
			R:         sigR,
			S:         sigS,
		})

	case protocol.OpPaymentRecord:
		requestID := strings.TrimSpace(opt.requestID)
		if requestID == "" {
			return nil, errors.New("request-id is required for payment-record")
		}
		return json.Marshal(protocol.PaymentRecordPayload{
			RequestID: requestID,
			Amount:    strings.TrimSpace(opt.amount),
		})
	}
	return nil, fmt.Errorf("unsupported op: %s", op)
}

func parseTimestamp(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Now().UTC(), nil
	}
	parsed, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp: %w", err)
	}
	return parsed.UTC(), nil
}

func loadPrivateKey(opt options) (ed25519.PrivateKey, error) {
	if opt.useEnvKey {
		ks, err := keystore.NewFromEnv()
		if err != nil {
			return nil, err
		}
		_, seed, err := ks.GetKeyForParty(context.Background(), opt.actor)
		if err != nil {
			return nil, err
		}
		return keyFromBytes(seed)
	}
	trimmed := strings.TrimSpace(opt.privateKey)
	if trimmed == "" {
		_, key, err := ed25519.GenerateKey(rand.Reader)
		return key, err
	}
	decoded, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid private-key base64: %w", err)
	}
	return keyFromBytes(decoded)
}

func keyFromBytes(raw []byte) (ed25519.PrivateKey, error) {
	switch len(raw) {
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	default:
		return nil, fmt.Errorf("invalid private key length: %d (expected 32 or 64 bytes)", len(raw))
	}
}

func autoID(prefix string, ts time.Time) string {
	return fmt.Sprintf("%s-%d", prefix, ts.UnixNano())
}
