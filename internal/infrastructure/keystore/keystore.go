package keystore

import (
	"context"
	"encoding/hex"
	"errors"
	"os"
	"strings"
)

// StaticKeyStore holds node signing keys loaded at startup. Keys sign
// the replicated tx envelope, not delivery proofs.
type StaticKeyStore struct {
	keys         map[string][]byte
	defaultKeyID string
	perPartyKeys map[string]string
}

// NewFromEnv builds a keystore from environment variables.
// BROKER_SIGNING_KEYS format: "keyId:hex,keyId2:hex".
// BROKER_SIGNING_DEFAULT_KEY_ID sets the default key id.
// BROKER_SIGNING_KEY_FOR_PARTY_<address> can override key per party.
func NewFromEnv() (*StaticKeyStore, error) {
	keys := make(map[string][]byte)
	raw := os.Getenv("BROKER_SIGNING_KEYS")
	if raw != "" {
		pairs := strings.Split(raw, ",")
		for _, p := range pairs {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			parts := strings.SplitN(p, ":", 2)
			if len(parts) != 2 {
				return nil, errors.New("invalid BROKER_SIGNING_KEYS format")
			}
			keyID := parts[0]
			bytes, err := hex.DecodeString(parts[1])
			if err != nil {
				return nil, err
			}
			keys[keyID] = bytes
		}
	}

	ks := &StaticKeyStore{
		keys:         keys,
		defaultKeyID: os.Getenv("BROKER_SIGNING_DEFAULT_KEY_ID"),
		perPartyKeys: map[string]string{},
	}

	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "BROKER_SIGNING_KEY_FOR_PARTY_") {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) != 2 {
				continue
			}
			addr := strings.ToLower(strings.TrimPrefix(parts[0], "BROKER_SIGNING_KEY_FOR_PARTY_"))
			if addr != "" {
				ks.perPartyKeys[addr] = parts[1]
			}
		}
	}

	return ks, nil
}

func (s *StaticKeyStore) GetKey(ctx context.Context, keyID string) ([]byte, error) {
	_ = ctx
	key, ok := s.keys[keyID]
	if !ok {
		return nil, errors.New("key not found")
	}
	return key, nil
}

// GetKeyForParty resolves the signing key for a party address, falling
// back to the default key.
func (s *StaticKeyStore) GetKeyForParty(ctx context.Context, address string) (keyID string, key []byte, err error) {
	_ = ctx
	address = strings.ToLower(strings.TrimSpace(address))
	if partyKeyID, ok := s.perPartyKeys[address]; ok && partyKeyID != "" {
		key, err = s.GetKey(context.Background(), partyKeyID)
		return partyKeyID, key, err
	}
	if s.defaultKeyID == "" {
		return "", nil, errors.New("default key not configured")
	}
	key, err = s.GetKey(context.Background(), s.defaultKeyID)
	return s.defaultKeyID, key, err
}
