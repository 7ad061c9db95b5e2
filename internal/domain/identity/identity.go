package identity

import (
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/sha3"
)

const (
	// AddressLength is the raw byte length of an address.
	AddressLength = 20
	// RequestIDLength is the raw byte length of a request id.
	RequestIDLength = 32
)

var (
	ErrInvalidAddress   = errors.New("invalid address")
	ErrInvalidRequestID = errors.New("invalid request id")
)

// Address is the authenticated caller identity: a 20-byte account
// address encoded as lowercase 0x-prefixed hex.
type Address string

// ParseAddress validates and normalizes a raw address string.
func ParseAddress(raw string) (Address, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "0x")
	if len(s) != AddressLength*2 {
		return "", ErrInvalidAddress
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", ErrInvalidAddress
	}
	return Address("0x" + s), nil
}

// AddressFromBytes builds an address from its raw 20 bytes.
func AddressFromBytes(b []byte) (Address, error) {
	if len(b) != AddressLength {
		return "", ErrInvalidAddress
	}
	return Address("0x" + hex.EncodeToString(b)), nil
}

// Bytes returns the raw 20-byte form of the address.
func (a Address) Bytes() []byte {
	b, err := hex.DecodeString(strings.TrimPrefix(string(a), "0x"))
	if err != nil {
		return nil
	}
	return b
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == ""
}

func (a Address) String() string {
	return string(a)
}

// RequestID identifies one access request: a 32-byte digest encoded as
// lowercase 0x-prefixed hex.
type RequestID string

// ParseRequestID validates and normalizes a raw request id string.
func ParseRequestID(raw string) (RequestID, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "0x")
	if len(s) != RequestIDLength*2 {
		return "", ErrInvalidRequestID
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", ErrInvalidRequestID
	}
	return RequestID("0x" + s), nil
}

func (id RequestID) String() string {
	return string(id)
}

// DeriveRequestID computes the deterministic request id: Keccak-256 over
// the ordered concatenation of the resource id, the consumer and provider
// address bytes, and the temporary public key string. The same four-tuple
// always yields the same id, so parties can recompute it off-band.
func DeriveRequestID(resourceID string, consumer, provider Address, tempPubKey string) RequestID {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(resourceID))
	h.Write(consumer.Bytes())
	h.Write(provider.Bytes())
	h.Write([]byte(tempPubKey))
	return RequestID("0x" + hex.EncodeToString(h.Sum(nil)))
}
