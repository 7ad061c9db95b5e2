package signature

import (
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"

	"github.com/access-broker/access-broker/internal/domain/identity"
)

// DigestLength is the required message digest length.
const DigestLength = 32

var (
	ErrInvalidDigest    = errors.New("invalid message digest")
	ErrInvalidSignature = errors.New("invalid signature encoding")
	ErrRecoveryFailed   = errors.New("signer recovery failed")
)

// RecoverSigner recovers the address that produced an ECDSA signature over
// digest. The signature is supplied in its three recovery components: v is
// the recovery flag (27 or 28), r and s are the 32-byte scalar values.
func RecoverSigner(digest []byte, v byte, r, s [32]byte) (identity.Address, error) {
	if len(digest) != DigestLength {
		return "", ErrInvalidDigest
	}
	if v != 27 && v != 28 {
		return "", ErrInvalidSignature
	}
	// Compact encoding: recovery flag first, then R and S.
	sig := make([]byte, 65)
	sig[0] = v
	copy(sig[1:33], r[:])
	copy(sig[33:65], s[:])

	pub, _, err := secpecdsa.RecoverCompact(sig, digest)
	if err != nil {
		return "", ErrRecoveryFailed
	}
	return AddressFromPubKey(pub), nil
}

// Verify reports whether the signature over digest recovers to expected.
func Verify(expected identity.Address, digest []byte, v byte, r, s [32]byte) bool {
	signer, err := RecoverSigner(digest, v, r, s)
	if err != nil {
		return false
	}
	return signer == expected
}

// AddressFromPubKey derives the account address for a public key: the last
// 20 bytes of the Keccak-256 digest of the uncompressed point body.
func AddressFromPubKey(pub *secp256k1.PublicKey) identity.Address {
	uncompressed := pub.SerializeUncompressed()
	h := sha3.NewLegacyKeccak256()
	h.Write(uncompressed[1:])
	sum := h.Sum(nil)
	addr, _ := identity.AddressFromBytes(sum[12:])
	return addr
}
