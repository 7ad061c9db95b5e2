package party

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/access-broker/access-broker/internal/domain/identity"
)

// Status represents party status.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusDisabled Status = "DISABLED"
)

var (
	ErrNotFound      = errors.New("party not found")
	ErrAddressTaken  = errors.New("address already registered")
	ErrInvalidToken  = errors.New("invalid api token")
	ErrPartyDisabled = errors.New("party is disabled")
)

// Party is a registered caller: the surrounding service layer resolves
// its API token to the address used in every role guard.
type Party struct {
	ID        int64            `json:"id"`
	PartyID   uuid.UUID        `json:"partyId"`
	Address   identity.Address `json:"address"`
	Name      string           `json:"name"`
	TokenHash string           `json:"-"`
	Status    Status           `json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

func (p *Party) IsActive() bool {
	return p.Status == StatusActive
}

// HashSecret hashes an API token secret for storage.
func HashSecret(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// CheckSecret compares a presented secret against the stored hash.
func (p *Party) CheckSecret(secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(p.TokenHash), []byte(secret)) == nil
}

// NormalizeName trims and lowercases a party name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidateName checks a party name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name is required")
	}
	if len(name) > 64 {
		return errors.New("name must be at most 64 characters")
	}
	return nil
}
