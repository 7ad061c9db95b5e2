package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/access-broker/access-broker/internal/domain/identity"
	"github.com/access-broker/access-broker/internal/domain/party"
)

// Service issues and authenticates party API tokens. Token format is
// "<partyId>.<secret>"; only a bcrypt hash of the secret is stored.
// Successful authentications are cached so the bcrypt comparison is not
// paid on every request.
type Service struct {
	parties party.Repository
	cache   *gocache.Cache
	logger  zerolog.Logger
}

// NewService creates an auth service. cacheTTL bounds how long a resolved
// token stays cached without re-checking the stored hash.
func NewService(parties party.Repository, cacheTTL time.Duration, logger zerolog.Logger) *Service {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Service{
		parties: parties,
		cache:   gocache.New(cacheTTL, 2*cacheTTL),
		logger:  logger.With().Str("service", "auth").Logger(),
	}
}

// Register creates a party for an address and returns its API token. The
// token is returned exactly once; only its hash is retained.
func (s *Service) Register(ctx context.Context, name string, addr identity.Address) (*party.Party, string, error) {
	if err := party.ValidateName(name); err != nil {
		return nil, "", err
	}
	existing, err := s.parties.GetByAddress(ctx, addr)
	if err != nil && err != party.ErrNotFound {
		return nil, "", err
	}
	if existing != nil {
		return nil, "", party.ErrAddressTaken
	}

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, "", err
	}
	secret := hex.EncodeToString(secretBytes)

	hash, err := party.HashSecret(secret)
	if err != nil {
		return nil, "", err
	}

	now := time.Now().UTC()
	p := &party.Party{
		PartyID:   uuid.New(),
		Address:   addr,
		Name:      party.NormalizeName(name),
		TokenHash: hash,
		Status:    party.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.parties.Create(ctx, p); err != nil {
		return nil, "", err
	}

	s.logger.Info().
		Str("partyId", p.PartyID.String()).
		Str("address", p.Address.String()).
		Msg("party registered")

	return p, fmt.Sprintf("%s.%s", p.PartyID, secret), nil
}

// Authenticate resolves an API token to its party.
func (s *Service) Authenticate(ctx context.Context, token string) (*party.Party, error) {
	partyID, secret, err := splitToken(token)
	if err != nil {
		return nil, err
	}

	cacheKey := tokenCacheKey(token)
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.(*party.Party), nil
	}

	p, err := s.parties.GetByPartyID(ctx, partyID)
	if err != nil {
		if err == party.ErrNotFound {
			return nil, party.ErrInvalidToken
		}
		return nil, err
	}
	if !p.CheckSecret(secret) {
		return nil, party.ErrInvalidToken
	}
	if !p.IsActive() {
		return nil, party.ErrPartyDisabled
	}

	s.cache.SetDefault(cacheKey, p)
	return p, nil
}

// Revoke disables a party and drops cached tokens.
func (s *Service) Revoke(ctx context.Context, partyID uuid.UUID) error {
	p, err := s.parties.GetByPartyID(ctx, partyID)
	if err != nil {
		return err
	}
	p.Status = party.StatusDisabled
	p.UpdatedAt = time.Now().UTC()
	if err := s.parties.Update(ctx, p); err != nil {
		return err
	}
	s.cache.Flush()
	return nil
}

func splitToken(token string) (uuid.UUID, string, error) {
	parts := strings.SplitN(strings.TrimSpace(token), ".", 2)
	if len(parts) != 2 || parts[1] == "" {
		return uuid.Nil, "", party.ErrInvalidToken
	}
	id, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, "", party.ErrInvalidToken
	}
	return id, parts[1], nil
}

func tokenCacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
