package httpapi

import (
	"context"

	"github.com/google/uuid"

	"github.com/access-broker/access-broker/internal/domain/identity"
)

type authContextKey string

const authPartyKey authContextKey = "authParty"

// AuthParty represents the authenticated party in context. Address is
// the identity every lifecycle guard checks against.
type AuthParty struct {
	PartyID uuid.UUID
	Address identity.Address
	Name    string
}

func withAuthParty(ctx context.Context, p *AuthParty) context.Context {
	if p == nil {
		return ctx
	}
	return context.WithValue(ctx, authPartyKey, p)
}

func authPartyFromContext(ctx context.Context) *AuthParty {
	val := ctx.Value(authPartyKey)
	if v, ok := val.(*AuthParty); ok {
		return v
	}
	return nil
}
