package httpapi

import (
	"net/http"

	"github.com/access-broker/access-broker/internal/domain/identity"
)

type partyRegisterRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func (s *Server) registerParty(w http.ResponseWriter, r *http.Request) {
	var req partyRegisterRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	addr, err := identity.ParseAddress(req.Address)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid address")
		return
	}

	p, token, err := s.authSvc.Register(r.Context(), req.Name, addr)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"partyId": p.PartyID,
		"address": p.Address,
		"name":    p.Name,
		"token":   token,
	})
}
