package httpapi

import (
	"net/http"

	"github.com/access-broker/access-broker/internal/domain/signature"
)

// verifySignature is a stateless helper endpoint: it recovers the signer
// address from a compact signature without touching any request.
func (s *Server) verifySignature(w http.ResponseWriter, r *http.Request) {
	var body verifyDeliveryBody
	if err := decodeBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	signer, digest, v, sigR, sigS, err := parseSignature(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}

	recovered, err := signature.RecoverSigner(digest, v, sigR, sigS)
	if err != nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"valid": false,
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"valid":     recovered == signer,
		"recovered": recovered,
	})
}
