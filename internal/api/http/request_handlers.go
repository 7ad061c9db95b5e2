package httpapi

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	appAccess "github.com/access-broker/access-broker/internal/application/access"
	"github.com/access-broker/access-broker/internal/domain/identity"
	"github.com/access-broker/access-broker/internal/domain/request"
)

type initiateRequestBody struct {
	ResourceID     string `json:"resourceId"`
	Provider       string `json:"provider"`
	TempPubKey     string `json:"tempPubKey"`
	TimeoutSeconds int64  `json:"timeoutSeconds"`
}

type commitRequestBody struct {
	IsAvailable      bool   `json:"isAvailable"`
	AvailabilityRule string `json:"availabilityRule,omitempty"`
	ExpirationDate   string `json:"expirationDate,omitempty"`
	Discovery        string `json:"discovery,omitempty"`
	Permissions      string `json:"permissions,omitempty"`
	AgreementRef     string `json:"agreementRef,omitempty"`
	AgreementDocType string `json:"agreementDocType,omitempty"`
}

type deliverRequestBody struct {
	EncryptedToken string `json:"encryptedToken"`
}

type verifyDeliveryBody struct {
	Signer string `json:"signer"`
	Digest string `json:"digest"`
	V      byte   `json:"v"`
	R      string `json:"r"`
	S      string `json:"s"`
}

func (s *Server) initiateRequest(w http.ResponseWriter, r *http.Request) {
	caller := authPartyFromContext(r.Context())
	var body initiateRequestBody
	if err := decodeBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	provider, err := identity.ParseAddress(body.Provider)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid provider address")
		return
	}

	id, err := s.accessSvc.Initiate(r.Context(), caller.Address, body.ResourceID, provider, body.TempPubKey, time.Duration(body.TimeoutSeconds)*time.Second)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"requestId": id,
		"status":    request.StatusRequested,
	})
}

func (s *Server) commitRequest(w http.ResponseWriter, r *http.Request) {
	caller := authPartyFromContext(r.Context())
	id, err := requestIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid requestId")
		return
	}
	var body commitRequestBody
	if err := decodeBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}

	params := appAccess.CommitParams{
		IsAvailable:      body.IsAvailable,
		AvailabilityRule: body.AvailabilityRule,
		Discovery:        body.Discovery,
		Permissions:      body.Permissions,
		AgreementRef:     body.AgreementRef,
		AgreementDocType: body.AgreementDocType,
	}
	if body.ExpirationDate != "" {
		exp, err := time.Parse(time.RFC3339, body.ExpirationDate)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid expirationDate")
			return
		}
		params.ExpirationDate = exp
	}

	committed, err := s.accessSvc.Commit(r.Context(), caller.Address, id, params)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	status := request.StatusRevoked
	if committed {
		status = request.StatusCommitted
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"requestId": id,
		"committed": committed,
		"status":    status,
	})
}

func (s *Server) deliverRequest(w http.ResponseWriter, r *http.Request) {
	caller := authPartyFromContext(r.Context())
	id, err := requestIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid requestId")
		return
	}
	var body deliverRequestBody
	if err := decodeBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	token, err := base64.StdEncoding.DecodeString(body.EncryptedToken)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "encryptedToken must be base64")
		return
	}

	if _, err := s.accessSvc.Deliver(r.Context(), caller.Address, id, token); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"requestId": id,
		"status":    request.StatusDelivered,
	})
}

func (s *Server) cancelRequest(w http.ResponseWriter, r *http.Request) {
	caller := authPartyFromContext(r.Context())
	id, err := requestIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid requestId")
		return
	}

	if err := s.accessSvc.Cancel(r.Context(), caller.Address, id); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"requestId": id,
		"status":    request.StatusRevoked,
	})
}

func (s *Server) verifyDelivery(w http.ResponseWriter, r *http.Request) {
	caller := authPartyFromContext(r.Context())
	id, err := requestIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid requestId")
		return
	}
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

	verified, err := s.accessSvc.VerifyDelivery(r.Context(), caller.Address, id, signer, digest, v, sigR, sigS)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	status := request.StatusRevoked
	if verified {
		status = request.StatusVerified
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"requestId": id,
		"verified":  verified,
		"status":    status,
	})
}

func (s *Server) getRequest(w http.ResponseWriter, r *http.Request) {
	caller := authPartyFromContext(r.Context())
	id, err := requestIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid requestId")
		return
	}
	req, err := s.accessSvc.Get(r.Context(), caller.Address, id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, req)
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	id, err := requestIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid requestId")
		return
	}
	status, err := s.accessSvc.Status(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"requestId": id,
		"status":    status,
	})
}

func (s *Server) getTempPubKey(w http.ResponseWriter, r *http.Request) {
	caller := authPartyFromContext(r.Context())
	id, err := requestIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid requestId")
		return
	}
	key, err := s.accessSvc.TempPubKey(r.Context(), caller.Address, id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"requestId":  id,
		"tempPubKey": key,
	})
}

func (s *Server) getEncryptedToken(w http.ResponseWriter, r *http.Request) {
	caller := authPartyFromContext(r.Context())
	id, err := requestIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid requestId")
		return
	}
	token, err := s.accessSvc.EncryptedToken(r.Context(), caller.Address, id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"requestId":      id,
		"encryptedToken": base64.StdEncoding.EncodeToString(token),
	})
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	caller := authPartyFromContext(r.Context())
	id, err := requestIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid requestId")
		return
	}
	events, err := s.accessSvc.Events(r.Context(), caller.Address, id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (s *Server) listRequests(w http.ResponseWriter, r *http.Request) {
	caller := authPartyFromContext(r.Context())
	limit, offset := parseLimitOffset(r, 100, 200)

	var status *request.Status
	if v := r.URL.Query().Get("status"); v != "" {
		st := request.Status(strings.ToUpper(v))
		status = &st
	}

	requests, err := s.accessSvc.List(r.Context(), caller.Address, status, limit, offset)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"requests": requests})
}

func requestIDParam(r *http.Request) (identity.RequestID, error) {
	return identity.ParseRequestID(chi.URLParam(r, "requestId"))
}

func parseSignature(body verifyDeliveryBody) (identity.Address, []byte, byte, [32]byte, [32]byte, error) {
	var sigR, sigS [32]byte
	signer, err := identity.ParseAddress(body.Signer)
	if err != nil {
		return "", nil, 0, sigR, sigS, errors.New("invalid signer address")
	}
	digest, err := hex.DecodeString(strings.TrimPrefix(body.Digest, "0x"))
	if err != nil || len(digest) != 32 {
		return "", nil, 0, sigR, sigS, errors.New("digest must be 32 hex bytes")
	}
	rBytes, err := hex.DecodeString(strings.TrimPrefix(body.R, "0x"))
	if err != nil || len(rBytes) != 32 {
		return "", nil, 0, sigR, sigS, errors.New("r must be 32 hex bytes")
	}
	sBytes, err := hex.DecodeString(strings.TrimPrefix(body.S, "0x"))
	if err != nil || len(sBytes) != 32 {
		return "", nil, 0, sigR, sigS, errors.New("s must be 32 hex bytes")
	}
	copy(sigR[:], rBytes)
	copy(sigS[:], sBytes)
	return signer, digest, body.V, sigR, sigS, nil
}
