package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appAccess "github.com/access-broker/access-broker/internal/application/access"
	appAuth "github.com/access-broker/access-broker/internal/application/auth"
	"github.com/access-broker/access-broker/internal/domain/party"
	"github.com/access-broker/access-broker/internal/domain/request"
	"github.com/access-broker/access-broker/internal/infrastructure/sse"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	accessSvc *appAccess.Service
	authSvc   *appAuth.Service
	sseHub    *sse.Hub
}

func NewServer(accessSvc *appAccess.Service, authSvc *appAuth.Service, sseHub *sse.Hub) *Server {
	return &Server{
		accessSvc: accessSvc,
		authSvc:   authSvc,
		sseHub:    sseHub,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/parties", s.registerParty)
		r.Post("/verify-signature", s.verifySignature)

		r.Route("/requests", func(r chi.Router) {
			// Anyone who knows a request id may poll its status.
			r.Get("/{requestId}/status", s.getStatus)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAuth)

				r.Post("/", s.initiateRequest)
				r.Get("/", s.listRequests)
				r.Get("/{requestId}", s.getRequest)
				r.Post("/{requestId}/commit", s.commitRequest)
				r.Post("/{requestId}/deliver", s.deliverRequest)
				r.Post("/{requestId}/cancel", s.cancelRequest)
				r.Post("/{requestId}/verify-delivery", s.verifyDelivery)
				r.Get("/{requestId}/temp-pubkey", s.getTempPubKey)
				r.Get("/{requestId}/token", s.getEncryptedToken)
				r.Get("/{requestId}/events", s.listEvents)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/watch", s.watchEndpoint)
		})
	})

	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

// respondDomainError maps the lifecycle error taxonomy to stable wire
// codes.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, request.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, request.ErrRequestExists):
		respondError(w, http.StatusConflict, "CONFLICT", err.Error())
	case errors.Is(err, request.ErrUnauthorized):
		respondError(w, http.StatusForbidden, "UNAUTHORIZED", err.Error())
	case errors.Is(err, request.ErrInvalidState):
		respondError(w, http.StatusConflict, "INVALID_STATE", err.Error())
	case errors.Is(err, request.ErrTimeoutNotElapsed):
		respondError(w, http.StatusConflict, "TIMEOUT_NOT_ELAPSED", err.Error())
	case errors.Is(err, request.ErrEscrowVerificationFailed):
		respondError(w, http.StatusConflict, "ESCROW_VERIFICATION_FAILED", err.Error())
	case errors.Is(err, request.ErrEscrowSettlementFailed):
		respondError(w, http.StatusBadGateway, "ESCROW_SETTLEMENT_FAILED", err.Error())
	case errors.Is(err, party.ErrAddressTaken):
		respondError(w, http.StatusConflict, "CONFLICT", err.Error())
	default:
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseLimitOffset(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if o, err := strconv.Atoi(v); err == nil {
			offset = o
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
