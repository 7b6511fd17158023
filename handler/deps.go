// Package handler wires the HTTP surface of spec.md §6.3/SPEC_FULL.md
// §4.16 onto the engine, analyzers, and persistence layer: webhook
// ingestion, recalculate/save-baseline/variance-report, the read-only
// dependency/resource/milestone views, and risk register CRUD.
package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/kestrelsched/engine/apperr"
	"github.com/kestrelsched/engine/audit"
	"github.com/kestrelsched/engine/client"
	"github.com/kestrelsched/engine/config"
	"github.com/kestrelsched/engine/crypto"
	"github.com/kestrelsched/engine/metrics"
	"github.com/kestrelsched/engine/redisclient"
)

// ClientFactory builds an upstream Client bound to one installation's
// decrypted access token. Production wiring uses client.NewHTTPClient;
// tests substitute a stub.
type ClientFactory func(token string) client.Client

// Deps bundles every handler's dependencies, built once at startup and
// shared across requests.
type Deps struct {
	DB         *sql.DB
	Logger     zerolog.Logger
	Config     *config.Config
	Tokens     *crypto.TokenCache
	Encryptor  *crypto.TokenEncryptor
	Metrics    *metrics.Registry
	Audit      *audit.Pipeline
	NewClient  ClientFactory
	Coord      *EventCoordinator

	// Redis is nil when REDIS_URL is unset or unreachable; every caller
	// must treat a nil Redis as "behave as a single instance" rather than
	// failing the request.
	Redis *redisclient.Client
}

// DefaultClientFactory builds a production client.HTTPClient against the
// configured upstream API URL.
func DefaultClientFactory(cfg *config.Config, logger zerolog.Logger) ClientFactory {
	return func(token string) client.Client {
		return client.NewHTTPClient(cfg.UpstreamAPIURL, token, cfg.UpstreamCallTimeout, logger)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrJSON(w http.ResponseWriter, code, message string, status int) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

// writeError maps the apperr taxonomy to an HTTP status (spec.md §7) and
// writes a JSON error body. Unrecognized errors default to 500.
func writeError(logger zerolog.Logger, w http.ResponseWriter, err error) {
	var authErr *apperr.AuthError
	var validationErr *apperr.ValidationError
	var notFoundErr *apperr.NotFoundError
	var planGateErr *apperr.PlanGateError
	var upstreamErr *apperr.UpstreamError

	switch {
	case errors.As(err, &authErr):
		writeErrJSON(w, "auth_error", authErr.Error(), http.StatusUnauthorized)
	case errors.As(err, &validationErr):
		writeErrJSON(w, "validation_error", validationErr.Error(), http.StatusBadRequest)
	case errors.As(err, &notFoundErr):
		writeErrJSON(w, "not_found", notFoundErr.Error(), http.StatusNotFound)
	case errors.As(err, &planGateErr):
		writeErrJSON(w, "plan_gate", planGateErr.Error(), http.StatusForbidden)
	case errors.As(err, &upstreamErr):
		logger.Error().Err(err).Msg("upstream error")
		writeErrJSON(w, "upstream_error", "the upstream project service request failed", http.StatusBadGateway)
	default:
		logger.Error().Err(err).Msg("unhandled handler error")
		writeErrJSON(w, "internal_error", "an internal error occurred", http.StatusInternalServerError)
	}
}

// decodeJSON decodes a request body into v, returning a ValidationError on
// malformed JSON.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &apperr.ValidationError{Field: "body", Reason: "malformed JSON: " + err.Error()}
	}
	return nil
}
