// Package router assembles the chi.Router serving the HTTP surface of
// spec.md §6.3: webhook ingestion, engine actions, read-only views, and
// risk register CRUD, behind the middleware chain of spec.md §5/§7.
package router

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/kestrelsched/engine/config"
	"github.com/kestrelsched/engine/handler"
	gwmw "github.com/kestrelsched/engine/middleware"
)

// NewRouter returns a configured chi Router with the full middleware chain
// and every route of spec.md §6.3/SPEC_FULL.md §4.16 mounted.
func NewRouter(cfg *config.Config, appLogger zerolog.Logger, deps *handler.Deps) http.Handler {
	r := chi.NewRouter()

	// --- Middleware chain (order matters) ---
	r.Use(gwmw.CORSMiddleware([]string{"*"}))
	r.Use(gwmw.SecurityHeadersMiddleware)
	r.Use(gwmw.RequestIDMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(mwRequestLogger(appLogger))
	r.Use(mwMaxBodySize(cfg.MaxBodyBytes))

	// --- Unauthenticated health + metrics ---
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.DB.Ping(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"not_ready"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})
	r.Get("/metrics", deps.Metrics.Handler())

	// --- Rate limiters, one per spec.md §5 tier ---
	apiLimiter := gwmw.NewRateLimiter(appLogger, "api", cfg.APIRateLimitRPM, 15*time.Minute)
	authLimiter := gwmw.NewRateLimiter(appLogger, "auth", cfg.AuthRateLimitRPM, 15*time.Minute)
	webhookLimiter := gwmw.NewRateLimiter(appLogger, "webhook", cfg.WebhookRateLimitRPM, time.Minute)
	sessionAuth := gwmw.NewSessionMiddleware(appLogger, cfg.SessionSecret)

	coord := deps.Coord
	billingHandler := handler.NewBillingHandler(deps)
	sessionHandler := handler.NewSessionHandler(deps)
	engineHandler := handler.NewEngineHandler(deps)
	viewHandler := handler.NewViewHandler(deps)
	riskHandler := handler.NewRiskHandler(deps)

	// --- Webhook ingress: signature-authenticated, not session-authenticated ---
	r.Group(func(r chi.Router) {
		r.Use(webhookLimiter.Handler(remoteAddrKey))
		r.Post("/api/webhook", coord.HandleWebhook)
		r.Post("/api/billing/webhook", billingHandler.HandleWebhook)
	})

	// --- Session exchange: its own rate-limit tier ---
	r.Group(func(r chi.Router) {
		r.Use(authLimiter.Handler(remoteAddrKey))
		r.Post("/api/auth/session", sessionHandler.CreateSession)
	})

	// --- Installation-scoped API: session-authenticated, API tier ---
	r.Route("/api/installations/{id}", func(r chi.Router) {
		r.Use(sessionAuth.Handler)
		r.Use(apiLimiter.Handler(sessionKey))

		r.Post("/recalculate", engineHandler.Recalculate)
		r.Post("/save-baseline", engineHandler.SaveBaseline)
		r.Get("/variance-report", engineHandler.VarianceReport)

		r.Route("/projects/{n}", func(r chi.Router) {
			r.Get("/dependencies", viewHandler.Dependencies)
			r.Get("/resources", viewHandler.Resources)
			r.Get("/milestones", viewHandler.Milestones)
			r.Get("/risks", viewHandler.RiskReport)

			r.Route("/risk-register", func(r chi.Router) {
				r.Get("/", riskHandler.ListRisks)
				r.Post("/", riskHandler.CreateRisk)
				r.Get("/{riskId}", riskHandler.GetRisk)
				r.Patch("/{riskId}", riskHandler.UpdateRisk)
				r.Delete("/{riskId}", riskHandler.DeleteRisk)
			})
		})
	})

	return r
}

func remoteAddrKey(r *http.Request) string { return r.RemoteAddr }

// sessionKey rate-limits by the authenticated installation id once
// SessionMiddleware has populated it, falling back to remote address for
// any request that reaches the limiter before auth runs.
func sessionKey(r *http.Request) string {
	if id, ok := gwmw.InstallationID(r.Context()); ok {
		return "installation:" + strconv.FormatInt(id, 10)
	}
	return r.RemoteAddr
}

// mwMaxBodySize returns middleware that limits the request body size.
func mwMaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = 1 * 1024 * 1024
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > 0 && r.ContentLength > maxBytes {
				http.Error(w, `{"error":"request_too_large","message":"request body too large"}`, http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func mwRequestLogger(appLogger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rw, r)
			dur := time.Since(start)
			reqID := r.Header.Get("X-Request-ID")
			appLogger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("req_id", reqID).
				Int("status", rw.Status()).
				Dur("duration", dur).
				Msg("request completed")
		})
	}
}
