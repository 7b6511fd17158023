package router

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kestrelsched/engine/audit"
	"github.com/kestrelsched/engine/config"
	"github.com/kestrelsched/engine/db"
	"github.com/kestrelsched/engine/handler"
	"github.com/kestrelsched/engine/metrics"
	"github.com/kestrelsched/engine/model"
)

func testSetup(t *testing.T) http.Handler {
	t.Helper()
	conn, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := db.UpsertInstallation(context.Background(), conn, &model.Installation{
		ID: 1, OwnerHandle: "acme", OwnerKind: model.OwnerOrganization, Plan: model.PlanFree, SubStatus: model.SubStatusActive,
	}); err != nil {
		t.Fatalf("seeding installation: %v", err)
	}

	log := zerolog.New(io.Discard).With().Timestamp().Logger()
	cfg := &config.Config{
		Env:                 "test",
		SessionSecret:       "test-session-secret",
		APIRateLimitRPM:     100,
		AuthRateLimitRPM:    20,
		WebhookRateLimitRPM: 60,
		MaxBodyBytes:        1 << 20,
	}
	deps := &handler.Deps{
		DB:      conn,
		Logger:  log,
		Config:  cfg,
		Metrics: metrics.New(),
		Audit:   audit.New(log, &audit.LogSink{Logger: log}),
	}
	deps.Coord = handler.NewEventCoordinator(deps)
	return NewRouter(cfg, log, deps)
}

func TestHealthEndpoints(t *testing.T) {
	r := testSetup(t)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"healthz", "/healthz", http.StatusOK},
		{"readyz", "/readyz", http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			rw := httptest.NewRecorder()
			r.ServeHTTP(rw, req)
			if rw.Result().StatusCode != tc.status {
				t.Fatalf("expected %d for %s, got %d", tc.status, tc.path, rw.Result().StatusCode)
			}
		})
	}
}

func TestUnauthenticatedInstallationRouteReturns401(t *testing.T) {
	r := testSetup(t)

	req := httptest.NewRequest(http.MethodGet, "/api/installations/1/projects/7/dependencies?owner=acme", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	if rw.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session cookie, got %d", rw.Result().StatusCode)
	}
}

func TestWebhookRouteBypassesSessionAuth(t *testing.T) {
	r := testSetup(t)

	// No session cookie, no valid signature: should fail on signature (401),
	// never on a missing session — the webhook route isn't session-gated.
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", nil)
	req.Header.Set("X-Webhook-Event", "installation")
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	if rw.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unsigned webhook, got %d", rw.Result().StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	r := testSetup(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/webhook", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	if rw.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatal("expected CORS Allow-Origin header on preflight response")
	}
}

func TestSecurityHeaders(t *testing.T) {
	r := testSetup(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	headers := []string{
		"X-Content-Type-Options",
		"X-Frame-Options",
		"Strict-Transport-Security",
	}
	for _, h := range headers {
		if rw.Header().Get(h) == "" {
			t.Fatalf("expected security header %s to be set", h)
		}
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	r := testSetup(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	if rw.Result().StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rw.Result().StatusCode)
	}
}
