package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kestrelsched/engine/audit"
	"github.com/kestrelsched/engine/client"
	"github.com/kestrelsched/engine/config"
	"github.com/kestrelsched/engine/crypto"
	"github.com/kestrelsched/engine/db"
	"github.com/kestrelsched/engine/metrics"
	"github.com/kestrelsched/engine/model"
)

const webhookTestSecret = "webhook-test-secret"

// stubClient is an in-memory client.Client, letting webhook dispatch tests
// run without network access.
type stubClient struct {
	items    []*model.Item
	fieldIDs model.FieldIDs
	writes   map[string]time.Time
}

func newStubClient(items []*model.Item) *stubClient {
	return &stubClient{
		items: items,
		fieldIDs: model.FieldIDs{
			StartDate: "F_start", TargetDate: "F_target", ActualEnd: "F_actual",
			BaselineStart: "F_bstart", BaselineTarget: "F_btarget",
		},
		writes: make(map[string]time.Time),
	}
}

func (s *stubClient) FetchProjectPage(ctx context.Context, ref client.ProjectRef, cursor string) ([]*model.Item, string, bool, error) {
	return s.items, "", false, nil
}
func (s *stubClient) FetchAllItems(ctx context.Context, ref client.ProjectRef) ([]*model.Item, bool, error) {
	return s.items, false, nil
}
func (s *stubClient) ResolveFieldIDs(ctx context.Context, ref client.ProjectRef) (model.FieldIDs, error) {
	return s.fieldIDs, nil
}
func (s *stubClient) WriteDateField(ctx context.Context, ref client.ProjectRef, itemID, fieldID string, date time.Time) error {
	s.writes[itemID+"/"+fieldID] = date
	return nil
}
func (s *stubClient) ListFields(ctx context.Context, ref client.ProjectRef) ([]client.FieldDef, error) {
	return nil, nil
}
func (s *stubClient) CreateField(ctx context.Context, ref client.ProjectRef, def client.FieldDef) (string, error) {
	return "", nil
}
func (s *stubClient) HealthCheck(ctx context.Context) error { return nil }

func webhookTestDeps(t *testing.T) (*Deps, *stubClient) {
	t.Helper()
	conn, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	encryptor := crypto.NewTokenEncryptor("enc-secret")
	encrypted, err := encryptor.Encrypt("upstream-token")
	if err != nil {
		t.Fatalf("encrypting token: %v", err)
	}

	inst := &model.Installation{
		ID: 1, OwnerHandle: "acme", OwnerKind: model.OwnerOrganization,
		Plan: model.PlanFree, SubStatus: model.SubStatusActive,
		EncryptedOAuthTok: encrypted,
	}
	if err := db.UpsertInstallation(context.Background(), conn, inst); err != nil {
		t.Fatalf("seeding installation: %v", err)
	}

	proj := &model.Project{
		InstallationID: 1, OwnerHandle: "acme", ProjectNumber: 7, ExternalProjectID: "PVT_1",
	}
	if err := db.UpsertProject(context.Background(), conn, proj); err != nil {
		t.Fatalf("seeding project: %v", err)
	}

	now := time.Now()
	items := []*model.Item{
		{ExternalID: "ITEM_1", IssueNumber: 42, Open: false, ClosedAt: &now},
	}
	stub := newStubClient(items)

	log := zerolog.Nop()
	deps := &Deps{
		DB:        conn,
		Logger:    log,
		Encryptor: encryptor,
		Tokens:    crypto.NewTokenCache(log),
		Config: &config.Config{
			UpstreamWebhookSecret: webhookTestSecret,
			UpstreamCallTimeout:   2 * time.Second,
			DebounceWindow:        10 * time.Millisecond,
			CooldownWindow:        50 * time.Millisecond,
		},
		Metrics:   metrics.New(),
		Audit:     audit.New(log, &audit.LogSink{Logger: log}),
		NewClient: func(token string) client.Client { return stub },
	}
	return deps, stub
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(webhookTestSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, coord *EventCoordinator, kind string, body []byte, signed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Event", kind)
	if signed {
		req.Header.Set("X-Webhook-Signature", "sha256="+sign(body))
	}
	rw := httptest.NewRecorder()
	coord.HandleWebhook(rw, req)
	return rw
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	deps, _ := webhookTestDeps(t)
	coord := NewEventCoordinator(deps)

	body := []byte(`{"action":"created","installation":{"id":1,"account":{"login":"acme","type":"organization"}}}`)
	rw := postWebhook(t, coord, "installation", body, false)

	if rw.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unsigned webhook, got %d", rw.Result().StatusCode)
	}
}

func TestHandleWebhookInstallationSuspend(t *testing.T) {
	deps, _ := webhookTestDeps(t)
	coord := NewEventCoordinator(deps)

	body := []byte(`{"action":"suspend","installation":{"id":1,"account":{"login":"acme","type":"organization"}}}`)
	rw := postWebhook(t, coord, "installation", body, true)
	if rw.Result().StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Result().StatusCode)
	}

	waitFor(t, func() bool {
		inst, err := db.GetInstallation(context.Background(), deps.DB, 1)
		return err == nil && inst.SubStatus == model.SubStatusSuspended
	})
}

func TestHandleWebhookIssueClosedSetsActualEndDate(t *testing.T) {
	deps, stub := webhookTestDeps(t)
	coord := NewEventCoordinator(deps)

	body := []byte(`{"action":"closed","installation":{"id":1,"account":{"login":"acme","type":"organization"}},` +
		`"repository":{"owner":{"login":"acme"}},"issue":{"number":42}}`)
	rw := postWebhook(t, coord, "issues", body, true)
	if rw.Result().StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Result().StatusCode)
	}

	waitFor(t, func() bool {
		_, ok := stub.writes["ITEM_1/F_actual"]
		return ok
	})
}

// waitFor polls cond until it returns true or a short timeout elapses,
// accommodating HandleWebhook's detached-goroutine processing and the
// debounce window before it fires.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
