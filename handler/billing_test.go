package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kestrelsched/engine/config"
	"github.com/kestrelsched/engine/db"
	"github.com/kestrelsched/engine/model"
)

const testBillingSecret = "whtest_secret"

func signBilling(t *testing.T, body []byte) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(testBillingSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func postBilling(t *testing.T, h *BillingHandler, body []byte, signed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/billing/webhook", bytes.NewReader(body))
	if signed {
		req.Header.Set("X-Billing-Signature", signBilling(t, body))
	}
	rec := httptest.NewRecorder()
	h.HandleWebhook(rec, req)
	return rec
}

func TestBillingCheckoutCompletedActivatesPro(t *testing.T) {
	deps := testDeps(t)
	deps.Config = &config.Config{BillingWebhookSecret: testBillingSecret}
	if err := db.UpsertInstallation(context.Background(), deps.DB, &model.Installation{
		ID: 2, OwnerHandle: "beta", OwnerKind: model.OwnerUser, Plan: model.PlanFree,
		SubStatus: model.SubStatusActive, BillingCustomerID: "cus_123",
	}); err != nil {
		t.Fatalf("seeding installation: %v", err)
	}

	h := NewBillingHandler(deps)
	body, _ := json.Marshal(billingEnvelope{
		Type: "checkout.session.completed",
		Data: billingEventData{CustomerID: "cus_123", SubscriptionID: "sub_abc"},
	})
	rec := postBilling(t, h, body, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	inst, err := db.GetInstallation(context.Background(), deps.DB, 2)
	if err != nil {
		t.Fatalf("reloading installation: %v", err)
	}
	if inst.Plan != model.PlanPro {
		t.Fatalf("expected plan pro, got %q", inst.Plan)
	}
	if inst.BillingSubID != "sub_abc" {
		t.Fatalf("expected subscription id recorded, got %q", inst.BillingSubID)
	}
}

func TestBillingSubscriptionDeletedReturnsToFree(t *testing.T) {
	deps := testDeps(t)
	deps.Config = &config.Config{BillingWebhookSecret: testBillingSecret}
	if err := db.UpsertInstallation(context.Background(), deps.DB, &model.Installation{
		ID: 3, OwnerHandle: "gamma", OwnerKind: model.OwnerOrganization, Plan: model.PlanPro,
		SubStatus: model.SubStatusActive, BillingCustomerID: "cus_456",
	}); err != nil {
		t.Fatalf("seeding installation: %v", err)
	}

	h := NewBillingHandler(deps)
	body, _ := json.Marshal(billingEnvelope{Type: "customer.subscription.deleted", Data: billingEventData{CustomerID: "cus_456"}})
	rec := postBilling(t, h, body, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	inst, err := db.GetInstallation(context.Background(), deps.DB, 3)
	if err != nil {
		t.Fatalf("reloading installation: %v", err)
	}
	if inst.Plan != model.PlanFree {
		t.Fatalf("expected plan free, got %q", inst.Plan)
	}
	if inst.SubStatus != model.SubStatusCanceled {
		t.Fatalf("expected sub status canceled, got %q", inst.SubStatus)
	}
}

func TestBillingSubscriptionUpdatedDerivesPlanFromStatus(t *testing.T) {
	deps := testDeps(t)
	deps.Config = &config.Config{BillingWebhookSecret: testBillingSecret}
	if err := db.UpsertInstallation(context.Background(), deps.DB, &model.Installation{
		ID: 4, OwnerHandle: "delta", OwnerKind: model.OwnerOrganization, Plan: model.PlanFree,
		SubStatus: model.SubStatusActive, BillingCustomerID: "cus_789",
	}); err != nil {
		t.Fatalf("seeding installation: %v", err)
	}

	h := NewBillingHandler(deps)
	body, _ := json.Marshal(billingEnvelope{
		Type: "customer.subscription.updated",
		Data: billingEventData{CustomerID: "cus_789", SubscriptionID: "sub_xyz", Status: "trialing"},
	})
	rec := postBilling(t, h, body, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	inst, err := db.GetInstallation(context.Background(), deps.DB, 4)
	if err != nil {
		t.Fatalf("reloading installation: %v", err)
	}
	if inst.Plan != model.PlanPro {
		t.Fatalf("expected plan pro for trialing status, got %q", inst.Plan)
	}
}

func TestBillingWebhookRejectsBadSignature(t *testing.T) {
	deps := testDeps(t)
	deps.Config = &config.Config{BillingWebhookSecret: testBillingSecret}
	h := NewBillingHandler(deps)

	body, _ := json.Marshal(billingEnvelope{Type: "checkout.session.completed", Data: billingEventData{CustomerID: "cus_123"}})
	rec := postBilling(t, h, body, false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing signature, got %d", rec.Code)
	}
}
