package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/kestrelsched/engine/apperr"
	"github.com/kestrelsched/engine/crypto"
	"github.com/kestrelsched/engine/db"
	"github.com/kestrelsched/engine/model"
)

// BillingHandler receives billing-provider webhooks and drives the
// installation plan state machine of spec.md §4.12: checkout.session.completed
// moves an installation to Pro/active; customer.subscription.updated derives
// the plan from the subscription's status; customer.subscription.deleted
// moves it back to Free/canceled. Distinct from the upstream project-service
// webhook handled by EventCoordinator — different secret, different payload
// shape, no debounce or cooldown (billing events are rare and not subject to
// the engine's own write-storm problem).
type BillingHandler struct {
	deps *Deps
}

// NewBillingHandler builds a BillingHandler.
func NewBillingHandler(deps *Deps) *BillingHandler {
	return &BillingHandler{deps: deps}
}

type billingEnvelope struct {
	Type string          `json:"type"`
	Data billingEventData `json:"data"`
}

type billingEventData struct {
	CustomerID     string `json:"customerId"`
	SubscriptionID string `json:"subscriptionId"`
	Status         string `json:"status"`
}

// HandleWebhook handles POST /api/billing/webhook.
func (h *BillingHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(h.deps.Logger, w, &apperr.ValidationError{Field: "body", Reason: "could not read request body"})
		return
	}

	sig := strings.TrimPrefix(r.Header.Get("X-Billing-Signature"), "sha256=")
	if sig == "" || !crypto.VerifyWebhookSignature([]byte(h.deps.Config.BillingWebhookSecret), body, sig) {
		h.deps.Metrics.RecordWebhookSignatureFailure()
		writeError(h.deps.Logger, w, &apperr.AuthError{Reason: "invalid billing webhook signature"})
		return
	}

	var env billingEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		writeError(h.deps.Logger, w, &apperr.ValidationError{Field: "body", Reason: "malformed JSON: " + err.Error()})
		return
	}

	ctx := r.Context()
	inst, err := db.GetInstallationByBillingCustomer(ctx, h.deps.DB, env.Data.CustomerID)
	if err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}

	switch env.Type {
	case "checkout.session.completed":
		inst.Plan = model.PlanPro
		inst.SubStatus = model.SubStatusActive
		inst.BillingSubID = env.Data.SubscriptionID
	case "customer.subscription.updated":
		inst.BillingSubID = env.Data.SubscriptionID
		if env.Data.Status == "active" || env.Data.Status == "trialing" {
			inst.Plan = model.PlanPro
		} else {
			inst.Plan = model.PlanFree
		}
		inst.SubStatus = model.SubscriptionStatus(env.Data.Status)
	case "customer.subscription.deleted":
		inst.Plan = model.PlanFree
		inst.SubStatus = model.SubStatusCanceled
	default:
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := db.UpsertInstallation(ctx, h.deps.DB, inst); err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}
	h.deps.Audit.Record(inst.ID, "billing."+env.Type, `{"plan":"`+string(inst.Plan)+`","subStatus":"`+string(inst.SubStatus)+`"}`)

	w.WriteHeader(http.StatusOK)
}
