package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kestrelsched/engine/crypto"
	"github.com/kestrelsched/engine/db"
	"github.com/kestrelsched/engine/engine"
	"github.com/kestrelsched/engine/model"
)

// EventCoordinator implements spec.md §4.10: signature verification,
// respond-then-process dispatch, and the per-project debounce/cooldown
// that keeps a burst of upstream events from triggering overlapping or
// self-recursive recomputations.
type EventCoordinator struct {
	deps   *Deps
	logger zerolog.Logger

	debounce *debouncer
	cooldown *cooldownCache

	debounceWindow time.Duration
	cooldownWindow time.Duration

	closedMu     sync.Mutex
	closedIssues map[string][]int
}

// NewEventCoordinator builds a coordinator bound to deps, with bounded
// pending/cooldown caches per spec.md §4.10's memory-bound note.
func NewEventCoordinator(deps *Deps) *EventCoordinator {
	return &EventCoordinator{
		deps:           deps,
		logger:         deps.Logger.With().Str("component", "event_coordinator").Logger(),
		debounce:       newDebouncer(500),
		cooldown:       newCooldownCache(500),
		debounceWindow: deps.Config.DebounceWindow,
		cooldownWindow: deps.Config.CooldownWindow,
		closedIssues:   make(map[string][]int),
	}
}

// installationEnvelope is the common wrapper every webhook kind carries: the
// installation the event belongs to, plus a kind-specific body.
type installationEnvelope struct {
	Action       string `json:"action"`
	Installation struct {
		ID      int64  `json:"id"`
		Account struct {
			Login string `json:"login"`
			Type  string `json:"type"`
		} `json:"account"`
	} `json:"installation"`
}

type issueEventPayload struct {
	installationEnvelope
	Repository struct {
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"repository"`
	Issue struct {
		Number int `json:"number"`
	} `json:"issue"`
}

type projectItemEventPayload struct {
	installationEnvelope
	ProjectsV2Item struct {
		ProjectNodeID string `json:"project_node_id"`
	} `json:"projects_v2_item"`
}

// HandleWebhook implements POST /api/webhook. It verifies the HMAC
// signature over the raw body, acknowledges 200 immediately, and continues
// processing on a detached context — spec.md §4.10's respond-then-process.
func (c *EventCoordinator) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErrJSON(w, "validation_error", "failed to read request body", http.StatusBadRequest)
		return
	}

	sig := strings.TrimPrefix(r.Header.Get("X-Webhook-Signature"), "sha256=")
	secret := []byte(c.deps.Config.UpstreamWebhookSecret)
	if sig == "" || !crypto.VerifyWebhookSignature(secret, body, sig) {
		c.deps.Metrics.RecordWebhookSignatureFailure()
		writeErrJSON(w, "auth_error", "invalid webhook signature", http.StatusUnauthorized)
		return
	}

	kind := r.Header.Get("X-Webhook-Event")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"received":true}`))

	go c.process(kind, body)
}

// process dispatches a verified webhook body by kind (spec.md §4.10). It
// runs detached from the originating request's context, which is cancelled
// the moment HandleWebhook returns.
func (c *EventCoordinator) process(kind string, body []byte) {
	ctx := context.Background()
	switch kind {
	case "installation":
		c.handleInstallationEvent(ctx, body)
	case "issues":
		c.handleIssueEvent(ctx, body)
	case "projects_v2_item":
		c.handleProjectItemEvent(ctx, body)
	default:
		c.logger.Warn().Str("kind", kind).Msg("ignoring unrecognized webhook event kind")
	}
}

func (c *EventCoordinator) handleInstallationEvent(ctx context.Context, body []byte) {
	var payload installationEnvelope
	if err := json.Unmarshal(body, &payload); err != nil {
		c.logger.Error().Err(err).Msg("malformed installation event payload")
		return
	}
	id := payload.Installation.ID

	switch payload.Action {
	case "created", "unsuspend":
		ownerKind := model.OwnerUser
		if strings.EqualFold(payload.Installation.Account.Type, "organization") {
			ownerKind = model.OwnerOrganization
		}
		inst, err := db.GetInstallation(ctx, c.deps.DB, id)
		if err != nil {
			inst = &model.Installation{ID: id, OwnerHandle: payload.Installation.Account.Login, OwnerKind: ownerKind, Plan: model.PlanFree, SubStatus: model.SubStatusActive}
		} else {
			inst.SubStatus = model.SubStatusActive
		}
		if err := db.UpsertInstallation(ctx, c.deps.DB, inst); err != nil {
			c.logger.Error().Err(err).Int64("installation_id", id).Msg("upserting installation on create/unsuspend")
			return
		}
		c.deps.Audit.Record(id, "installation."+payload.Action, fmt.Sprintf(`{"ownerHandle":%q}`, inst.OwnerHandle))

	case "suspend":
		inst, err := db.GetInstallation(ctx, c.deps.DB, id)
		if err != nil {
			c.logger.Error().Err(err).Int64("installation_id", id).Msg("loading installation to suspend")
			return
		}
		inst.SubStatus = model.SubStatusSuspended
		if err := db.UpsertInstallation(ctx, c.deps.DB, inst); err != nil {
			c.logger.Error().Err(err).Int64("installation_id", id).Msg("suspending installation")
			return
		}
		c.deps.Audit.Record(id, "installation.suspend", `{}`)

	case "deleted":
		if err := db.DeleteInstallation(ctx, c.deps.DB, id); err != nil {
			c.logger.Error().Err(err).Int64("installation_id", id).Msg("deleting installation")
			return
		}
		c.deps.Audit.Record(id, "installation.deleted", `{}`)

	default:
		c.logger.Warn().Str("action", payload.Action).Msg("ignoring unrecognized installation action")
	}
}

func (c *EventCoordinator) handleIssueEvent(ctx context.Context, body []byte) {
	var payload issueEventPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.logger.Error().Err(err).Msg("malformed issue event payload")
		return
	}
	switch payload.Action {
	case "closed", "reopened", "edited", "labeled", "unlabeled", "milestoned", "demilestoned":
	default:
		return
	}

	projects, err := db.ListProjectsByOwner(ctx, c.deps.DB, payload.Installation.ID, payload.Repository.Owner.Login)
	if err != nil {
		c.logger.Error().Err(err).Str("owner", payload.Repository.Owner.Login).Msg("resolving projects for issue event")
		return
	}
	for _, p := range projects {
		if payload.Action == "closed" {
			c.scheduleIssueClosed(payload.Installation.ID, p.OwnerHandle, p.ProjectNumber, payload.Issue.Number)
			continue
		}
		c.scheduleRecalculate(payload.Installation.ID, p.OwnerHandle, p.ProjectNumber, false)
	}
}

// scheduleIssueClosed debounces a closed-issue recompute for one project,
// per spec.md §4.4: the Actual End Date must be set before the cascade
// recalculates. A burst of issues closing within the debounce window for the
// same project is queued and drained together when the timer fires, so no
// closed issue's Actual End Date update is dropped by coalescing.
func (c *EventCoordinator) scheduleIssueClosed(installationID int64, owner string, projectNumber, issueNumber int) {
	key := fmt.Sprintf("%d:%d", installationID, projectNumber)

	c.closedMu.Lock()
	c.closedIssues[key] = append(c.closedIssues[key], issueNumber)
	c.closedMu.Unlock()

	c.deps.Metrics.RecordDebounceCoalesced()
	c.debounce.schedule(key, c.debounceWindow, func() {
		c.runIssueClosed(installationID, owner, projectNumber, key)
	})
}

func (c *EventCoordinator) runIssueClosed(installationID int64, owner string, projectNumber int, cooldownKey string) {
	c.closedMu.Lock()
	issueNumbers := c.closedIssues[cooldownKey]
	delete(c.closedIssues, cooldownKey)
	c.closedMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.deps.Config.UpstreamCallTimeout*4)
	defer cancel()

	rp, err := c.deps.resolveProject(ctx, installationID, owner, projectNumber)
	if err != nil {
		c.logger.Error().Err(err).Str("owner", owner).Int("project_number", projectNumber).Msg("resolving project for closed-issue recalculation")
		return
	}

	eng := c.deps.newEngine(rp, installationID)
	start := time.Now()
	var result engine.RecalculateResult
	for _, issueNumber := range issueNumbers {
		res, err := eng.OnIssueClosed(ctx, issueNumber, time.Now())
		if err != nil {
			c.logger.Error().Err(err).Str("owner", owner).Int("project_number", projectNumber).Int("issue_number", issueNumber).Msg("closed-issue recalculation failed")
			continue
		}
		result = res
	}
	c.cooldown.mark(cooldownKey, c.cooldownWindow)

	c.deps.Metrics.RecordRecompute(installationID, time.Since(start), result.Updated, result.Skipped)
	c.deps.Audit.Record(installationID, "recalculate.issue_closed",
		fmt.Sprintf(`{"owner":%q,"projectNumber":%d,"issueNumbers":%v,"updated":%d,"skipped":%d}`, owner, projectNumber, issueNumbers, result.Updated, result.Skipped))
}

func (c *EventCoordinator) handleProjectItemEvent(ctx context.Context, body []byte) {
	var payload projectItemEventPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.logger.Error().Err(err).Msg("malformed project item event payload")
		return
	}

	p, err := db.GetProjectByExternalID(ctx, c.deps.DB, payload.Installation.ID, payload.ProjectsV2Item.ProjectNodeID)
	if err != nil {
		c.logger.Debug().Err(err).Str("project_node_id", payload.ProjectsV2Item.ProjectNodeID).Msg("no tracked project for project-item event")
		return
	}
	c.scheduleRecalculate(payload.Installation.ID, p.OwnerHandle, p.ProjectNumber, true)
}

// scheduleRecalculate debounces a recomputation request for one project.
// subjectToCooldown is true for project-item events, which the engine's own
// writes produce and which must be dropped during cooldown to avoid a
// recursive cascade (spec.md §4.10); issue events are genuine external
// actions and are always debounced, never dropped.
func (c *EventCoordinator) scheduleRecalculate(installationID int64, owner string, projectNumber int, subjectToCooldown bool) {
	key := fmt.Sprintf("%d:%d", installationID, projectNumber)

	if subjectToCooldown && c.cooldown.active(key) {
		c.deps.Metrics.RecordCooldownDropped()
		return
	}
	if subjectToCooldown && c.deps.Redis != nil {
		if active, err := c.deps.Redis.CooldownActive(context.Background(), key); err == nil && active {
			c.deps.Metrics.RecordCooldownDropped()
			return
		}
	}

	c.deps.Metrics.RecordDebounceCoalesced()
	c.debounce.schedule(key, c.debounceWindow, func() {
		// This timer may have replaced a pending closed-issue timer for the
		// same key; drain those issues so their Actual End Date is still set.
		c.closedMu.Lock()
		closedPending := len(c.closedIssues[key]) > 0
		c.closedMu.Unlock()
		if closedPending {
			c.runIssueClosed(installationID, owner, projectNumber, key)
			return
		}
		c.runRecalculate(installationID, owner, projectNumber, key)
	})
}

func (c *EventCoordinator) runRecalculate(installationID int64, owner string, projectNumber int, cooldownKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.deps.Config.UpstreamCallTimeout*4)
	defer cancel()

	rp, err := c.deps.resolveProject(ctx, installationID, owner, projectNumber)
	if err != nil {
		c.logger.Error().Err(err).Str("owner", owner).Int("project_number", projectNumber).Msg("resolving project for event-triggered recalculation")
		return
	}

	start := time.Now()
	eng := c.deps.newEngine(rp, installationID)
	result, err := eng.RecalculateAll(ctx, time.Now())
	c.cooldown.mark(cooldownKey, c.cooldownWindow)
	if c.deps.Redis != nil {
		_, _ = c.deps.Redis.MarkCooldown(ctx, cooldownKey, c.cooldownWindow)
	}
	if err != nil {
		c.logger.Error().Err(err).Str("owner", owner).Int("project_number", projectNumber).Msg("event-triggered recalculation failed")
		return
	}

	c.deps.Metrics.RecordRecompute(installationID, time.Since(start), result.Updated, result.Skipped)
	c.deps.Audit.Record(installationID, "recalculate.webhook",
		fmt.Sprintf(`{"owner":%q,"projectNumber":%d,"updated":%d,"skipped":%d}`, owner, projectNumber, result.Updated, result.Skipped))
}
