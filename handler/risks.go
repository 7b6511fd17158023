package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kestrelsched/engine/apperr"
	"github.com/kestrelsched/engine/db"
	"github.com/kestrelsched/engine/model"
)

// RiskHandler serves the Risk Register Entry CRUD routes of spec.md §6.1/
// §6.3: operator-authored risk notes scoped to one installation's project,
// distinct from the Date Engine's computed RiskAssessment.
type RiskHandler struct {
	deps *Deps
}

// NewRiskHandler builds a RiskHandler.
func NewRiskHandler(deps *Deps) *RiskHandler {
	return &RiskHandler{deps: deps}
}

type riskRequest struct {
	Title          string             `json:"title"`
	Description    string             `json:"description"`
	Severity       model.RiskSeverity `json:"severity"`
	Status         model.RiskRegisterStatus `json:"status"`
	Owner          string             `json:"owner"`
	LinkedIssues   []int              `json:"linkedIssues"`
	MitigationPlan string             `json:"mitigationPlan"`
}

// ListRisks handles GET .../projects/{n}/risk-register.
func (h *RiskHandler) ListRisks(w http.ResponseWriter, r *http.Request) {
	installationID, err := installationIDParam(r)
	if err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}
	projectNumber, err := projectNumberParam(r)
	if err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}

	risks, err := db.ListRisks(r.Context(), h.deps.DB, installationID, projectNumber)
	if err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"risks": risks, "total": len(risks)})
}

// CreateRisk handles POST .../projects/{n}/risk-register.
func (h *RiskHandler) CreateRisk(w http.ResponseWriter, r *http.Request) {
	installationID, err := installationIDParam(r)
	if err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}
	projectNumber, err := projectNumberParam(r)
	if err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}

	var req riskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}
	if req.Title == "" {
		writeError(h.deps.Logger, w, &apperr.ValidationError{Field: "title", Reason: "is required"})
		return
	}
	if req.Severity == "" {
		req.Severity = model.SeverityMedium
	}
	if req.Status == "" {
		req.Status = model.RiskRegisterOpen
	}

	entry := &model.RiskRegisterEntry{
		InstallationID: installationID,
		ProjectNumber:  projectNumber,
		Title:          req.Title,
		Description:    req.Description,
		Severity:       req.Severity,
		Status:         req.Status,
		Owner:          req.Owner,
		LinkedIssues:   req.LinkedIssues,
		MitigationPlan: req.MitigationPlan,
	}
	if err := db.CreateRisk(r.Context(), h.deps.DB, entry); err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}
	h.deps.Audit.Record(installationID, "risk.created", riskAuditJSON(entry))
	writeJSON(w, http.StatusCreated, entry)
}

// GetRisk handles GET .../risk-register/{riskId}.
func (h *RiskHandler) GetRisk(w http.ResponseWriter, r *http.Request) {
	installationID, err := installationIDParam(r)
	if err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}
	riskID, err := riskIDParam(r)
	if err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}

	entry, err := db.GetRisk(r.Context(), h.deps.DB, installationID, riskID)
	if err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// UpdateRisk handles PATCH .../risk-register/{riskId}.
func (h *RiskHandler) UpdateRisk(w http.ResponseWriter, r *http.Request) {
	installationID, err := installationIDParam(r)
	if err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}
	riskID, err := riskIDParam(r)
	if err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}

	existing, err := db.GetRisk(r.Context(), h.deps.DB, installationID, riskID)
	if err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}

	var req riskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}
	if req.Title != "" {
		existing.Title = req.Title
	}
	existing.Description = req.Description
	if req.Severity != "" {
		existing.Severity = req.Severity
	}
	if req.Status != "" {
		existing.Status = req.Status
	}
	existing.Owner = req.Owner
	existing.LinkedIssues = req.LinkedIssues
	existing.MitigationPlan = req.MitigationPlan

	if err := db.UpdateRisk(r.Context(), h.deps.DB, existing); err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}
	h.deps.Audit.Record(installationID, "risk.updated", riskAuditJSON(existing))
	writeJSON(w, http.StatusOK, existing)
}

// DeleteRisk handles DELETE .../risk-register/{riskId}.
func (h *RiskHandler) DeleteRisk(w http.ResponseWriter, r *http.Request) {
	installationID, err := installationIDParam(r)
	if err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}
	riskID, err := riskIDParam(r)
	if err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}

	if err := db.DeleteRisk(r.Context(), h.deps.DB, installationID, riskID); err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}
	h.deps.Audit.Record(installationID, "risk.deleted", `{"riskId":`+strconv.FormatInt(riskID, 10)+`}`)
	w.WriteHeader(http.StatusNoContent)
}

func riskIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "riskId")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &apperr.ValidationError{Field: "riskId", Reason: "must be a positive integer"}
	}
	return id, nil
}

func projectNumberParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "n")
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, &apperr.ValidationError{Field: "projectNumber", Reason: "must be a positive integer"}
	}
	return n, nil
}

func riskAuditJSON(r *model.RiskRegisterEntry) string {
	return `{"riskId":` + strconv.FormatInt(r.ID, 10) + `,"title":` + strconv.Quote(r.Title) + `}`
}
