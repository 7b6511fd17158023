package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/kestrelsched/engine/apperr"
	"github.com/kestrelsched/engine/client"
	"github.com/kestrelsched/engine/fieldsetup"
)

// EngineHandler serves the engine-action routes of spec.md §6.3: recompute,
// baseline capture, and variance reporting for one project.
type EngineHandler struct {
	deps *Deps
}

// NewEngineHandler builds an EngineHandler.
func NewEngineHandler(deps *Deps) *EngineHandler {
	return &EngineHandler{deps: deps}
}

type recalculateRequest struct {
	Owner         string `json:"owner"`
	ProjectNumber int    `json:"projectNumber"`
	SetupFields   bool   `json:"setupFields"`
}

type recalculateResponse struct {
	Updated        int      `json:"updated"`
	Skipped        int      `json:"skipped"`
	LimitReached   bool     `json:"limitReached"`
	TotalItems     int      `json:"totalItems"`
	ProcessedItems int      `json:"processedItems"`
	FieldsCreated  []string `json:"fieldsCreated"`
}

// Recalculate handles POST .../installations/{id}/recalculate.
func (h *EngineHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	installationID, err := installationIDParam(r)
	if err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}
	var req recalculateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}
	if req.Owner == "" || req.ProjectNumber <= 0 {
		writeError(h.deps.Logger, w, &apperr.ValidationError{Field: "owner/projectNumber", Reason: "both are required"})
		return
	}

	rp, err := h.deps.resolveProject(r.Context(), installationID, req.Owner, req.ProjectNumber)
	if err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}

	var fieldsCreated []string
	if req.SetupFields {
		ref := client.ProjectRef{Owner: rp.project.OwnerHandle, ProjectNumber: rp.project.ProjectNumber, ExternalProjectID: rp.project.ExternalProjectID}
		fieldsCreated, err = fieldsetup.Ensure(r.Context(), rp.upstream, ref, rp.installation.IsPro())
		if err != nil {
			writeError(h.deps.Logger, w, &apperr.UpstreamError{Op: "field auto-creation", Err: err})
			return
		}
	}

	start := time.Now()
	eng := h.deps.newEngine(rp, installationID)
	result, err := eng.RecalculateAll(r.Context(), time.Now())
	if err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}
	h.deps.Metrics.RecordRecompute(installationID, time.Since(start), result.Updated, result.Skipped)
	h.deps.Audit.Record(installationID, "recalculate.manual",
		fmt.Sprintf(`{"owner":%q,"projectNumber":%d,"updated":%d,"skipped":%d}`, req.Owner, req.ProjectNumber, result.Updated, result.Skipped))

	writeJSON(w, http.StatusOK, recalculateResponse{
		Updated:        result.Updated,
		Skipped:        result.Skipped,
		LimitReached:   result.LimitReached,
		TotalItems:     result.TotalItems,
		ProcessedItems: result.ProcessedItems,
		FieldsCreated:  fieldsCreated,
	})
}

type baselineRequest struct {
	Owner         string `json:"owner"`
	ProjectNumber int    `json:"projectNumber"`
}

// SaveBaseline handles POST .../installations/{id}/save-baseline. Pro-gated.
func (h *EngineHandler) SaveBaseline(w http.ResponseWriter, r *http.Request) {
	installationID, err := installationIDParam(r)
	if err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}
	var req baselineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}
	if req.Owner == "" || req.ProjectNumber <= 0 {
		writeError(h.deps.Logger, w, &apperr.ValidationError{Field: "owner/projectNumber", Reason: "both are required"})
		return
	}

	rp, err := h.deps.resolveProject(r.Context(), installationID, req.Owner, req.ProjectNumber)
	if err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}
	if !rp.installation.IsPro() {
		writeError(h.deps.Logger, w, &apperr.PlanGateError{Operation: "save baseline"})
		return
	}

	eng := h.deps.newEngine(rp, installationID)
	result, err := eng.SaveBaseline(r.Context())
	if err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}
	h.deps.Audit.Record(installationID, "save_baseline",
		fmt.Sprintf(`{"owner":%q,"projectNumber":%d,"saved":%d}`, req.Owner, req.ProjectNumber, result.Saved))
	writeJSON(w, http.StatusOK, map[string]int{"saved": result.Saved})
}

// VarianceReport handles GET .../installations/{id}/variance-report. Pro-gated.
func (h *EngineHandler) VarianceReport(w http.ResponseWriter, r *http.Request) {
	installationID, err := installationIDParam(r)
	if err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}
	owner := r.URL.Query().Get("owner")
	projectNumber, err := queryIntParam(r, "projectNumber")
	if err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}
	if owner == "" {
		writeError(h.deps.Logger, w, &apperr.ValidationError{Field: "owner", Reason: "is required"})
		return
	}

	rp, err := h.deps.resolveProject(r.Context(), installationID, owner, projectNumber)
	if err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}
	if !rp.installation.IsPro() {
		writeError(h.deps.Logger, w, &apperr.PlanGateError{Operation: "variance report"})
		return
	}

	eng := h.deps.newEngine(rp, installationID)
	report, err := eng.GenerateVarianceReport(r.Context())
	if err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func queryIntParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, &apperr.ValidationError{Field: name, Reason: "is required"}
	}
	n := 0
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil || n <= 0 {
		return 0, &apperr.ValidationError{Field: name, Reason: "must be a positive integer"}
	}
	return n, nil
}
