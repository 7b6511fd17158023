package handler

import (
	"net/http"
	"time"

	"github.com/kestrelsched/engine/apperr"
	"github.com/kestrelsched/engine/criticalpath"
	"github.com/kestrelsched/engine/milestone"
	"github.com/kestrelsched/engine/model"
	"github.com/kestrelsched/engine/resource"
	"github.com/kestrelsched/engine/risk"
)

// ViewHandler serves the read-only analysis routes of spec.md §6.3: the
// dependency graph and critical path, resource aggregation, milestone
// rollup, and computed risk report — all derived from a fresh snapshot,
// never mutating upstream state.
type ViewHandler struct {
	deps *Deps
}

// NewViewHandler builds a ViewHandler.
func NewViewHandler(deps *Deps) *ViewHandler {
	return &ViewHandler{deps: deps}
}

// resolve loads the {n} path param and ?owner= query param every view
// route needs to load a project snapshot.
func (h *ViewHandler) resolve(r *http.Request) (*resolvedProject, int64, error) {
	installationID, err := installationIDParam(r)
	if err != nil {
		return nil, 0, err
	}
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		return nil, 0, &apperr.ValidationError{Field: "owner", Reason: "is required"}
	}
	projectNumber, err := projectNumberParam(r)
	if err != nil {
		return nil, 0, err
	}
	rp, err := h.deps.resolveProject(r.Context(), installationID, owner, projectNumber)
	return rp, installationID, err
}

type edge struct {
	From int `json:"from"`
	To   int `json:"to"`
}

type dependencyNode struct {
	IssueNumber int    `json:"issueNumber"`
	Title       string `json:"title"`
	Duration    int    `json:"duration"`
}

// Dependencies handles GET .../projects/{n}/dependencies.
func (h *ViewHandler) Dependencies(w http.ResponseWriter, r *http.Request) {
	rp, installationID, err := h.resolve(r)
	if err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}
	eng := h.deps.newEngine(rp, installationID)

	s, _, err := eng.LoadSnapshot(r.Context())
	if err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}
	order := s.TopologicalOrder()

	nodes := make([]dependencyNode, 0, len(order))
	var edges []edge
	cpNodes := make([]criticalpath.Node, 0, len(order))
	for _, n := range order {
		it, ok := s.Get(n)
		if !ok {
			continue
		}
		duration := 0
		if !it.IsCompleted() && !it.HasChildren() {
			duration = eng.LeafDurationDays(it)
		}
		nodes = append(nodes, dependencyNode{IssueNumber: n, Title: it.Title, Duration: duration})
		for _, blocker := range s.Blockers(n) {
			edges = append(edges, edge{From: blocker, To: n})
		}
		cpNodes = append(cpNodes, criticalpath.Node{IssueNumber: n, Duration: duration, Predecessors: s.Blockers(n)})
	}

	critical, nonCritical := criticalpath.Analyze(cpNodes, order)
	totalDuration := 0.0
	for _, c := range critical {
		if c.EarlyFinish > totalDuration {
			totalDuration = c.EarlyFinish
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"nodes": nodes,
		"edges": edges,
		"criticalPath": map[string]any{
			"nodes":          critical,
			"totalDuration":  totalDuration,
			"nodesWithSlack": nonCritical,
		},
		"stats": map[string]any{
			"totalItems":    s.Len(),
			"criticalCount": len(critical),
		},
	})
}

// Resources handles GET .../projects/{n}/resources.
func (h *ViewHandler) Resources(w http.ResponseWriter, r *http.Request) {
	rp, installationID, err := h.resolve(r)
	if err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}
	eng := h.deps.newEngine(rp, installationID)

	s, _, err := eng.LoadSnapshot(r.Context())
	if err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}

	durations := make(map[int]int, s.Len())
	items := s.All()
	for _, it := range items {
		if !it.IsCompleted() && !it.HasChildren() {
			durations[it.IssueNumber] = eng.LeafDurationDays(it)
		}
	}

	summary := resource.Aggregate(items, durations)
	writeJSON(w, http.StatusOK, map[string]any{
		"resources": summary.Workloads,
		"summary": map[string]any{
			"unassignedItems": summary.UnassignedItems,
			"totalAssignees":  len(summary.Workloads),
		},
	})
}

// Milestones handles GET .../projects/{n}/milestones.
func (h *ViewHandler) Milestones(w http.ResponseWriter, r *http.Request) {
	rp, installationID, err := h.resolve(r)
	if err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}
	eng := h.deps.newEngine(rp, installationID)

	s, _, err := eng.LoadSnapshot(r.Context())
	if err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}

	byNumber := make(map[int]*milestone.Aggregate)
	for _, it := range s.All() {
		if it.Milestone == nil {
			continue
		}
		agg, ok := byNumber[it.Milestone.Number]
		if !ok {
			agg = &milestone.Aggregate{Number: it.Milestone.Number, Title: it.Milestone.Title, Open: it.Milestone.Open, DueOn: it.Milestone.DueOn}
			byNumber[it.Milestone.Number] = agg
		}
		duration := 0
		if !it.IsCompleted() && !it.HasChildren() {
			duration = eng.LeafDurationDays(it)
		}
		milestone.Accumulate(agg, milestone.ItemInput{
			Completed:    it.IsCompleted(),
			DurationDays: duration,
			StartDate:    it.StartDate,
			TargetDate:   it.TargetDate,
		})
	}

	now := time.Now().UTC()
	out := make([]*milestone.Aggregate, 0, len(byNumber))
	counts := map[string]int{}
	for _, agg := range byNumber {
		agg.RiskLevel = milestone.RiskLevel(*agg, now)
		counts[agg.RiskLevel]++
		out = append(out, agg)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"milestones": out,
		"summary": map[string]any{
			"total":        len(out),
			"countsByRisk": counts,
		},
	})
}

// RiskReport handles GET .../projects/{n}/risks — the computed Risk Scorer
// report (spec.md §4.5), distinct from the Risk Register CRUD surface.
func (h *ViewHandler) RiskReport(w http.ResponseWriter, r *http.Request) {
	rp, installationID, err := h.resolve(r)
	if err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}
	eng := h.deps.newEngine(rp, installationID)

	s, _, err := eng.LoadSnapshot(r.Context())
	if err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}

	now := time.Now().UTC()
	items := s.All()
	assessments := make([]model.RiskAssessment, 0, len(items))
	var openScores []int
	for _, it := range items {
		var a model.RiskAssessment
		if it.IsCompleted() {
			a = risk.LevelForCompleted(it)
		} else {
			blockers := make([]*model.Item, 0, len(it.BlockedBy))
			for _, b := range it.BlockedBy {
				if bi, ok := s.Get(b); ok {
					blockers = append(blockers, bi)
				}
			}
			a = risk.Score(it, blockers, now)
			openScores = append(openScores, a.Score)
		}
		assessments = append(assessments, a)
	}

	summary := risk.Summarize(assessments, len(items), openScores)
	writeJSON(w, http.StatusOK, map[string]any{
		"assessments": assessments,
		"summary":     summary,
	})
}
