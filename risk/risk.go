// Package risk implements the Risk Scorer (spec.md §4.5): a weighted-finding
// score per open item, bucketed into a level, and a project-level summary.
package risk

import (
	"time"

	"github.com/kestrelsched/engine/model"
)

// findingWeights is the spec.md §4.5 weight table.
var findingWeights = map[string]int{
	"overdue":              35,
	"approachingDeadline":  20,
	"lowConfidence":        15,
	"noEstimate":           10,
	"noTargetDate":         10,
	"blocked":              15,
	"behindBaseline":       15,
	"noStartDate":          5,
}

// blockerState names the two fields of a blocking item that the "blocked"
// finding depends on. Score does not use this type: it reads Open and Status
// directly from the blocker model.Item values it is given.
type blockerState struct {
	Open   bool
	Status string
}

// Score computes the weighted findings and level for one open item. blockers
// is the set of blocker items (may be empty); completed items should not be
// passed to Score — call LevelForCompleted instead.
func Score(it *model.Item, blockers []*model.Item, today time.Time) model.RiskAssessment {
	var findings []model.RiskFinding
	add := func(code string) {
		findings = append(findings, model.RiskFinding{Code: code, Weight: findingWeights[code]})
	}

	if it.TargetDate != nil && it.TargetDate.Before(today) {
		add("overdue")
	}
	if it.TargetDate != nil {
		withinFiveDays := !it.TargetDate.Before(today) && !it.TargetDate.After(today.AddDate(0, 0, 5))
		pctLow := it.PercentComplete == nil || *it.PercentComplete < 80
		if withinFiveDays && pctLow {
			add("approachingDeadline")
		}
	}
	if it.Confidence != nil && *it.Confidence == model.ConfidenceLow {
		add("lowConfidence")
	}
	if it.Estimate == nil {
		add("noEstimate")
	}
	if it.TargetDate == nil {
		add("noTargetDate")
	}
	if anyBlockerIncomplete(blockers) {
		add("blocked")
	}
	if it.BaselineTarget != nil && it.TargetDate != nil && it.TargetDate.After(*it.BaselineTarget) {
		add("behindBaseline")
	}
	if it.TargetDate != nil && it.StartDate == nil {
		add("noStartDate")
	}

	score := 0
	for _, f := range findings {
		score += f.Weight
	}

	return model.RiskAssessment{
		IssueNumber: it.IssueNumber,
		Score:       score,
		Level:       levelForScore(score),
		Findings:    findings,
	}
}

func anyBlockerIncomplete(blockers []*model.Item) bool {
	for _, b := range blockers {
		if b == nil {
			continue
		}
		if b.Open && b.Status != "Done" {
			return true
		}
	}
	return false
}

// levelForScore applies the spec.md §4.5 threshold table.
func levelForScore(score int) model.RiskLevel {
	switch {
	case score >= 50:
		return model.RiskCritical
	case score >= 30:
		return model.RiskHigh
	case score >= 15:
		return model.RiskMedium
	case score >= 1:
		return model.RiskLow
	default:
		return model.RiskNone
	}
}

// LevelForCompleted returns the fixed zero-score assessment for a completed
// item, which carries no findings (spec.md §4.5).
func LevelForCompleted(it *model.Item) model.RiskAssessment {
	return model.RiskAssessment{IssueNumber: it.IssueNumber, Score: 0, Level: model.RiskNone}
}

// ProjectSummary is the Risk Scorer's project-level rollup (spec.md §4.5).
type ProjectSummary struct {
	TotalItems      int
	CountsByLevel   map[model.RiskLevel]int
	CountsByFinding map[string]int
	AverageScore    float64 // over open items only
	HighestScore    int
}

// Summarize aggregates a set of per-item assessments, where openScores holds
// the scores of the open (non-completed) items the average is taken over.
func Summarize(assessments []model.RiskAssessment, totalItems int, openScores []int) ProjectSummary {
	s := ProjectSummary{
		TotalItems:      totalItems,
		CountsByLevel:   make(map[model.RiskLevel]int),
		CountsByFinding: make(map[string]int),
	}
	for _, a := range assessments {
		s.CountsByLevel[a.Level]++
		for _, f := range a.Findings {
			s.CountsByFinding[f.Code]++
		}
		if a.Score > s.HighestScore {
			s.HighestScore = a.Score
		}
	}
	if len(openScores) > 0 {
		sum := 0
		for _, sc := range openScores {
			sum += sc
		}
		s.AverageScore = float64(sum) / float64(len(openScores))
	}
	return s
}
