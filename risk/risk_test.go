package risk

import (
	"testing"
	"time"

	"github.com/kestrelsched/engine/model"
)

var today = time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)

func TestScoreOverdueFinding(t *testing.T) {
	past := today.AddDate(0, 0, -1)
	it := &model.Item{IssueNumber: 1, Open: true, TargetDate: &past}
	a := Score(it, nil, today)
	if !hasFinding(a, "overdue") {
		t.Fatalf("expected overdue finding, got %+v", a.Findings)
	}
	if a.Score < 35 {
		t.Fatalf("expected score >= 35, got %d", a.Score)
	}
}

func TestScoreApproachingDeadlineRequiresLowCompletion(t *testing.T) {
	soon := today.AddDate(0, 0, 3)
	full := 100
	it := &model.Item{IssueNumber: 1, Open: true, TargetDate: &soon, PercentComplete: &full}
	a := Score(it, nil, today)
	if hasFinding(a, "approachingDeadline") {
		t.Fatal("percentComplete=100 should suppress approachingDeadline")
	}
}

func TestScoreBlockedFindingRequiresIncompleteBlocker(t *testing.T) {
	blockerOpen := &model.Item{IssueNumber: 2, Open: true, Status: "In Progress"}
	blockerDone := &model.Item{IssueNumber: 3, Open: false}

	it := &model.Item{IssueNumber: 1, Open: true}
	if a := Score(it, []*model.Item{blockerOpen}, today); !hasFinding(a, "blocked") {
		t.Fatal("expected blocked finding with an incomplete blocker")
	}
	if a := Score(it, []*model.Item{blockerDone}, today); hasFinding(a, "blocked") {
		t.Fatal("a fully completed blocker should not raise the blocked finding")
	}
}

func TestScoreBehindBaseline(t *testing.T) {
	baseline := today
	current := today.AddDate(0, 0, 10)
	it := &model.Item{IssueNumber: 1, Open: true, BaselineTarget: &baseline, TargetDate: &current}
	a := Score(it, nil, today)
	if !hasFinding(a, "behindBaseline") {
		t.Fatal("expected behindBaseline finding")
	}
}

func TestLevelThresholds(t *testing.T) {
	cases := []struct {
		score int
		level model.RiskLevel
	}{
		{0, model.RiskNone},
		{1, model.RiskLow},
		{15, model.RiskMedium},
		{30, model.RiskHigh},
		{50, model.RiskCritical},
	}
	for _, c := range cases {
		if got := levelForScore(c.score); got != c.level {
			t.Fatalf("score %d: expected %s, got %s", c.score, c.level, got)
		}
	}
}

func TestLevelForCompletedIsAlwaysNoneWithNoFindings(t *testing.T) {
	it := &model.Item{IssueNumber: 1, Open: false}
	a := LevelForCompleted(it)
	if a.Level != model.RiskNone || a.Score != 0 || len(a.Findings) != 0 {
		t.Fatalf("expected zero-score none-level assessment with no findings, got %+v", a)
	}
}

func TestSummarizeAggregatesByLevelAndFinding(t *testing.T) {
	assessments := []model.RiskAssessment{
		{IssueNumber: 1, Score: 50, Level: model.RiskCritical, Findings: []model.RiskFinding{{Code: "overdue", Weight: 35}}},
		{IssueNumber: 2, Score: 10, Level: model.RiskLow, Findings: []model.RiskFinding{{Code: "noEstimate", Weight: 10}}},
	}
	s := Summarize(assessments, 5, []int{50, 10})
	if s.TotalItems != 5 {
		t.Fatalf("expected total items 5, got %d", s.TotalItems)
	}
	if s.CountsByLevel[model.RiskCritical] != 1 || s.CountsByLevel[model.RiskLow] != 1 {
		t.Fatalf("unexpected level counts: %+v", s.CountsByLevel)
	}
	if s.HighestScore != 50 {
		t.Fatalf("expected highest score 50, got %d", s.HighestScore)
	}
	if s.AverageScore != 30 {
		t.Fatalf("expected average score 30, got %v", s.AverageScore)
	}
}

func hasFinding(a model.RiskAssessment, code string) bool {
	for _, f := range a.Findings {
		if f.Code == code {
			return true
		}
	}
	return false
}
