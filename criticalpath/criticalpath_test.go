package criticalpath

import "testing"

func TestLinearChainIsAllCritical(t *testing.T) {
	nodes := []Node{
		{IssueNumber: 1, Duration: 5},
		{IssueNumber: 2, Duration: 3, Predecessors: []int{1}},
		{IssueNumber: 3, Duration: 4, Predecessors: []int{2}},
	}
	critical, nonCritical := Analyze(nodes, []int{1, 2, 3})
	if len(critical) != 3 {
		t.Fatalf("expected all 3 nodes critical in a linear chain, got %d: %+v", len(critical), critical)
	}
	if len(nonCritical) != 0 {
		t.Fatalf("expected no non-critical nodes, got %+v", nonCritical)
	}
	if critical[0].IssueNumber != 1 || critical[2].IssueNumber != 3 {
		t.Fatalf("expected critical nodes sorted by earlyStart, got %+v", critical)
	}
}

func TestParallelBranchHasSlack(t *testing.T) {
	// 1 -> 2 (long, 10 days), 1 -> 3 (short, 2 days). Both feed into 4.
	nodes := []Node{
		{IssueNumber: 1, Duration: 1},
		{IssueNumber: 2, Duration: 10, Predecessors: []int{1}},
		{IssueNumber: 3, Duration: 2, Predecessors: []int{1}},
		{IssueNumber: 4, Duration: 1, Predecessors: []int{2, 3}},
	}
	critical, nonCritical := Analyze(nodes, []int{1, 2, 3, 4})

	criticalSet := map[int]bool{}
	for _, r := range critical {
		criticalSet[r.IssueNumber] = true
	}
	if !criticalSet[1] || !criticalSet[2] || !criticalSet[4] {
		t.Fatalf("expected 1, 2, 4 on the critical path, got %+v", critical)
	}
	if len(nonCritical) != 1 || nonCritical[0].IssueNumber != 3 {
		t.Fatalf("expected node 3 to be the sole non-critical node with slack, got %+v", nonCritical)
	}
	if nonCritical[0].Slack <= 0 {
		t.Fatalf("expected positive slack on the short branch, got %v", nonCritical[0].Slack)
	}
}
