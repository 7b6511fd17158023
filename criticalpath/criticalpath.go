// Package criticalpath implements the CPM forward/backward pass over an
// item dependency graph (spec.md §4.6): early/late start and finish,
// per-item slack, and the critical node set.
package criticalpath

import "sort"

const epsilon = 1e-3

// Node is one item's CPM input: its duration in working days and the issue
// numbers of its predecessors (blockers). Only leaves contribute duration —
// summaries pass duration 0, per the spec's explicit decision in its open
// questions (contrast with the source, which double-counts).
type Node struct {
	IssueNumber int
	Duration    int
	Predecessors []int
}

// Result is one item's computed CPM values.
type Result struct {
	IssueNumber int
	EarlyStart  float64
	EarlyFinish float64
	LateStart   float64
	LateFinish  float64
	Slack       float64
	Critical    bool
}

// Analyze runs the forward and backward CPM passes over nodes, given a
// topological order (every node after all its predecessors). Returns
// critical nodes sorted by earlyStart and non-critical nodes sorted
// ascending by slack.
func Analyze(nodes []Node, order []int) (critical []Result, nonCritical []Result) {
	byNumber := make(map[int]Node, len(nodes))
	for _, n := range nodes {
		byNumber[n.IssueNumber] = n
	}

	successors := make(map[int][]int)
	for _, n := range nodes {
		for _, p := range n.Predecessors {
			successors[p] = append(successors[p], n.IssueNumber)
		}
	}

	earlyStart := make(map[int]float64)
	earlyFinish := make(map[int]float64)
	for _, num := range order {
		n := byNumber[num]
		var es float64
		for _, p := range n.Predecessors {
			if ef, ok := earlyFinish[p]; ok && ef > es {
				es = ef
			}
		}
		earlyStart[num] = es
		earlyFinish[num] = es + float64(n.Duration)
	}

	projectEnd := 0.0
	for _, ef := range earlyFinish {
		if ef > projectEnd {
			projectEnd = ef
		}
	}

	lateStart := make(map[int]float64)
	lateFinish := make(map[int]float64)
	for i := len(order) - 1; i >= 0; i-- {
		num := order[i]
		n := byNumber[num]
		succs := successors[num]
		var lf float64
		if len(succs) == 0 {
			lf = projectEnd
		} else {
			lf = -1
			for _, s := range succs {
				if ls, ok := lateStart[s]; ok && (lf < 0 || ls < lf) {
					lf = ls
				}
			}
			if lf < 0 {
				lf = projectEnd
			}
		}
		lateFinish[num] = lf
		lateStart[num] = lf - float64(n.Duration)
	}

	var results []Result
	for _, num := range order {
		slack := lateStart[num] - earlyStart[num]
		results = append(results, Result{
			IssueNumber: num,
			EarlyStart:  earlyStart[num],
			EarlyFinish: earlyFinish[num],
			LateStart:   lateStart[num],
			LateFinish:  lateFinish[num],
			Slack:       slack,
			Critical:    abs(slack) < epsilon,
		})
	}

	for _, r := range results {
		if r.Critical {
			critical = append(critical, r)
		} else {
			nonCritical = append(nonCritical, r)
		}
	}
	sort.Slice(critical, func(i, j int) bool { return critical[i].EarlyStart < critical[j].EarlyStart })
	sort.Slice(nonCritical, func(i, j int) bool { return nonCritical[i].Slack < nonCritical[j].Slack })
	return critical, nonCritical
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
