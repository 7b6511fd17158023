// Package resource implements the Resource Aggregator (spec.md §4.7):
// per-assignee workload accumulation and capacity bucketing.
package resource

import "github.com/kestrelsched/engine/model"

const (
	normalCapacityDays  = 50
	normalCapacityItems = 5
)

// Workload is one assignee's accumulated item and duration counts.
type Workload struct {
	Assignee       string
	TotalItems     int
	CompletedItems int
	TotalDays      int
	RemainingDays  int
	Bucket         string
}

// Summary is the Resource Aggregator's project-level output.
type Summary struct {
	Workloads      []Workload
	UnassignedItems int
}

// Aggregate accumulates workload per assignee across a project's items.
// durationDays is each item's working-day duration (leaf items only
// meaningfully contribute; callers pass 0 for summaries).
func Aggregate(items []*model.Item, durationDays map[int]int) Summary {
	byAssignee := make(map[string]*Workload)
	unassigned := 0

	for _, it := range items {
		duration := durationDays[it.IssueNumber]
		if len(it.Assignees) == 0 {
			unassigned++
			continue
		}
		for _, a := range it.Assignees {
			w, ok := byAssignee[a.Login]
			if !ok {
				w = &Workload{Assignee: a.Login}
				byAssignee[a.Login] = w
			}
			w.TotalItems++
			w.TotalDays += duration
			if it.IsCompleted() {
				w.CompletedItems++
			} else {
				w.RemainingDays += duration
			}
		}
	}

	out := make([]Workload, 0, len(byAssignee))
	for _, w := range byAssignee {
		w.Bucket = bucketFor(*w)
		out = append(out, *w)
	}
	return Summary{Workloads: out, UnassignedItems: unassigned}
}

// bucketFor applies the spec.md §4.7 threshold table. openItems is
// TotalItems - CompletedItems.
func bucketFor(w Workload) string {
	openItems := w.TotalItems - w.CompletedItems
	switch {
	case w.RemainingDays > 75 || openItems > 7:
		return "overloaded"
	case w.RemainingDays > normalCapacityDays || openItems > normalCapacityItems:
		return "high"
	case w.RemainingDays < 15 && openItems < 2:
		return "low"
	default:
		return "normal"
	}
}
