package resource

import (
	"testing"

	"github.com/kestrelsched/engine/model"
)

func itemWith(n int, open bool, logins ...string) *model.Item {
	it := &model.Item{IssueNumber: n, Open: open}
	for _, l := range logins {
		it.Assignees = append(it.Assignees, model.Assignee{Login: l})
	}
	return it
}

func TestAggregateCountsUnassigned(t *testing.T) {
	items := []*model.Item{itemWith(1, true), itemWith(2, true, "alice")}
	s := Aggregate(items, nil)
	if s.UnassignedItems != 1 {
		t.Fatalf("expected 1 unassigned item, got %d", s.UnassignedItems)
	}
	if len(s.Workloads) != 1 {
		t.Fatalf("expected 1 workload, got %d", len(s.Workloads))
	}
}

func TestBucketOverloaded(t *testing.T) {
	var items []*model.Item
	for i := 1; i <= 8; i++ {
		items = append(items, itemWith(i, true, "bob"))
	}
	durations := make(map[int]int)
	for i := 1; i <= 8; i++ {
		durations[i] = 1
	}
	s := Aggregate(items, durations)
	if s.Workloads[0].Bucket != "overloaded" {
		t.Fatalf("expected overloaded bucket for 8 open items, got %s", s.Workloads[0].Bucket)
	}
}

func TestBucketLow(t *testing.T) {
	items := []*model.Item{itemWith(1, true, "carol")}
	s := Aggregate(items, map[int]int{1: 2})
	if s.Workloads[0].Bucket != "low" {
		t.Fatalf("expected low bucket, got %s", s.Workloads[0].Bucket)
	}
}

func TestBucketNormal(t *testing.T) {
	items := []*model.Item{itemWith(1, true, "dana"), itemWith(2, true, "dana")}
	s := Aggregate(items, map[int]int{1: 10, 2: 10})
	if s.Workloads[0].Bucket != "normal" {
		t.Fatalf("expected normal bucket, got %s", s.Workloads[0].Bucket)
	}
}
