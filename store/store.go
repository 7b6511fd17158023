// Package store holds the per-recomputation snapshot of a project's items
// (spec.md §4.3): the flat list fetched from the upstream service, plus
// three adjacency indexes derived from it in a single pass. A Store is
// built fresh for every recomputation and discarded afterward — it carries
// no state across recomputations.
package store

import "github.com/kestrelsched/engine/model"

// Store is the in-memory snapshot for one (installation, project)
// recomputation.
type Store struct {
	items map[int]*model.Item

	// dependencies maps an issue number to the issue numbers that block it.
	dependencies map[int][]int
	// parentChildren maps a parent issue number to its sub-issue numbers.
	parentChildren map[int][]int
	// milestoneMembers maps a milestone number to its member issue numbers.
	milestoneMembers map[int][]int
}

// New builds a Store from a flat item list, indexing dependencies,
// parent/child, and milestone membership in one pass over items.
func New(items []*model.Item) *Store {
	s := &Store{
		items:            make(map[int]*model.Item, len(items)),
		dependencies:     make(map[int][]int),
		parentChildren:   make(map[int][]int),
		milestoneMembers: make(map[int][]int),
	}
	for _, it := range items {
		s.items[it.IssueNumber] = it
		if len(it.BlockedBy) > 0 {
			s.dependencies[it.IssueNumber] = append([]int(nil), it.BlockedBy...)
		}
		if it.ParentNumber != nil {
			s.parentChildren[*it.ParentNumber] = append(s.parentChildren[*it.ParentNumber], it.IssueNumber)
		}
		if it.Milestone != nil {
			s.milestoneMembers[it.Milestone.Number] = append(s.milestoneMembers[it.Milestone.Number], it.IssueNumber)
		}
	}
	return s
}

// Get returns the item for an issue number, or false if it is not in the
// snapshot (e.g. a blocker number that no longer exists upstream).
func (s *Store) Get(issueNumber int) (*model.Item, bool) {
	it, ok := s.items[issueNumber]
	return it, ok
}

// All returns every item in the snapshot, in no particular order.
func (s *Store) All() []*model.Item {
	out := make([]*model.Item, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it)
	}
	return out
}

// Len returns the number of items in the snapshot.
func (s *Store) Len() int { return len(s.items) }

// Blockers returns the issue numbers that block the given issue.
func (s *Store) Blockers(issueNumber int) []int {
	return s.dependencies[issueNumber]
}

// Children returns the sub-issue numbers of a parent issue.
func (s *Store) Children(issueNumber int) []int {
	return s.parentChildren[issueNumber]
}

// HasChildren reports whether an issue has any sub-issues recorded in this
// snapshot.
func (s *Store) HasChildren(issueNumber int) bool {
	return len(s.parentChildren[issueNumber]) > 0
}

// Parents returns every issue number that has at least one child — the set
// the Date Engine's roll-up step iterates over.
func (s *Store) Parents() []int {
	out := make([]int, 0, len(s.parentChildren))
	for parent := range s.parentChildren {
		out = append(out, parent)
	}
	return out
}

// MilestoneMembers returns the issue numbers belonging to a milestone.
func (s *Store) MilestoneMembers(milestoneNumber int) []int {
	return s.milestoneMembers[milestoneNumber]
}

// TopologicalOrder performs the mark-on-enter, append-on-exit depth-first
// traversal of spec.md §4.4 step 2: every item follows all its blockers.
// Missing blocker numbers are tolerated; a cycle terminates recursion at
// the already-visited node rather than looping forever.
func (s *Store) TopologicalOrder() []int {
	visited := make(map[int]bool)
	inProgress := make(map[int]bool)
	var order []int

	var visit func(n int)
	visit = func(n int) {
		if visited[n] {
			return
		}
		if inProgress[n] {
			return
		}
		inProgress[n] = true
		for _, blocker := range s.Blockers(n) {
			if _, ok := s.Get(blocker); ok {
				visit(blocker)
			}
		}
		inProgress[n] = false
		visited[n] = true
		order = append(order, n)
	}

	for _, it := range s.All() {
		visit(it.IssueNumber)
	}
	return order
}
