package client

import (
	"context"
	"fmt"
	"time"

	"github.com/kestrelsched/engine/model"
)

const itemsQuery = `
query($project: ID!, $cursor: String) {
  node(id: $project) {
    ... on ProjectV2 {
      items(first: 100, after: $cursor) {
		pageInfo { hasNextPage endCursor }
		nodes {
			id
			content {
				... on Issue {
					number
					title
					state
					closedAt
					milestone { number title description dueOn state url }
					parent { number }
					subIssues(first: 100) { nodes { number } }
					blockedBy: timelineItems { nodes { number } }
					assignees(first: 20) { nodes { login name avatarUrl } }
				}
			}
			fieldValues(first: 20) {
				nodes {
					... on ProjectV2ItemFieldDateValue { field { name } date }
					... on ProjectV2ItemFieldSingleSelectValue { field { name } name }
					... on ProjectV2ItemFieldNumberValue { field { name } number }
					... on ProjectV2ItemFieldTextValue { field { name } text }
				}
			}
		}
      }
    }
  }
}`

type itemsPage struct {
	Node struct {
		Items struct {
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
			Nodes []itemNode `json:"nodes"`
		} `json:"items"`
	} `json:"node"`
}

type itemNode struct {
	ID      string `json:"id"`
	Content struct {
		Number    int        `json:"number"`
		Title     string     `json:"title"`
		State     string     `json:"state"`
		ClosedAt  *time.Time `json:"closedAt"`
		Milestone *struct {
			Number      int        `json:"number"`
			Title       string     `json:"title"`
			Description string     `json:"description"`
			DueOn       *time.Time `json:"dueOn"`
			State       string     `json:"state"`
			URL         string     `json:"url"`
		} `json:"milestone"`
		Parent *struct {
			Number int `json:"number"`
		} `json:"parent"`
		SubIssues struct {
			Nodes []struct {
				Number int `json:"number"`
			} `json:"nodes"`
		} `json:"subIssues"`
		BlockedBy struct {
			Nodes []struct {
				Number int `json:"number"`
			} `json:"nodes"`
		} `json:"blockedBy"`
		Assignees struct {
			Nodes []struct {
				Login     string `json:"login"`
				Name      string `json:"name"`
				AvatarURL string `json:"avatarUrl"`
			} `json:"nodes"`
		} `json:"assignees"`
	} `json:"content"`
	FieldValues struct {
		Nodes []fieldValueNode `json:"nodes"`
	} `json:"fieldValues"`
}

type fieldValueNode struct {
	Field  struct{ Name string } `json:"field"`
	Date   string                `json:"date,omitempty"`
	Name   string                `json:"name,omitempty"`
	Number *float64              `json:"number,omitempty"`
	Text   string                `json:"text,omitempty"`
}

// FetchProjectPage requests one page (at most 100 items) of a project's
// items, extracting the nine known fields by case-sensitive display-name
// match (spec.md §4.2).
func (c *HTTPClient) FetchProjectPage(ctx context.Context, ref ProjectRef, cursor string) ([]*model.Item, string, bool, error) {
	var page itemsPage
	vars := map[string]any{"project": ref.ExternalProjectID}
	if cursor != "" {
		vars["cursor"] = cursor
	}
	if err := c.do(ctx, itemsQuery, vars, &page); err != nil {
		return nil, "", false, fmt.Errorf("fetching project page: %w", err)
	}

	items := make([]*model.Item, 0, len(page.Node.Items.Nodes))
	for _, n := range page.Node.Items.Nodes {
		items = append(items, toModelItem(n))
	}
	return items, page.Node.Items.PageInfo.EndCursor, page.Node.Items.PageInfo.HasNextPage, nil
}

// FetchAllItems paginates a project to completion, stopping at the
// 1,000-item hard cap (spec.md §4.2) and reporting whether it was hit.
func (c *HTTPClient) FetchAllItems(ctx context.Context, ref ProjectRef) ([]*model.Item, bool, error) {
	var all []*model.Item
	cursor := ""
	for {
		items, next, hasNext, err := c.FetchProjectPage(ctx, ref, cursor)
		if err != nil {
			return nil, false, err
		}
		all = append(all, items...)
		if len(all) >= maxItems {
			c.logger.Warn().
				Str("project", ref.ExternalProjectID).
				Int("cap", maxItems).
				Msg("project item fetch hit the hard pagination cap")
			return all[:maxItems], true, nil
		}
		if !hasNext {
			return all, false, nil
		}
		cursor = next
	}
}

func toModelItem(n itemNode) *model.Item {
	it := &model.Item{
		ExternalID:  n.ID,
		IssueNumber: n.Content.Number,
		Title:       n.Content.Title,
		Open:        n.Content.State == "OPEN",
		ClosedAt:    n.Content.ClosedAt,
	}
	if n.Content.Parent != nil {
		pn := n.Content.Parent.Number
		it.ParentNumber = &pn
	}
	for _, s := range n.Content.SubIssues.Nodes {
		it.SubIssues = append(it.SubIssues, s.Number)
	}
	for _, b := range n.Content.BlockedBy.Nodes {
		it.BlockedBy = append(it.BlockedBy, b.Number)
	}
	for _, a := range n.Content.Assignees.Nodes {
		it.Assignees = append(it.Assignees, model.Assignee{Login: a.Login, Name: a.Name, AvatarURL: a.AvatarURL})
	}
	if n.Content.Milestone != nil {
		m := n.Content.Milestone
		it.Milestone = &model.Milestone{
			Number:      m.Number,
			Title:       m.Title,
			Description: m.Description,
			DueOn:       m.DueOn,
			Open:        m.State == "OPEN",
			URL:         m.URL,
		}
	}

	for _, fv := range n.FieldValues.Nodes {
		applyFieldValue(it, fv)
	}
	return it
}

// applyFieldValue extracts one of the nine known logical fields from a raw
// field value node by exact (case-sensitive) display-name match.
func applyFieldValue(it *model.Item, fv fieldValueNode) {
	logical, ok := logicalFieldNames[fv.Field.Name]
	if !ok {
		return
	}
	switch logical {
	case "startDate":
		it.StartDate = parseDatePtr(fv.Date)
	case "targetDate":
		it.TargetDate = parseDatePtr(fv.Date)
	case "actualEnd":
		it.ActualEndDate = parseDatePtr(fv.Date)
	case "baselineStart":
		it.BaselineStart = parseDatePtr(fv.Date)
	case "baselineTarget":
		it.BaselineTarget = parseDatePtr(fv.Date)
	case "estimate":
		if fv.Name != "" {
			e := model.Estimate(fv.Name)
			it.Estimate = &e
		}
	case "confidence":
		if fv.Name != "" {
			c := model.Confidence(fv.Name)
			it.Confidence = &c
		}
	case "percentComplete":
		if fv.Number != nil {
			p := int(*fv.Number)
			it.PercentComplete = &p
		}
	case "status":
		it.Status = fv.Name
	}
}

func parseDatePtr(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}
