package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kestrelsched/engine/model"
)

const fieldsQuery = `
query($project: ID!) {
  node(id: $project) {
    ... on ProjectV2 {
      fields(first: 50) {
        nodes {
          ... on ProjectV2FieldCommon { id name }
          ... on ProjectV2SingleSelectField {
            id name
            options { name color }
          }
        }
      }
    }
  }
}`

type fieldsResponse struct {
	Node struct {
		Fields struct {
			Nodes []struct {
				ID      string `json:"id"`
				Name    string `json:"name"`
				Options []struct {
					Name  string `json:"name"`
					Color string `json:"color"`
				} `json:"options"`
			} `json:"nodes"`
		} `json:"fields"`
	} `json:"node"`
}

// ListFields returns the project's field definitions as-is, for the
// field-auto-creation existence check (spec.md §4.11).
func (c *HTTPClient) ListFields(ctx context.Context, ref ProjectRef) ([]FieldDef, error) {
	var resp fieldsResponse
	if err := c.do(ctx, fieldsQuery, map[string]any{"project": ref.ExternalProjectID}, &resp); err != nil {
		return nil, fmt.Errorf("listing fields: %w", err)
	}
	out := make([]FieldDef, 0, len(resp.Node.Fields.Nodes))
	for _, n := range resp.Node.Fields.Nodes {
		def := FieldDef{ID: n.ID, Name: n.Name}
		if len(n.Options) > 0 {
			def.Kind = "SINGLE_SELECT"
			for _, o := range n.Options {
				def.Options = append(def.Options, SelectOption{Name: o.Name, Color: o.Color})
			}
		} else {
			def.Kind = "DATE"
		}
		out = append(out, def)
	}
	return out, nil
}

// ResolveFieldIDs queries a project's field definitions once and maps the
// nine known logical names to their upstream field ids by case-sensitive
// display-name match (spec.md §4.2).
func (c *HTTPClient) ResolveFieldIDs(ctx context.Context, ref ProjectRef) (model.FieldIDs, error) {
	defs, err := c.ListFields(ctx, ref)
	if err != nil {
		return model.FieldIDs{}, err
	}

	byDisplayName := make(map[string]string, len(defs))
	for _, d := range defs {
		byDisplayName[d.Name] = d.ID
	}

	var ids model.FieldIDs
	for displayName, logical := range logicalFieldNames {
		id, ok := byDisplayName[displayName]
		if !ok {
			continue
		}
		switch logical {
		case "startDate":
			ids.StartDate = id
		case "targetDate":
			ids.TargetDate = id
		case "actualEnd":
			ids.ActualEnd = id
		case "baselineStart":
			ids.BaselineStart = id
		case "baselineTarget":
			ids.BaselineTarget = id
		case "estimate":
			ids.Estimate = id
		case "confidence":
			ids.Confidence = id
		case "percentComplete":
			ids.PercentComplete = id
		case "status":
			ids.Status = id
		}
	}
	return ids, nil
}

// FieldExistsCaseFolded reports whether a field with the given display name
// already exists, using trimmed, case-folded comparison — the relaxed rule
// spec.md §4.11 requires specifically for the auto-creation existence
// check (contrast with ResolveFieldIDs's case-sensitive match).
func FieldExistsCaseFolded(defs []FieldDef, displayName string) bool {
	want := strings.ToLower(strings.TrimSpace(displayName))
	for _, d := range defs {
		if strings.ToLower(strings.TrimSpace(d.Name)) == want {
			return true
		}
	}
	return false
}

const writeDateMutation = `
mutation($project: ID!, $item: ID!, $field: ID!, $date: Date!) {
  updateProjectV2ItemFieldValue(input: {
    projectId: $project, itemId: $item, fieldId: $field,
    value: { date: $date }
  }) { clientMutationId }
}`

// WriteDateField sets a single date field on one item. Errors propagate to
// the caller, which records but does not retry locally (spec.md §7).
func (c *HTTPClient) WriteDateField(ctx context.Context, ref ProjectRef, itemID, fieldID string, date time.Time) error {
	vars := map[string]any{
		"project": ref.ExternalProjectID,
		"item":    itemID,
		"field":   fieldID,
		"date":    date.Format("2006-01-02"),
	}
	if err := c.do(ctx, writeDateMutation, vars, nil); err != nil {
		return fmt.Errorf("writing date field: %w", err)
	}
	return nil
}

const createDateFieldMutation = `
mutation($project: ID!, $name: String!) {
  createProjectV2Field(input: { projectId: $project, dataType: DATE, name: $name }) {
    projectV2Field { ... on ProjectV2FieldCommon { id } }
  }
}`

const createSelectFieldMutation = `
mutation($project: ID!, $name: String!, $options: [ProjectV2SingleSelectFieldOptionInput!]!) {
  createProjectV2Field(input: { projectId: $project, dataType: SINGLE_SELECT, name: $name, singleSelectOptions: $options }) {
    projectV2Field { ... on ProjectV2FieldCommon { id } }
  }
}`

type createFieldResponse struct {
	CreateProjectV2Field struct {
		ProjectV2Field struct {
			ID string `json:"id"`
		} `json:"projectV2Field"`
	} `json:"createProjectV2Field"`
}

// CreateField creates a DATE or SINGLE_SELECT field, per the field
// auto-creation path of spec.md §4.11.
func (c *HTTPClient) CreateField(ctx context.Context, ref ProjectRef, def FieldDef) (string, error) {
	var resp createFieldResponse
	var err error
	if def.Kind == "SINGLE_SELECT" {
		options := make([]map[string]string, 0, len(def.Options))
		for _, o := range def.Options {
			options = append(options, map[string]string{"name": o.Name, "color": o.Color})
		}
		err = c.do(ctx, createSelectFieldMutation, map[string]any{
			"project": ref.ExternalProjectID,
			"name":    def.Name,
			"options": options,
		}, &resp)
	} else {
		err = c.do(ctx, createDateFieldMutation, map[string]any{
			"project": ref.ExternalProjectID,
			"name":    def.Name,
		}, &resp)
	}
	if err != nil {
		return "", fmt.Errorf("creating field %q: %w", def.Name, err)
	}
	return resp.CreateProjectV2Field.ProjectV2Field.ID, nil
}
