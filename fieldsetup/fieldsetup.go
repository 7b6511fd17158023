// Package fieldsetup implements Field Auto-Creation (spec.md §4.11): for
// each field the engine manages, a case-folded existence check against the
// project's current fields, creating whatever is missing with a DATE or
// SINGLE_SELECT definition. Pro-tier fields are skipped on Free installations.
package fieldsetup

import (
	"context"
	"fmt"

	"github.com/kestrelsched/engine/client"
)

// palette is the fixed eight-color cycle spec.md §4.11 assigns to
// SINGLE_SELECT options, in order.
var palette = []string{"GRAY", "BLUE", "GREEN", "YELLOW", "ORANGE", "RED", "PINK", "PURPLE"}

type managedField struct {
	displayName string
	kind        string
	options     []string
	proOnly     bool
}

// managedFields is every field the Date Engine reads or writes by display
// name (spec.md §4.2's logical field table), minus the two read-only
// informational fields (% Complete, Status) the engine never creates.
var managedFields = []managedField{
	{displayName: "Start Date", kind: "DATE"},
	{displayName: "Target Date", kind: "DATE"},
	{displayName: "Actual End Date", kind: "DATE"},
	{displayName: "Baseline Start", kind: "DATE", proOnly: true},
	{displayName: "Baseline Target", kind: "DATE", proOnly: true},
	{displayName: "Estimate", kind: "SINGLE_SELECT", options: []string{"XS", "S", "M", "L", "XL", "XXL"}},
	{displayName: "Confidence", kind: "SINGLE_SELECT", options: []string{"High", "Medium", "Low"}, proOnly: true},
}

// Ensure creates every managed field missing from the project, returning the
// display names it created. isPro gates the three Pro-only fields.
func Ensure(ctx context.Context, upstream client.Client, ref client.ProjectRef, isPro bool) ([]string, error) {
	existing, err := upstream.ListFields(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("listing fields: %w", err)
	}

	var created []string
	for _, mf := range managedFields {
		if mf.proOnly && !isPro {
			continue
		}
		if client.FieldExistsCaseFolded(existing, mf.displayName) {
			continue
		}

		def := client.FieldDef{Name: mf.displayName, Kind: mf.kind}
		for i, opt := range mf.options {
			def.Options = append(def.Options, client.SelectOption{Name: opt, Color: palette[i%len(palette)]})
		}
		if _, err := upstream.CreateField(ctx, ref, def); err != nil {
			return created, fmt.Errorf("creating field %q: %w", mf.displayName, err)
		}
		created = append(created, mf.displayName)
	}
	return created, nil
}
