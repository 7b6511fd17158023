package fieldsetup

import (
	"context"
	"testing"
	"time"

	"github.com/kestrelsched/engine/client"
	"github.com/kestrelsched/engine/model"
)

type fakeClient struct {
	fields  []client.FieldDef
	created []client.FieldDef
}

func (f *fakeClient) FetchProjectPage(ctx context.Context, ref client.ProjectRef, cursor string) ([]*model.Item, string, bool, error) {
	return nil, "", false, nil
}
func (f *fakeClient) FetchAllItems(ctx context.Context, ref client.ProjectRef) ([]*model.Item, bool, error) {
	return nil, false, nil
}
func (f *fakeClient) ResolveFieldIDs(ctx context.Context, ref client.ProjectRef) (model.FieldIDs, error) {
	return model.FieldIDs{}, nil
}
func (f *fakeClient) WriteDateField(ctx context.Context, ref client.ProjectRef, itemID, fieldID string, date time.Time) error {
	return nil
}
func (f *fakeClient) ListFields(ctx context.Context, ref client.ProjectRef) ([]client.FieldDef, error) {
	return f.fields, nil
}
func (f *fakeClient) CreateField(ctx context.Context, ref client.ProjectRef, def client.FieldDef) (string, error) {
	f.created = append(f.created, def)
	return "new_field_id", nil
}
func (f *fakeClient) HealthCheck(ctx context.Context) error { return nil }

func TestEnsureCreatesMissingFreeTierFields(t *testing.T) {
	fc := &fakeClient{fields: []client.FieldDef{{Name: "start date"}}} // case-folded existing match
	created, err := Ensure(context.Background(), fc, client.ProjectRef{}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("expected 3 Free-tier fields created (Target Date, Actual End Date, Estimate), got %d: %v", len(created), created)
	}
	for _, name := range created {
		if name == "Baseline Start" || name == "Baseline Target" || name == "Confidence" {
			t.Fatalf("Pro-only field %q must not be created on a Free installation", name)
		}
	}
}

func TestEnsureCreatesProOnlyFieldsWhenPro(t *testing.T) {
	fc := &fakeClient{}
	created, err := Ensure(context.Background(), fc, client.ProjectRef{}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(created) != len(managedFields) {
		t.Fatalf("expected all %d managed fields created, got %d", len(managedFields), len(created))
	}
}

func TestEnsureAppliesColorCycleToSelectOptions(t *testing.T) {
	fc := &fakeClient{}
	if _, err := Ensure(context.Background(), fc, client.ProjectRef{}, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, def := range fc.created {
		if def.Kind != "SINGLE_SELECT" {
			continue
		}
		for i, opt := range def.Options {
			if opt.Color != palette[i%len(palette)] {
				t.Fatalf("field %q option %d: expected color %s, got %s", def.Name, i, palette[i%len(palette)], opt.Color)
			}
		}
	}
}

func TestEnsureSkipsAlreadyExistingFieldsCaseInsensitively(t *testing.T) {
	fc := &fakeClient{fields: []client.FieldDef{
		{Name: "START DATE"}, {Name: "target date"}, {Name: "Actual End Date"}, {Name: "estimate"},
	}}
	created, err := Ensure(context.Background(), fc, client.ProjectRef{}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("expected no fields created when all already exist, got %v", created)
	}
}
