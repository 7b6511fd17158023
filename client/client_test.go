package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestServer(t *testing.T, handler func(req graphQLRequest) (any, error)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		data, err := handler(req)
		if err != nil {
			json.NewEncoder(w).Encode(graphQLEnvelope{Errors: []graphQLError{{Message: err.Error()}}})
			return
		}
		raw, _ := json.Marshal(data)
		json.NewEncoder(w).Encode(graphQLEnvelope{Data: raw})
	}))
}

func TestFetchProjectPageExtractsKnownFields(t *testing.T) {
	srv := newTestServer(t, func(req graphQLRequest) (any, error) {
		return map[string]any{
			"node": map[string]any{
				"items": map[string]any{
					"pageInfo": map[string]any{"hasNextPage": false, "endCursor": ""},
					"nodes": []map[string]any{
						{
							"id": "item1",
							"content": map[string]any{
								"number": 42,
								"title":  "Build the thing",
								"state":  "OPEN",
								"subIssues": map[string]any{"nodes": []any{}},
								"blockedBy": map[string]any{"nodes": []any{}},
								"assignees": map[string]any{"nodes": []any{}},
							},
							"fieldValues": map[string]any{
								"nodes": []map[string]any{
									{"field": map[string]any{"Name": "Start Date"}, "date": "2026-01-05"},
									{"field": map[string]any{"Name": "Estimate"}, "name": "M"},
									{"field": map[string]any{"Name": "start date"}, "date": "2099-01-01"},
								},
							},
						},
					},
				},
			},
		}, nil
	})
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "tok", 5*time.Second, zerolog.Nop())
	items, cursor, hasNext, err := c.FetchProjectPage(context.Background(), ProjectRef{ExternalProjectID: "PVT_1"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hasNext || cursor != "" {
		t.Fatalf("expected no next page, got hasNext=%v cursor=%q", hasNext, cursor)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	it := items[0]
	if it.IssueNumber != 42 || it.Title != "Build the thing" || !it.Open {
		t.Fatalf("unexpected item: %+v", it)
	}
	if it.StartDate == nil || it.StartDate.Format("2006-01-02") != "2026-01-05" {
		t.Fatalf("expected Start Date to be extracted (case-sensitive match), got %v", it.StartDate)
	}
	if it.Estimate == nil || *it.Estimate != "M" {
		t.Fatalf("expected estimate M, got %v", it.Estimate)
	}
}

func TestFetchAllItemsStopsAtHardCap(t *testing.T) {
	var calls int
	srv := newTestServer(t, func(req graphQLRequest) (any, error) {
		calls++
		nodes := make([]map[string]any, pageSize)
		for i := range nodes {
			nodes[i] = map[string]any{
				"id": "x",
				"content": map[string]any{
					"number":    calls*pageSize + i,
					"subIssues": map[string]any{"nodes": []any{}},
					"blockedBy": map[string]any{"nodes": []any{}},
					"assignees": map[string]any{"nodes": []any{}},
				},
				"fieldValues": map[string]any{"nodes": []any{}},
			}
		}
		return map[string]any{
			"node": map[string]any{
				"items": map[string]any{
					"pageInfo": map[string]any{"hasNextPage": true, "endCursor": "next"},
					"nodes":    nodes,
				},
			},
		}, nil
	})
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "tok", 5*time.Second, zerolog.Nop())
	items, limitReached, err := c.FetchAllItems(context.Background(), ProjectRef{ExternalProjectID: "PVT_1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !limitReached {
		t.Fatal("expected limitReached to be true")
	}
	if len(items) != maxItems {
		t.Fatalf("expected exactly %d items, got %d", maxItems, len(items))
	}
}

func TestFieldExistsCaseFolded(t *testing.T) {
	defs := []FieldDef{{Name: "Start Date"}, {Name: " Target Date "}}
	if !FieldExistsCaseFolded(defs, "start date") {
		t.Fatal("expected case-folded match on Start Date")
	}
	if !FieldExistsCaseFolded(defs, "TARGET DATE") {
		t.Fatal("expected trimmed+case-folded match on Target Date")
	}
	if FieldExistsCaseFolded(defs, "Actual End Date") {
		t.Fatal("expected no match for a field that does not exist")
	}
}

func TestResolveFieldIDsIsCaseSensitive(t *testing.T) {
	srv := newTestServer(t, func(req graphQLRequest) (any, error) {
		return map[string]any{
			"node": map[string]any{
				"fields": map[string]any{
					"nodes": []map[string]any{
						{"id": "F_1", "name": "Start Date"},
						{"id": "F_2", "name": "start date"}, // differently-cased duplicate must not bind
					},
				},
			},
		}, nil
	})
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "tok", 5*time.Second, zerolog.Nop())
	ids, err := c.ResolveFieldIDs(context.Background(), ProjectRef{ExternalProjectID: "PVT_1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ids.StartDate != "F_1" {
		t.Fatalf("expected case-sensitive match to F_1, got %q", ids.StartDate)
	}
}

func TestWriteDateFieldPropagatesUpstreamError(t *testing.T) {
	srv := newTestServer(t, func(req graphQLRequest) (any, error) {
		return nil, errUpstream
	})
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "tok", 5*time.Second, zerolog.Nop())
	err := c.WriteDateField(context.Background(), ProjectRef{ExternalProjectID: "PVT_1"}, "item1", "field1", time.Now())
	if err == nil {
		t.Fatal("expected error to propagate")
	}
}

var errUpstream = &testUpstreamError{}

type testUpstreamError struct{}

func (e *testUpstreamError) Error() string { return "rate limited" }
