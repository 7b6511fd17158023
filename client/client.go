// Package client talks to the upstream project-tracking service: paginated
// item queries, date-field writes, and field introspection/creation
// (spec.md §4.2/§6.2). It is the engine's only network-facing dependency.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kestrelsched/engine/model"
)

// pageSize is the maximum number of items requested per page.
const pageSize = 100

// maxItems is the hard cap on items fetched for a single project, to bound
// memory and upstream API use (spec.md §4.2).
const maxItems = 1000

// ProjectRef identifies one project on the upstream service.
type ProjectRef struct {
	Owner             string
	ProjectNumber     int
	ExternalProjectID string
}

// Client is the abstract contract the Date Engine and field-resolution code
// depend on (spec.md §6.2). HTTPClient is the only production
// implementation; tests substitute a stub.
type Client interface {
	FetchProjectPage(ctx context.Context, ref ProjectRef, cursor string) (items []*model.Item, nextCursor string, hasNext bool, err error)
	FetchAllItems(ctx context.Context, ref ProjectRef) (items []*model.Item, limitReached bool, err error)
	ResolveFieldIDs(ctx context.Context, ref ProjectRef) (model.FieldIDs, error)
	WriteDateField(ctx context.Context, ref ProjectRef, itemID, fieldID string, date time.Time) error
	ListFields(ctx context.Context, ref ProjectRef) ([]FieldDef, error)
	CreateField(ctx context.Context, ref ProjectRef, def FieldDef) (id string, err error)
	HealthCheck(ctx context.Context) error
}

// FieldDef describes one field as returned by or submitted to field
// introspection/creation (spec.md §6.2).
type FieldDef struct {
	ID      string
	Name    string
	Kind    string // "DATE" or "SINGLE_SELECT"
	Options []SelectOption
}

// SelectOption is one option of a SINGLE_SELECT field definition.
type SelectOption struct {
	Name  string
	Color string
}

// logicalFieldNames is the display-name lookup table used by
// ResolveFieldIDs. Matching is case-sensitive, per spec.md §4.2.
var logicalFieldNames = map[string]string{
	"Start Date":        "startDate",
	"Target Date":       "targetDate",
	"Actual End Date":   "actualEnd",
	"Baseline Start":    "baselineStart",
	"Baseline Target":   "baselineTarget",
	"Estimate":          "estimate",
	"Confidence":        "confidence",
	"% Complete":        "percentComplete",
	"Status":            "status",
}

// HTTPClient is the production Client, issuing GraphQL-style POST requests
// against the upstream service's API endpoint.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewHTTPClient builds an HTTPClient bound to one installation's access
// token, with the given per-call deadline (spec.md §5: 10s upstream calls).
func NewHTTPClient(baseURL, token string, callTimeout time.Duration, logger zerolog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: callTimeout,
		},
		logger: logger,
	}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors,omitempty"`
}

func (c *HTTPClient) do(ctx context.Context, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling upstream: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading upstream response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("upstream returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var env graphQLEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decoding upstream envelope: %w", err)
	}
	if len(env.Errors) > 0 {
		return fmt.Errorf("upstream error: %s", env.Errors[0].Message)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decoding upstream data: %w", err)
		}
	}
	return nil
}

// HealthCheck issues a minimal query to confirm the upstream service is
// reachable and the token is valid.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	return c.do(ctx, `query { viewer { login } }`, nil, nil)
}
