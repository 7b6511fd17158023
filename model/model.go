// Package model holds the domain types shared by every component of the
// scheduling engine: installations, projects, items, and the transient
// results a recomputation produces.
package model

import "time"

// OwnerKind distinguishes the two kinds of upstream account that can own a
// tracked project.
type OwnerKind string

const (
	OwnerOrganization OwnerKind = "organization"
	OwnerUser         OwnerKind = "user"
)

// PlanTier is the billing tier bound to an Installation.
type PlanTier string

const (
	PlanFree PlanTier = "free"
	PlanPro  PlanTier = "pro"
)

// SubscriptionStatus mirrors the billing provider's subscription lifecycle.
type SubscriptionStatus string

const (
	SubStatusActive    SubscriptionStatus = "active"
	SubStatusTrialing  SubscriptionStatus = "trialing"
	SubStatusCanceled  SubscriptionStatus = "canceled"
	SubStatusSuspended SubscriptionStatus = "suspended"
)

// Installation is one tenant binding between this engine and the upstream
// issue tracker's installation of our integration.
type Installation struct {
	ID                 int64
	OwnerHandle        string
	OwnerKind          OwnerKind
	Plan               PlanTier
	SubStatus          SubscriptionStatus
	SubExpiresAt       *time.Time
	BillingCustomerID  string
	BillingSubID       string
	EncryptedOAuthTok  string // "nonce:tag:ciphertext" hex, empty if not connected
	SettingsJSON       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsPro reports whether the installation currently has Pro features enabled.
func (i *Installation) IsPro() bool {
	return i.Plan == PlanPro && i.SubStatus != SubStatusSuspended
}

// FieldIDs is the project's cache of logical field name -> upstream field id,
// populated lazily by ResolveFieldIDs and refreshed on cache miss.
type FieldIDs struct {
	StartDate        string
	TargetDate        string
	ActualEnd         string
	BaselineStart     string
	BaselineTarget    string
	Estimate          string
	Confidence        string
	PercentComplete   string
	Status            string
}

// Project is one tracked project belonging to an Installation.
type Project struct {
	ID                int64
	InstallationID    int64
	OwnerHandle       string
	ExternalProjectID string
	ProjectNumber     int
	Fields            FieldIDs
	SettingsJSON      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Estimate is a t-shirt size mapping to working days via the Estimate Table.
type Estimate string

const (
	EstimateXS  Estimate = "XS"
	EstimateS   Estimate = "S"
	EstimateM   Estimate = "M"
	EstimateL   Estimate = "L"
	EstimateXL  Estimate = "XL"
	EstimateXXL Estimate = "XXL"
)

// Confidence is the qualitative estimate-quality used to look up a buffer in
// the Confidence Table.
type Confidence string

const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
)

// Milestone is the subset of upstream milestone data the engine needs.
type Milestone struct {
	Number      int
	Title       string
	Description string
	DueOn       *time.Time
	Open        bool
	URL         string
}

// Assignee is one person an item is assigned to.
type Assignee struct {
	Login     string
	Name      string
	AvatarURL string
}

// Item is one tracked issue as surfaced into a project, with its raw field
// values exactly as loaded from the upstream service. The Date Engine treats
// each one as completed, summary or leaf by calling IsCompleted and
// HasChildren; no tagged variant type is built from it.
type Item struct {
	ExternalID    string
	IssueNumber   int
	Title         string
	Open          bool
	ClosedAt      *time.Time
	ParentNumber  *int
	SubIssues     []int
	BlockedBy     []int
	Milestone     *Milestone
	Assignees     []Assignee

	StartDate       *time.Time
	TargetDate       *time.Time
	ActualEndDate    *time.Time
	BaselineStart    *time.Time
	BaselineTarget   *time.Time
	Estimate         *Estimate
	Confidence       *Confidence
	PercentComplete  *int
	Status           string
}

// IsCompleted implements the spec.md §3 invariant: an item is completed if
// its upstream state is closed OR its status field reads "Done".
func (it *Item) IsCompleted() bool {
	return !it.Open || it.Status == "Done"
}

// HasChildren reports whether the item is a summary item per §3/§9.
func (it *Item) HasChildren() bool {
	return len(it.SubIssues) > 0
}

// CalculatedDates is the transient per-recomputation output for one item,
// described in spec.md §3.
type CalculatedDates struct {
	IssueNumber         int
	StartDate           *time.Time
	TargetDate           *time.Time
	EndDateForDependents *time.Time
	DurationDays         int
	BufferDays           int
	DependencyCount      int
	IsCompleted          bool
	IsSummary            bool
	ChildCount           int
}

// RiskLevel is the categorical bucket a Risk Assessment's score falls into.
type RiskLevel string

const (
	RiskNone     RiskLevel = "none"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskFinding is one weighted condition that contributed to an item's score.
type RiskFinding struct {
	Code   string
	Weight int
}

// RiskAssessment is the per-item risk output of the Risk Scorer.
type RiskAssessment struct {
	IssueNumber int
	Score       int
	Level       RiskLevel
	Findings    []RiskFinding
}

// AuditEntry is one row of the durable audit log.
type AuditEntry struct {
	ID             int64
	InstallationID int64
	Action         string
	DetailsJSON    string
	Timestamp      time.Time
}

// RiskSeverity is the operator-assigned severity of a manually curated Risk
// Register Entry (distinct from the computed RiskAssessment above).
type RiskSeverity string

const (
	SeverityCritical RiskSeverity = "critical"
	SeverityHigh     RiskSeverity = "high"
	SeverityMedium   RiskSeverity = "medium"
	SeverityLow      RiskSeverity = "low"
)

// RiskRegisterStatus is the lifecycle state of a Risk Register Entry.
type RiskRegisterStatus string

const (
	RiskRegisterOpen      RiskRegisterStatus = "open"
	RiskRegisterMitigated RiskRegisterStatus = "mitigated"
	RiskRegisterClosed    RiskRegisterStatus = "closed"
)

// RiskRegisterEntry is an operator-authored risk note, persisted and exposed
// via CRUD — see SPEC_FULL.md §3/§4.16. Never written by the Date Engine.
type RiskRegisterEntry struct {
	ID             int64
	InstallationID int64
	ProjectNumber  int
	Title          string
	Description    string
	Severity       RiskSeverity
	Status         RiskRegisterStatus
	Owner          string
	LinkedIssues   []int
	MitigationPlan string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
