package config

import (
	"encoding/json"
	"time"

	"github.com/kestrelsched/engine/model"
)

// Settings is the installation-scoped configuration of spec.md §4.12:
// weekend mask, holidays, estimate/confidence tables, plan tier, and the
// billing customer id. Defaults are applied whenever a key is absent.
type Settings struct {
	WeekendDays      []int             `json:"weekendDays"`
	Holidays         []string          `json:"holidays"` // ISO dates, YYYY-MM-DD
	EstimateDays     map[string]int    `json:"estimateDays"`
	ConfidenceBuffer map[string]int    `json:"confidenceBuffer"`
	Plan             model.PlanTier    `json:"plan"`
	BillingCustomerID string           `json:"billingCustomerId"`
}

// DefaultEstimateDays is the spec.md §3 default Estimate Table.
func DefaultEstimateDays() map[string]int {
	return map[string]int{"XS": 2, "S": 5, "M": 10, "L": 15, "XL": 25, "XXL": 40}
}

// DefaultConfidenceBuffer is the spec.md §3 default Confidence Table.
func DefaultConfidenceBuffer() map[string]int {
	return map[string]int{"High": 0, "Medium": 2, "Low": 5}
}

// DefaultWeekendDays is Sunday(0) and Saturday(6), spec.md's default mask.
func DefaultWeekendDays() []int {
	return []int{0, 6}
}

// DefaultSettings returns an installation's settings before any operator
// customization.
func DefaultSettings() Settings {
	return Settings{
		WeekendDays:      DefaultWeekendDays(),
		Holidays:         nil,
		EstimateDays:     DefaultEstimateDays(),
		ConfidenceBuffer: DefaultConfidenceBuffer(),
		Plan:             model.PlanFree,
	}
}

// ParseSettings decodes a settings JSON blob, applying defaults for any
// field that is absent or zero-valued — spec.md §4.12: "Defaults are
// applied whenever a key is absent."
func ParseSettings(raw string) Settings {
	s := DefaultSettings()
	if raw == "" {
		return s
	}
	var decoded Settings
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return s
	}
	if decoded.WeekendDays != nil {
		s.WeekendDays = decoded.WeekendDays
	}
	if decoded.Holidays != nil {
		s.Holidays = decoded.Holidays
	}
	if decoded.EstimateDays != nil {
		s.EstimateDays = mergeIntMap(s.EstimateDays, decoded.EstimateDays)
	}
	if decoded.ConfidenceBuffer != nil {
		s.ConfidenceBuffer = mergeIntMap(s.ConfidenceBuffer, decoded.ConfidenceBuffer)
	}
	if decoded.Plan != "" {
		s.Plan = decoded.Plan
	}
	if decoded.BillingCustomerID != "" {
		s.BillingCustomerID = decoded.BillingCustomerID
	}
	return s
}

func mergeIntMap(base, override map[string]int) map[string]int {
	merged := make(map[string]int, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

// Encode serializes Settings back to JSON for atomic whole-object
// replacement, per spec.md §4.12.
func (s Settings) Encode() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// HolidayDates parses the ISO holiday strings into time.Time values in UTC,
// skipping any that fail to parse.
func (s Settings) HolidayDates() []time.Time {
	out := make([]time.Time, 0, len(s.Holidays))
	for _, h := range s.Holidays {
		if t, err := time.Parse("2006-01-02", h); err == nil {
			out = append(out, t)
		}
	}
	return out
}

// EstimateDaysOrDefault looks up the working-day duration for an estimate
// size, falling back to 10 when the table has no entry (spec.md §3).
func (s Settings) EstimateDaysOrDefault(e string) int {
	if d, ok := s.EstimateDays[e]; ok {
		return d
	}
	return 10
}

// ConfidenceBufferOrDefault looks up the buffer for a confidence level,
// falling back to the Medium buffer when absent (spec.md §4.4).
func (s Settings) ConfidenceBufferOrDefault(c string) int {
	if b, ok := s.ConfidenceBuffer[c]; ok {
		return b
	}
	if b, ok := s.ConfidenceBuffer["Medium"]; ok {
		return b
	}
	return DefaultConfidenceBuffer()["Medium"]
}
