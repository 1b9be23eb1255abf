/*
dto.go - Request and response bodies for the reporting API

PURPOSE:
  JSON shapes that are specific to the HTTP surface. Report, discrepancy
  and import payloads are returned as the domain packages define them;
  only wrappers and request bodies live here.

NAMING CONVENTION:
  - *Request:  request bodies and query parameters, validated with
               go-playground/validator struct tags
  - *Response: envelopes around domain results

SEE ALSO:
  - handlers.go: Uses these types
  - report/report.go: Result
  - discrepancy/discrepancy.go: Report
*/
package api

import (
	"github.com/titledesk/production-reports/engine"
	"github.com/titledesk/production-reports/store/sqlstore"
)

// =============================================================================
// REQUESTS
// =============================================================================

// MonthQuery is the ?month=&year= pair accepted by report endpoints. Zero
// means "current".
type MonthQuery struct {
	Month int `validate:"omitempty,min=1,max=12"`
	Year  int `validate:"omitempty,min=2000,max=2100"`
}

// SaveOfficerRequest adds or moves a title officer in the directory.
type SaveOfficerRequest struct {
	OfficerName string `json:"officer_name" validate:"required,max=200"`
	Branch      string `json:"branch" validate:"required,max=100"`
}

// LoadScenarioRequest selects a demo dataset.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type HealthResponse struct {
	Status string `json:"status"`
	DB     string `json:"db"`
}

// OrderResponse is everything stored for one file number.
type OrderResponse struct {
	LineItems []engine.LineItem     `json:"lineItems"`
	Summary   []engine.OrderSummary `json:"summary"`
}

type OpenOrderSummaryResponse struct {
	Month  string                    `json:"month"`
	Total  int                       `json:"total"`
	Counts []sqlstore.OpenOrderCount `json:"counts"`
}

type OfficersResponse struct {
	Officers []engine.OfficerBranch `json:"officers"`
}

// ScenarioDTO describes a demo dataset.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Month       string `json:"month"`
}

type ScenarioLoadedResponse struct {
	Scenario ScenarioDTO `json:"scenario"`
	Revenue  any         `json:"revenue"`
	Open     any         `json:"open_orders"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
