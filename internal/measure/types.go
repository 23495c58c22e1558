package measure

import "encoding/json"

// Response is the subset of the /measure payload the service depends on.
// TotalEmissions is a pointer so an absent field is distinguishable from 0.
type Response struct {
	RequestID               string              `json:"requestId"`
	TotalEmissions          *float64            `json:"totalEmissions"`
	TotalEmissionsBreakdown *EmissionsBreakdown `json:"totalEmissionsBreakdown,omitempty"`
	Coverage                json.RawMessage     `json:"coverage,omitempty"`
	Policies                []Policy            `json:"policies,omitempty"`
	Rows                    []Row               `json:"rows"`
}

// EmissionsBreakdown splits the total by supply-chain component.
type EmissionsBreakdown struct {
	Framework string          `json:"framework"`
	Totals    EmissionsTotals `json:"totals"`
}

// EmissionsTotals are grams CO2e per component.
type EmissionsTotals struct {
	AdSelection       float64 `json:"adSelection"`
	CreativeDelivery  float64 `json:"creativeDelivery"`
	MediaDistribution float64 `json:"mediaDistribution"`
}

// Policy is an aggregate policy evaluation.
type Policy struct {
	Policy       string `json:"policy"`
	PolicyOwner  string `json:"policyOwner"`
	Compliant    int    `json:"compliant"`
	Noncompliant int    `json:"noncompliant"`
}

// Row is the per-row measurement echoed back by the API.
type Row struct {
	RowIdentifier     string   `json:"rowIdentifier"`
	TotalEmissions    *float64 `json:"totalEmissions"`
	InventoryCoverage string   `json:"inventoryCoverage,omitempty"`
}

type requestRow struct {
	InventoryID   string `json:"inventoryId"`
	Impressions   int    `json:"impressions"`
	DeviceType    string `json:"deviceType"`
	RowIdentifier string `json:"rowIdentifier"`
	UTCDatetime   string `json:"utcDatetime"`
}

type requestBody struct {
	Rows []requestRow `json:"rows"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Detail  string `json:"detail"`
}
