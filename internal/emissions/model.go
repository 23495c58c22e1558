// Package emissions fetches per-day emission figures and folds them into
// period rollups.
package emissions

import "adcarbon/internal/calendar"

// DayResult is one measured day.
type DayResult struct {
	Date           calendar.Date `json:"date"`
	TotalEmissions float64       `json:"totalEmissions"`
}

// DayReport is the single-day response shape.
type DayReport struct {
	Domain         string        `json:"domain"`
	Date           calendar.Date `json:"date"`
	TotalEmissions float64       `json:"totalEmissions"`
}

// Extreme is a high or low watermark. Date is empty when no day contributed.
type Extreme struct {
	Value float64 `json:"value"`
	Date  string  `json:"date"`
}

// Rollup aggregates a run of days.
type Rollup struct {
	Domain         string          `json:"domain"`
	Dates          []calendar.Date `json:"dates"`
	TotalEmissions float64         `json:"totalEmissions"`
	Average        float64         `json:"average"`
	High           Extreme         `json:"high"`
	Low            Extreme         `json:"low"`
	Month          string          `json:"month,omitempty"`

	// Days holds the contributing values in order, for exports.
	Days []DayResult `json:"-"`
}

// OutcomeKind tags an Outcome.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeExcluded
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeExcluded:
		return "excluded"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ExclusionReason says why a day was left out of a rollup.
type ExclusionReason string

const (
	ReasonInvalidDate ExclusionReason = "invalid_date"
	ReasonNoData      ExclusionReason = "no_data"
	ReasonUpstream    ExclusionReason = "upstream_error"
)

// Outcome is the tagged result of fetching one day: OK carries Day, Excluded
// carries Reason, Failed carries Err.
type Outcome struct {
	Date   calendar.Date
	Kind   OutcomeKind
	Day    DayResult
	Reason ExclusionReason
	Err    error
}

// Classify turns a fetch result into an Outcome. InvalidDate and NoData are
// exclusions; anything else is a failure.
func Classify(date calendar.Date, res DayResult, err error) Outcome {
	switch {
	case err == nil:
		return Outcome{Date: date, Kind: OutcomeOK, Day: res}
	case IsInvalidDate(err):
		return Outcome{Date: date, Kind: OutcomeExcluded, Reason: ReasonInvalidDate, Err: err}
	case IsNoData(err):
		return Outcome{Date: date, Kind: OutcomeExcluded, Reason: ReasonNoData, Err: err}
	default:
		return Outcome{Date: date, Kind: OutcomeFailed, Err: err}
	}
}

// Exclude downgrades a failed outcome to an upstream exclusion.
func (o Outcome) Exclude() Outcome {
	if o.Kind != OutcomeFailed {
		return o
	}
	o.Kind = OutcomeExcluded
	o.Reason = ReasonUpstream
	return o
}
