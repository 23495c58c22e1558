package emissions

import (
	"github.com/shopspring/decimal"

	"adcarbon/internal/calendar"
)

// Aggregate folds outcomes, in the order given, into a Rollup. Only OK
// outcomes with a non-zero total contribute; everything else is skipped.
// Ties for high and low keep the earliest day.
func Aggregate(domain string, outcomes []Outcome) Rollup {
	rollup := Rollup{
		Domain: domain,
		Dates:  make([]calendar.Date, 0, len(outcomes)),
		Days:   make([]DayResult, 0, len(outcomes)),
	}

	total := decimal.Zero
	count := 0
	var high, low DayResult
	seen := false

	for i := range outcomes {
		o := outcomes[i]
		if o.Kind != OutcomeOK || o.Day.TotalEmissions == 0 {
			continue
		}
		day := o.Day

		rollup.Dates = append(rollup.Dates, day.Date)
		rollup.Days = append(rollup.Days, day)
		total = total.Add(decimal.NewFromFloat(day.TotalEmissions))
		count++

		if !seen || day.TotalEmissions > high.TotalEmissions {
			high = day
		}
		if !seen || day.TotalEmissions < low.TotalEmissions {
			low = day
		}
		seen = true
	}

	rollup.TotalEmissions = total.InexactFloat64()
	if count > 0 {
		rollup.Average = rollup.TotalEmissions / float64(count)
	}
	if seen {
		rollup.High = Extreme{Value: high.TotalEmissions, Date: high.Date.String()}
		rollup.Low = Extreme{Value: low.TotalEmissions, Date: low.Date.String()}
	}
	return rollup
}
