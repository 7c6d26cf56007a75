// Package pricing computes the monetary breakdown for a booking. The
// calculator is a pure function of its request and the injected policy;
// identical inputs always produce identical breakdowns.
package pricing

import (
	"fmt"
	"math"
	"time"

	"studioboard/internal/domain"
)

type Request struct {
	Space     domain.Space
	Start     time.Time
	End       time.Time
	Equipment []string
	People    int
	// Discount is an absolute amount subtracted from the total.
	Discount float64
}

type Calculator struct {
	policy *Policy
}

func NewCalculator(policy *Policy) *Calculator {
	return &Calculator{policy: policy}
}

// Compute builds the price breakdown: per-hour space rate times duration,
// plus per-hour peak surcharge for hours inside the peak window, plus
// headcount above the free threshold, plus equipment surcharges, minus the
// discount. The total is rounded to the currency's minor unit and clamped
// at zero; a clamped breakdown is flagged Anomalous instead of going
// negative silently.
func (c *Calculator) Compute(req Request) (domain.PriceBreakdown, error) {
	hours := int(req.End.Sub(req.Start) / time.Hour)
	if hours <= 0 || req.End.Sub(req.Start)%time.Hour != 0 {
		return domain.PriceBreakdown{}, fmt.Errorf("%w: duration must be a positive whole number of hours", domain.ErrValidation)
	}

	rate, ok := c.policy.HourlyRates[string(req.Space)]
	if !ok {
		return domain.PriceBreakdown{}, fmt.Errorf("%w: no hourly rate for space %q", domain.ErrValidation, req.Space)
	}
	if req.People < 0 || req.Discount < 0 {
		return domain.PriceBreakdown{}, fmt.Errorf("%w: negative headcount or discount", domain.ErrValidation)
	}

	base := rate * float64(hours)
	base += c.policy.Peak.SurchargePerHour * float64(c.peakHours(req.Start, hours))

	if extra := req.People - c.policy.FreeHeadcount; extra > 0 {
		base += float64(extra) * c.policy.ExtraPersonPerHour * float64(hours)
	}

	var equipment float64
	for _, item := range req.Equipment {
		er, ok := c.policy.Equipment[item]
		if !ok {
			return domain.PriceBreakdown{}, fmt.Errorf("%w: unknown equipment item %q", domain.ErrValidation, item)
		}
		if er.PerHour {
			equipment += er.Amount * float64(hours)
		} else {
			equipment += er.Amount
		}
	}

	out := domain.PriceBreakdown{
		Base:      round2(base),
		Equipment: round2(equipment),
		Discount:  round2(req.Discount),
	}
	total := round2(out.Base + out.Equipment - out.Discount)
	if total < 0 {
		out.Total = 0
		out.Anomalous = true
	} else {
		out.Total = total
	}
	return out, nil
}

// peakHours counts the booked hour slots [h, h+1) falling inside the peak
// window.
func (c *Calculator) peakHours(start time.Time, hours int) int {
	n := 0
	for i := 0; i < hours; i++ {
		h := start.Add(time.Duration(i) * time.Hour).Hour()
		if h >= c.policy.Peak.StartHour && h < c.policy.Peak.EndHour {
			n++
		}
	}
	return n
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
