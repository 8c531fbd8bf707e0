package utils

import (
	"fmt"

	"parkreserve-backend/internal/domain"
)

// PricingRule selects which flat rate of a resource applies to a booking.
type PricingRule string

const (
	PricingRuleDaily  PricingRule = "daily"
	PricingRuleHourly PricingRule = "hourly"
	PricingRuleAuto   PricingRule = "auto"
)

func (r PricingRule) Valid() bool {
	return r == PricingRuleDaily || r == PricingRuleHourly || r == PricingRuleAuto
}

// Resolve returns the concrete rule for a resource. Auto prices by the hour
// when the resource has an hourly rate and by the day otherwise.
func (r PricingRule) Resolve(res *domain.Resource) PricingRule {
	if r != PricingRuleAuto {
		return r
	}
	if res.HourlyRateCents > 0 {
		return PricingRuleHourly
	}
	return PricingRuleDaily
}

// CostBreakdown provides detailed cost breakdown
type CostBreakdown struct {
	Rule       PricingRule
	Hours      int
	Days       int
	UnitCents  int64
	TotalCents int64
}

// CalculateReservationCostWithBreakdown prices a slot. Hourly pricing charges
// every started hour; daily pricing charges one day per booking since a
// reservation never spans dates.
func CalculateReservationCostWithBreakdown(rule PricingRule, res *domain.Resource, slot domain.Slot) (CostBreakdown, error) {
	if !rule.Valid() {
		return CostBreakdown{}, fmt.Errorf("unknown pricing rule %q", rule)
	}
	if res.HourlyRateCents < 0 || res.DailyRateCents < 0 {
		return CostBreakdown{}, fmt.Errorf("resource %d has a negative rate", res.ID)
	}
	minutes := slot.Minutes()
	if minutes <= 0 {
		return CostBreakdown{}, fmt.Errorf("slot %s-%s is empty", slot.Start, slot.End)
	}

	b := CostBreakdown{Rule: rule.Resolve(res)}
	switch b.Rule {
	case PricingRuleHourly:
		b.Hours = (minutes + 59) / 60
		b.UnitCents = res.HourlyRateCents
		b.TotalCents = int64(b.Hours) * res.HourlyRateCents
	default:
		b.Days = 1
		b.UnitCents = res.DailyRateCents
		b.TotalCents = res.DailyRateCents
	}
	return b, nil
}
