package portfolio

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"auctionbot/internal/models"
)

// Warning severities, highest first.
const (
	SeverityHigh   = "HIGH"
	SeverityMedium = "MEDIUM"
	SeverityLow    = "LOW"
)

type Warning struct {
	Kind     string `json:"kind"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

var severityRank = map[string]int{SeverityHigh: 0, SeverityMedium: 1, SeverityLow: 2}

// Optimize inspects the active portfolio and returns ranked advisory
// warnings. Read-only: it never reshuffles reservations itself.
func (a *Allocator) Optimize(ctx context.Context) ([]Warning, error) {
	if a == nil || a.repo == nil {
		return nil, nil
	}
	entries, err := a.repo.LoadActiveEntries(ctx)
	if err != nil {
		return nil, err
	}

	var warnings []Warning
	warnings = append(warnings, a.budgetWarnings()...)
	warnings = append(warnings, a.riskWarnings(ctx, entries)...)
	warnings = append(warnings, a.timingWarnings(ctx, entries)...)

	sort.SliceStable(warnings, func(i, j int) bool {
		return severityRank[warnings[i].Severity] < severityRank[warnings[j].Severity]
	})
	return warnings, nil
}

func (a *Allocator) budgetWarnings() []Warning {
	snap := a.ledger.Snapshot()
	if snap.Halted {
		return []Warning{{
			Kind:     "ledger_halted",
			Severity: SeverityHigh,
			Message:  "ledger halted on invariant violation, admission suspended",
		}}
	}
	if !snap.Total.IsPositive() {
		return nil
	}
	pct := snap.Available.Div(snap.Total).InexactFloat64() * 100
	if pct < a.cfg.BudgetLowPct {
		return []Warning{{
			Kind:     "budget_low",
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("available budget down to %.1f%% of total", pct),
		}}
	}
	return nil
}

// riskWarnings flags concentration of reserved budget in HIGH/MEDIUM
// risk or in a single category.
func (a *Allocator) riskWarnings(ctx context.Context, entries []models.PortfolioEntry) []Warning {
	if len(entries) == 0 {
		return nil
	}

	var warnings []Warning
	total := 0.0
	risky := 0.0
	byCategory := map[string]float64{}
	for _, e := range entries {
		amount := e.MaxBidAmount.InexactFloat64()
		total += amount

		op, err := a.repo.GetOpportunityByItemID(ctx, e.ItemID)
		if err != nil || op == nil {
			continue
		}
		if op.RiskLevel != models.RiskLow {
			risky += amount
		}
		item, err := a.repo.GetReconciledItem(ctx, e.ItemID)
		if err == nil && item != nil && item.Category != nil {
			byCategory[strings.ToLower(*item.Category)] += amount
		}
	}
	if total <= 0 {
		return nil
	}

	if frac := risky / total; frac > a.cfg.RiskConcentration {
		warnings = append(warnings, Warning{
			Kind:     "risk_concentration",
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("%.0f%% of reserved budget sits in MEDIUM or HIGH risk entries", frac*100),
		})
	}
	for cat, amount := range byCategory {
		if frac := amount / total; frac > a.cfg.CategoryConcentration {
			warnings = append(warnings, Warning{
				Kind:     "category_concentration",
				Severity: SeverityMedium,
				Message:  fmt.Sprintf("category %q holds %.0f%% of reserved budget", cat, frac*100),
			})
		}
	}
	return warnings
}

// timingWarnings flags entries whose auctions close within the same
// window, since simultaneous snipes compete for executor slots.
func (a *Allocator) timingWarnings(ctx context.Context, entries []models.PortfolioEntry) []Warning {
	type closeAt struct {
		itemID string
		at     time.Time
	}
	var closes []closeAt
	for _, e := range entries {
		item, err := a.repo.GetReconciledItem(ctx, e.ItemID)
		if err != nil || item == nil || item.CloseTime == nil {
			continue
		}
		closes = append(closes, closeAt{itemID: e.ItemID, at: *item.CloseTime})
	}
	sort.Slice(closes, func(i, j int) bool { return closes[i].at.Before(closes[j].at) })

	var warnings []Warning
	window := a.cfg.TimingConflictWindow
	for i := 1; i < len(closes); i++ {
		if closes[i].at.Sub(closes[i-1].at) <= window {
			warnings = append(warnings, Warning{
				Kind:     "timing_conflict",
				Severity: SeverityLow,
				Message: fmt.Sprintf("items %s and %s close within %s of each other",
					closes[i-1].itemID, closes[i].itemID, window),
			})
		}
	}
	return warnings
}
