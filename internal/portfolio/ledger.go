package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"auctionbot/internal/clock"
	"auctionbot/internal/config"
	"auctionbot/internal/models"
	"auctionbot/internal/repository"
)

var (
	ErrBudgetExceeded = errors.New("portfolio: insufficient available budget")
	ErrDailyBudget    = errors.New("portfolio: daily budget exhausted")
	ErrLedgerHalted   = errors.New("portfolio: ledger halted on invariant violation")
	ErrOverRelease    = errors.New("portfolio: release exceeds reservation")
)

// Ledger tracks the budget split across available, reserved and spent.
// All mutations run under one mutex and every mutation re-checks the
// conservation invariant reserved+spent+available == total. A violation
// means the accounting itself is corrupt, so the ledger halts and
// refuses further mutations until restarted.
type Ledger struct {
	repo   repository.Repository
	clk    clock.Clock
	logger *zap.Logger

	mu         sync.Mutex
	total      decimal.Decimal
	reserved   decimal.Decimal
	spent      decimal.Decimal
	available  decimal.Decimal
	daily      decimal.Decimal
	spentToday decimal.Decimal
	day        time.Time
	halted     bool
}

func NewLedger(cfg config.BudgetConfig, repo repository.Repository, clk clock.Clock, logger *zap.Logger) *Ledger {
	clk = clock.Or(clk)
	total := decimal.NewFromFloat(cfg.Total)
	return &Ledger{
		repo:      repo,
		clk:       clk,
		logger:    logger,
		total:     total,
		available: total,
		daily:     decimal.NewFromFloat(cfg.Daily),
		day:       clk.Now().UTC().Truncate(24 * time.Hour),
	}
}

// Snapshot is a point-in-time view of the ledger balances.
type Snapshot struct {
	Total      decimal.Decimal `json:"total"`
	Reserved   decimal.Decimal `json:"reserved"`
	Spent      decimal.Decimal `json:"spent"`
	Available  decimal.Decimal `json:"available"`
	SpentToday decimal.Decimal `json:"spent_today"`
	Halted     bool            `json:"halted"`
}

func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		Total:      l.total,
		Reserved:   l.reserved,
		Spent:      l.spent,
		Available:  l.available,
		SpentToday: l.spentToday,
		Halted:     l.halted,
	}
}

func (l *Ledger) Halted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.halted
}

// Reserve moves amount from available to reserved for an item.
func (l *Ledger) Reserve(ctx context.Context, itemID string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.halted {
		return ErrLedgerHalted
	}
	if !amount.IsPositive() {
		return fmt.Errorf("portfolio: non-positive reservation %s", amount)
	}
	l.rollDay()
	if amount.GreaterThan(l.available) {
		return ErrBudgetExceeded
	}
	if l.daily.IsPositive() && l.spentToday.Add(l.reserved).Add(amount).GreaterThan(l.daily) {
		return ErrDailyBudget
	}

	l.available = l.available.Sub(amount)
	l.reserved = l.reserved.Add(amount)
	return l.commit(ctx, itemID, models.LedgerReserve, amount)
}

// Spend settles a won auction: the reservation converts to spend at the
// clearing price and any remainder returns to available.
func (l *Ledger) Spend(ctx context.Context, itemID string, reserved, clearing decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.halted {
		return ErrLedgerHalted
	}
	if reserved.GreaterThan(l.reserved) {
		return ErrOverRelease
	}
	if clearing.GreaterThan(reserved) {
		// Never spend more than was set aside.
		clearing = reserved
	}
	l.rollDay()

	l.reserved = l.reserved.Sub(reserved)
	l.spent = l.spent.Add(clearing)
	l.available = l.available.Add(reserved.Sub(clearing))
	l.spentToday = l.spentToday.Add(clearing)
	return l.commit(ctx, itemID, models.LedgerSpend, clearing)
}

// Release returns a reservation to available, for lost or expired
// entries.
func (l *Ledger) Release(ctx context.Context, itemID string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.halted {
		return ErrLedgerHalted
	}
	if amount.GreaterThan(l.reserved) {
		return ErrOverRelease
	}

	l.reserved = l.reserved.Sub(amount)
	l.available = l.available.Add(amount)
	return l.commit(ctx, itemID, models.LedgerRelease, amount)
}

// commit verifies conservation and appends the event. Callers hold the
// mutex.
func (l *Ledger) commit(ctx context.Context, itemID, kind string, amount decimal.Decimal) error {
	if !l.reserved.Add(l.spent).Add(l.available).Equal(l.total) {
		l.halted = true
		if l.logger != nil {
			l.logger.Error("ledger invariant violated, halting",
				zap.String("item_id", itemID),
				zap.String("kind", kind),
				zap.String("reserved", l.reserved.String()),
				zap.String("spent", l.spent.String()),
				zap.String("available", l.available.String()),
				zap.String("total", l.total.String()))
		}
		return ErrLedgerHalted
	}

	if l.repo != nil {
		event := &models.LedgerEvent{
			ItemID:         itemID,
			Kind:           kind,
			Amount:         amount,
			ReservedAfter:  l.reserved,
			SpentAfter:     l.spent,
			AvailableAfter: l.available,
		}
		if err := l.repo.AppendLedgerEvent(ctx, event); err != nil && l.logger != nil {
			// The in-memory ledger stays authoritative; a failed append
			// loses audit detail, not money.
			l.logger.Warn("failed to append ledger event", zap.Error(err))
		}
	}
	return nil
}

func (l *Ledger) rollDay() {
	today := l.clk.Now().UTC().Truncate(24 * time.Hour)
	if today.After(l.day) {
		l.day = today
		l.spentToday = decimal.Zero
	}
}
