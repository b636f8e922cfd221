package ledger

import (
	"fmt"
	"sort"

	"github.com/sweethome/ledger/internal/money"
)

// SettlementResult is the outcome of applying one payment across a
// customer's open charges.
type SettlementResult struct {
	Allocations []Allocation
	Applied     float64
	Remainder   float64
}

// AllocateFIFO walks a customer's open charges oldest-first and applies the
// payment until it runs out. Order is strictly by sale date with charge id as
// tiebreak, so a receipt always extinguishes the oldest invoice first, never
// the largest or smallest. Charges are mutated in place: balances shrink,
// fully covered charges flip to Paid and lose their due date.
//
// Whatever survives the last open charge comes back as Remainder; the caller
// decides its disposition (the service carries it forward as customer
// credit).
func AllocateFIFO(charges []*Charge, amount float64) (SettlementResult, error) {
	if amount <= 0 {
		return SettlementResult{}, fmt.Errorf("%w: payment amount must be positive", ErrValidation)
	}

	open := make([]*Charge, 0, len(charges))
	for _, ch := range charges {
		if ch.Open() {
			open = append(open, ch)
		}
	}
	sort.SliceStable(open, func(i, j int) bool {
		if !open[i].SoldAt.Equal(open[j].SoldAt) {
			return open[i].SoldAt.Before(open[j].SoldAt)
		}
		return open[i].ID < open[j].ID
	})

	result := SettlementResult{Remainder: money.Round2(amount)}
	for _, ch := range open {
		if result.Remainder <= 0 {
			break
		}
		need := ch.Outstanding
		alloc := Allocation{ChargeID: ch.ID, BalanceBefore: need}
		if result.Remainder >= need-money.Epsilon {
			// Covers the charge: zero it out, absorbing the sub-centavo
			// tolerance so balances never go negative.
			applied := need
			ch.Outstanding = 0
			ch.PaidToDate = money.Round2(ch.PaidToDate + applied)
			ch.Status = StatusPaid
			ch.DueDate = nil
			result.Remainder = money.Round2(result.Remainder - applied)
			if result.Remainder < 0 {
				result.Remainder = 0
			}
			alloc.Amount = applied
			alloc.BalanceAfter = 0
		} else {
			applied := result.Remainder
			ch.Outstanding = money.Round2(ch.Outstanding - applied)
			ch.PaidToDate = money.Round2(ch.PaidToDate + applied)
			result.Remainder = 0
			alloc.Amount = applied
			alloc.BalanceAfter = ch.Outstanding
		}
		result.Applied = money.Round2(result.Applied + alloc.Amount)
		result.Allocations = append(result.Allocations, alloc)
	}
	return result, nil
}
