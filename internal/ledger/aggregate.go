package ledger

import (
	"github.com/sweethome/ledger/internal/money"
)

// SnapshotFilter scopes an aggregation. ExcludeCustomerIDs separates
// owner/partner stock withdrawals from genuine customer revenue; it is part
// of the engine, not a presentation hack.
type SnapshotFilter struct {
	CustomerID         int64
	ExcludeCustomerIDs map[int64]struct{}
}

func (f SnapshotFilter) includes(ch *Charge) bool {
	if ch.Status == StatusCancelled {
		return false
	}
	if f.CustomerID != 0 && ch.CustomerID != f.CustomerID {
		return false
	}
	if _, excluded := f.ExcludeCustomerIDs[ch.CustomerID]; excluded {
		return false
	}
	return true
}

// Summarize aggregates a charge set into a snapshot. It reads, never
// mutates: two calls over an unchanged set return identical results.
//
// The liquidity index is the fraction of net sales settled immediately
// (non-installment); interpretation thresholds belong to the caller.
func Summarize(charges []Charge, filter SnapshotFilter) LedgerSnapshot {
	var snap LedgerSnapshot
	for i := range charges {
		ch := &charges[i]
		if !filter.includes(ch) {
			continue
		}
		snap.ChargeCount++
		snap.GrossSales = money.Round2(snap.GrossSales + ch.Net)
		snap.OutstandingTotal = money.Round2(snap.OutstandingTotal + ch.Outstanding)
		if ch.Method.Immediate() {
			snap.ImmediateSales = money.Round2(snap.ImmediateSales + ch.Net)
		}
		if ch.Open() {
			snap.OpenChargeCount++
		}
	}
	snap.Collected = money.Round2(snap.GrossSales - snap.OutstandingTotal)
	if snap.GrossSales > 0 {
		snap.LiquidityIndex = snap.ImmediateSales / snap.GrossSales
	}
	return snap
}
