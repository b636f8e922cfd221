package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleCharges() []Charge {
	jan := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	due := jan.AddDate(0, 1, 0)
	return []Charge{
		{ID: 1, CustomerID: 1, Net: 200, Outstanding: 0, PaidToDate: 200, Method: MethodPix, Status: StatusPaid, SoldAt: jan},
		{ID: 2, CustomerID: 1, Net: 300, Outstanding: 180, PaidToDate: 120, Method: MethodSweetFlex, Status: StatusPending, SoldAt: jan, DueDate: &due},
		{ID: 3, CustomerID: 2, Net: 100, Outstanding: 100, PaidToDate: 0, Method: MethodSweetFlex, Status: StatusPending, SoldAt: jan, DueDate: &due},
		{ID: 4, CustomerID: 3, Net: 500, Outstanding: 0, PaidToDate: 500, Method: MethodCard, Status: StatusPaid, SoldAt: jan},
		{ID: 5, CustomerID: 2, Net: 50, Outstanding: 0, PaidToDate: 0, Method: MethodCash, Status: StatusCancelled, SoldAt: jan},
	}
}

func TestSummarizeTotals(t *testing.T) {
	snap := Summarize(sampleCharges(), SnapshotFilter{})

	require.Equal(t, 4, snap.ChargeCount) // cancelled charge dropped
	require.Equal(t, 1100.0, snap.GrossSales)
	require.Equal(t, 280.0, snap.OutstandingTotal)
	require.Equal(t, 820.0, snap.Collected)
	require.Equal(t, 700.0, snap.ImmediateSales)
	require.InDelta(t, 700.0/1100.0, snap.LiquidityIndex, 1e-9)
	require.Equal(t, 2, snap.OpenChargeCount)
}

func TestSummarizePerCustomer(t *testing.T) {
	snap := Summarize(sampleCharges(), SnapshotFilter{CustomerID: 1})

	require.Equal(t, 2, snap.ChargeCount)
	require.Equal(t, 500.0, snap.GrossSales)
	require.Equal(t, 180.0, snap.OutstandingTotal)
	require.Equal(t, 320.0, snap.Collected)
}

func TestSummarizeExcludesInternalCustomers(t *testing.T) {
	snap := Summarize(sampleCharges(), SnapshotFilter{
		ExcludeCustomerIDs: map[int64]struct{}{3: {}},
	})

	require.Equal(t, 3, snap.ChargeCount)
	require.Equal(t, 600.0, snap.GrossSales)
	require.Equal(t, 200.0, snap.ImmediateSales)
}

func TestSummarizeEmptySet(t *testing.T) {
	snap := Summarize(nil, SnapshotFilter{})
	require.Zero(t, snap.GrossSales)
	require.Zero(t, snap.LiquidityIndex)
	require.Zero(t, snap.ChargeCount)
}

func TestSummarizeIsReadOnly(t *testing.T) {
	charges := sampleCharges()
	first := Summarize(charges, SnapshotFilter{})
	second := Summarize(charges, SnapshotFilter{})
	require.Equal(t, first, second)
	require.Equal(t, 180.0, charges[1].Outstanding)
}
