package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// memoryRepo is an in-memory Repository for service tests. WithTx snapshots
// state and restores it when fn fails, mirroring a rollback.
type memoryRepo struct {
	charges   map[int64]*Charge
	payments  []Payment
	allocs    map[int64][]Allocation
	credits   map[int64]float64
	nextID    int64
	nextPayID int64

	failCreatePayment bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		charges: map[int64]*Charge{},
		allocs:  map[int64][]Allocation{},
		credits: map[int64]float64{},
	}
}

func (m *memoryRepo) addCustomer(id int64) {
	if _, ok := m.credits[id]; !ok {
		m.credits[id] = 0
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	snapCharges := make(map[int64]*Charge, len(m.charges))
	for id, ch := range m.charges {
		cp := *ch
		if ch.DueDate != nil {
			due := *ch.DueDate
			cp.DueDate = &due
		}
		snapCharges[id] = &cp
	}
	snapPayments := append([]Payment(nil), m.payments...)
	snapCredits := make(map[int64]float64, len(m.credits))
	for id, v := range m.credits {
		snapCredits[id] = v
	}

	if err := fn(ctx, m); err != nil {
		m.charges = snapCharges
		m.payments = snapPayments
		m.credits = snapCredits
		return err
	}
	return nil
}

func (m *memoryRepo) CreateCharge(_ context.Context, ch *Charge) error {
	m.nextID++
	ch.ID = m.nextID
	cp := *ch
	m.charges[ch.ID] = &cp
	return nil
}

func (m *memoryRepo) GetCharge(_ context.Context, id int64) (*Charge, error) {
	ch, ok := m.charges[id]
	if !ok {
		return nil, fmt.Errorf("%w: charge %d", ErrNotFound, id)
	}
	cp := *ch
	return &cp, nil
}

func (m *memoryRepo) ListOpenCharges(_ context.Context, customerID int64) ([]Charge, error) {
	var out []Charge
	for _, ch := range m.charges {
		if customerID > 0 && ch.CustomerID != customerID {
			continue
		}
		if ch.Open() {
			out = append(out, *ch)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SoldAt.Equal(out[j].SoldAt) {
			return out[i].SoldAt.Before(out[j].SoldAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memoryRepo) ListCharges(_ context.Context, req ListChargesRequest) ([]Charge, error) {
	var out []Charge
	for _, ch := range m.charges {
		if req.CustomerID > 0 && ch.CustomerID != req.CustomerID {
			continue
		}
		if req.Status != "" && ch.Status != req.Status {
			continue
		}
		out = append(out, *ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryRepo) UpdateChargeBalances(_ context.Context, ch *Charge) error {
	stored, ok := m.charges[ch.ID]
	if !ok {
		return fmt.Errorf("%w: charge %d", ErrNotFound, ch.ID)
	}
	cp := *ch
	if ch.DueDate != nil {
		due := *ch.DueDate
		cp.DueDate = &due
	}
	*stored = cp
	return nil
}

func (m *memoryRepo) ReplaceInstallments(_ context.Context, chargeID int64, insts []Installment) error {
	ch, ok := m.charges[chargeID]
	if !ok {
		return fmt.Errorf("%w: charge %d", ErrNotFound, chargeID)
	}
	for i := range insts {
		insts[i].ChargeID = chargeID
	}
	ch.Installments = append([]Installment(nil), insts...)
	return nil
}

func (m *memoryRepo) VoidCharge(_ context.Context, id int64, reason string) error {
	ch, ok := m.charges[id]
	if !ok {
		return fmt.Errorf("%w: charge %d", ErrNotFound, id)
	}
	ch.Status = StatusCancelled
	ch.Outstanding = 0
	ch.DueDate = nil
	ch.VoidReason = reason
	return nil
}

func (m *memoryRepo) CreatePayment(_ context.Context, p *Payment, allocs []Allocation) error {
	if m.failCreatePayment {
		return errors.New("simulated write failure")
	}
	m.nextPayID++
	p.ID = m.nextPayID
	m.payments = append(m.payments, *p)
	m.allocs[p.ID] = append([]Allocation(nil), allocs...)
	return nil
}

func (m *memoryRepo) ListPayments(_ context.Context, customerID int64) ([]Payment, error) {
	var out []Payment
	for _, p := range m.payments {
		if customerID > 0 && p.CustomerID != customerID {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *memoryRepo) AddCustomerCredit(_ context.Context, customerID int64, amount float64) error {
	if _, ok := m.credits[customerID]; !ok {
		return fmt.Errorf("%w: customer %d", ErrNotFound, customerID)
	}
	m.credits[customerID] += amount
	return nil
}

func (m *memoryRepo) GetCustomerCredit(_ context.Context, customerID int64) (float64, error) {
	credit, ok := m.credits[customerID]
	if !ok {
		return 0, fmt.Errorf("%w: customer %d", ErrNotFound, customerID)
	}
	return credit, nil
}

func newTestService(repo *memoryRepo) *Service {
	cutoff := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return NewService(repo, nil, NoopLocker{}, nil, nil, cutoff, time.Second)
}

func TestRecordSaleInstallmentFlow(t *testing.T) {
	repo := newMemoryRepo()
	repo.addCustomer(1)
	svc := newTestService(repo)

	soldAt := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	due := []time.Time{soldAt.AddDate(0, 1, 0), soldAt.AddDate(0, 2, 0)}

	result, err := svc.RecordSale(context.Background(), RecordSaleInput{
		CustomerID: 1,
		Lines:      []CartLine{{ProductCode: "EDR", ProductName: "Edredom", Quantity: 1, UnitPrice: 189.90}},
		Method:     MethodSweetFlex,
		DueDates:   due,
		SoldAt:     soldAt,
	})
	require.NoError(t, err)
	require.Len(t, result.Charges, 1)
	require.Equal(t, 189.90, result.NetTotal)
	require.Equal(t, int64(1), result.Charges[0].CustomerID)
	require.NotZero(t, result.Charges[0].ID)

	stored, err := repo.GetCharge(context.Background(), result.Charges[0].ID)
	require.NoError(t, err)
	require.Equal(t, 189.90, stored.Outstanding)
	require.Equal(t, StatusPending, stored.Status)
}

func TestRecordSaleUnknownCustomer(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	_, err := svc.RecordSale(context.Background(), RecordSaleInput{
		CustomerID: 99,
		Lines:      []CartLine{{ProductName: "X", Quantity: 1, UnitPrice: 10}},
		Method:     MethodPix,
	})
	require.ErrorIs(t, err, ErrNotFound)
}

// Exercises the full collection cycle: three flex sales, a payment that
// closes the oldest and dents the second, then an overpayment whose
// remainder lands as customer credit.
func TestApplyPaymentEndToEnd(t *testing.T) {
	repo := newMemoryRepo()
	repo.addCustomer(1)
	svc := newTestService(repo)
	ctx := context.Background()

	sell := func(day int, price float64) {
		soldAt := time.Date(2026, 1, day, 0, 0, 0, 0, time.UTC)
		_, err := svc.RecordSale(ctx, RecordSaleInput{
			CustomerID: 1,
			Lines:      []CartLine{{ProductName: "Item", Quantity: 1, UnitPrice: price}},
			Method:     MethodSweetFlex,
			DueDates:   []time.Time{soldAt.AddDate(0, 1, 0)},
			SoldAt:     soldAt,
		})
		require.NoError(t, err)
	}
	sell(5, 100)
	sell(10, 80)
	sell(15, 50)

	outcome, err := svc.ApplyPayment(ctx, ApplyPaymentInput{
		CustomerID: 1,
		Amount:     150,
		Method:     MethodPix,
	})
	require.NoError(t, err)
	require.Equal(t, 150.0, outcome.Applied)
	require.Zero(t, outcome.CreditCarried)
	require.Len(t, outcome.Allocations, 2)
	require.Equal(t, 100.0, outcome.Allocations[0].Amount)
	require.Equal(t, 50.0, outcome.Allocations[1].Amount)

	open, err := repo.ListOpenCharges(ctx, 1)
	require.NoError(t, err)
	require.Len(t, open, 2)
	require.Equal(t, 30.0, open[0].Outstanding)
	require.Equal(t, 50.0, open[1].Outstanding)

	// Overpay the rest: 30 + 50 owed, pay 100.
	outcome, err = svc.ApplyPayment(ctx, ApplyPaymentInput{CustomerID: 1, Amount: 100})
	require.NoError(t, err)
	require.Equal(t, 80.0, outcome.Applied)
	require.Equal(t, 20.0, outcome.CreditCarried)

	credit, err := repo.GetCustomerCredit(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 20.0, credit)

	open, err = repo.ListOpenCharges(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, open)

	payments, err := svc.ListPayments(ctx, 1)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	require.Equal(t, 20.0, payments[1].CreditedAmount)
}

func TestApplyPaymentNoOpenChargesCarriesFullCredit(t *testing.T) {
	repo := newMemoryRepo()
	repo.addCustomer(2)
	svc := newTestService(repo)

	outcome, err := svc.ApplyPayment(context.Background(), ApplyPaymentInput{CustomerID: 2, Amount: 75})
	require.NoError(t, err)
	require.Zero(t, outcome.Applied)
	require.Equal(t, 75.0, outcome.CreditCarried)
	require.Empty(t, outcome.Allocations)

	credit, _ := repo.GetCustomerCredit(context.Background(), 2)
	require.Equal(t, 75.0, credit)
}

func TestApplyPaymentIncludeCredit(t *testing.T) {
	repo := newMemoryRepo()
	repo.addCustomer(1)
	repo.credits[1] = 30
	svc := newTestService(repo)
	ctx := context.Background()

	soldAt := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.RecordSale(ctx, RecordSaleInput{
		CustomerID: 1,
		Lines:      []CartLine{{ProductName: "Item", Quantity: 1, UnitPrice: 100}},
		Method:     MethodSweetFlex,
		DueDates:   []time.Time{soldAt.AddDate(0, 1, 0)},
		SoldAt:     soldAt,
	})
	require.NoError(t, err)

	outcome, err := svc.ApplyPayment(ctx, ApplyPaymentInput{
		CustomerID:    1,
		Amount:        70,
		IncludeCredit: true,
	})
	require.NoError(t, err)
	require.Equal(t, 30.0, outcome.CreditUsed)
	require.Equal(t, 100.0, outcome.Applied)
	require.Zero(t, outcome.CreditCarried)

	credit, _ := repo.GetCustomerCredit(ctx, 1)
	require.Zero(t, credit)
}

func TestApplyPaymentRollsBackOnFailure(t *testing.T) {
	repo := newMemoryRepo()
	repo.addCustomer(1)
	svc := newTestService(repo)
	ctx := context.Background()

	soldAt := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.RecordSale(ctx, RecordSaleInput{
		CustomerID: 1,
		Lines:      []CartLine{{ProductName: "Item", Quantity: 1, UnitPrice: 100}},
		Method:     MethodSweetFlex,
		DueDates:   []time.Time{soldAt.AddDate(0, 1, 0)},
		SoldAt:     soldAt,
	})
	require.NoError(t, err)

	repo.failCreatePayment = true
	_, err = svc.ApplyPayment(ctx, ApplyPaymentInput{CustomerID: 1, Amount: 60})
	require.Error(t, err)

	// Balance untouched after the failed settlement.
	open, _ := repo.ListOpenCharges(ctx, 1)
	require.Len(t, open, 1)
	require.Equal(t, 100.0, open[0].Outstanding)
	require.Empty(t, repo.payments)
}

func TestApplyPaymentValidation(t *testing.T) {
	repo := newMemoryRepo()
	repo.addCustomer(1)
	svc := newTestService(repo)

	_, err := svc.ApplyPayment(context.Background(), ApplyPaymentInput{CustomerID: 1, Amount: 0})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.ApplyPayment(context.Background(), ApplyPaymentInput{CustomerID: 1, Amount: 10, Method: "Cheque"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.ApplyPayment(context.Background(), ApplyPaymentInput{CustomerID: 9, Amount: 10})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestVoidCharge(t *testing.T) {
	repo := newMemoryRepo()
	repo.addCustomer(1)
	svc := newTestService(repo)
	ctx := context.Background()

	soldAt := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	result, err := svc.RecordSale(ctx, RecordSaleInput{
		CustomerID: 1,
		Lines:      []CartLine{{ProductName: "Item", Quantity: 1, UnitPrice: 100}},
		Method:     MethodSweetFlex,
		DueDates:   []time.Time{soldAt.AddDate(0, 1, 0)},
		SoldAt:     soldAt,
	})
	require.NoError(t, err)
	chargeID := result.Charges[0].ID

	require.NoError(t, svc.VoidCharge(ctx, chargeID, "lancamento duplicado"))

	ch, err := repo.GetCharge(ctx, chargeID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, ch.Status)
	require.Zero(t, ch.Outstanding)
	require.Equal(t, "lancamento duplicado", ch.VoidReason)

	// Voided charges drop out of settlement and aggregation.
	open, _ := repo.ListOpenCharges(ctx, 1)
	require.Empty(t, open)
}

func TestCorrectCharge(t *testing.T) {
	repo := newMemoryRepo()
	repo.addCustomer(1)
	svc := newTestService(repo)
	ctx := context.Background()

	soldAt := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	result, err := svc.RecordSale(ctx, RecordSaleInput{
		CustomerID:    1,
		Lines:         []CartLine{{ProductName: "Item", Quantity: 1, UnitPrice: 100}},
		OrderDiscount: 10,
		Method:        MethodSweetFlex,
		DueDates:      []time.Time{soldAt.AddDate(0, 1, 0)},
		SoldAt:        soldAt,
	})
	require.NoError(t, err)
	chargeID := result.Charges[0].ID

	fixed, err := svc.CorrectCharge(ctx, chargeID, CorrectChargeInput{Quantity: 2, UnitPrice: 100})
	require.NoError(t, err)
	require.Equal(t, 200.0, fixed.Gross)
	// Discount fraction (10%) survives the correction.
	require.Equal(t, 180.0, fixed.Net)
	require.Equal(t, 180.0, fixed.Outstanding)

	// Once money lands the charge is frozen.
	_, err = svc.ApplyPayment(ctx, ApplyPaymentInput{CustomerID: 1, Amount: 50})
	require.NoError(t, err)
	_, err = svc.CorrectCharge(ctx, chargeID, CorrectChargeInput{Quantity: 3, UnitPrice: 100})
	require.ErrorIs(t, err, ErrValidation)
}

func TestCorrectChargeReschedulesInstallments(t *testing.T) {
	repo := newMemoryRepo()
	repo.addCustomer(1)
	svc := newTestService(repo)
	ctx := context.Background()

	soldAt := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	due := []time.Time{
		soldAt.AddDate(0, 1, 0),
		soldAt.AddDate(0, 2, 0),
		soldAt.AddDate(0, 3, 0),
	}
	result, err := svc.RecordSale(ctx, RecordSaleInput{
		CustomerID: 1,
		Lines:      []CartLine{{ProductName: "Item", Quantity: 1, UnitPrice: 300}},
		Method:     MethodSweetFlex,
		DueDates:   due,
		SoldAt:     soldAt,
	})
	require.NoError(t, err)
	chargeID := result.Charges[0].ID

	fixed, err := svc.CorrectCharge(ctx, chargeID, CorrectChargeInput{Quantity: 1, UnitPrice: 150})
	require.NoError(t, err)
	require.Equal(t, 150.0, fixed.Net)

	// The plan follows the corrected net and keeps the original due dates.
	stored, err := repo.GetCharge(ctx, chargeID)
	require.NoError(t, err)
	require.Len(t, stored.Installments, 3)
	var planTotal float64
	for i, inst := range stored.Installments {
		planTotal += inst.Amount
		require.Equal(t, i+1, inst.Seq)
		require.True(t, inst.DueDate.Equal(due[i]))
	}
	require.InDelta(t, 150.0, planTotal, 1e-9)
}

func TestStatementProjectsAccruals(t *testing.T) {
	repo := newMemoryRepo()
	repo.addCustomer(1)
	repo.credits[1] = 15
	svc := newTestService(repo)
	ctx := context.Background()

	soldAt := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	_, err := svc.RecordSale(ctx, RecordSaleInput{
		CustomerID: 1,
		Lines:      []CartLine{{ProductName: "Item", Quantity: 1, UnitPrice: 100}},
		Method:     MethodSweetFlex,
		DueDates:   []time.Time{time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC)},
		SoldAt:     soldAt,
	})
	require.NoError(t, err)

	asOf := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)
	stmt, err := svc.Statement(ctx, 1, asOf)
	require.NoError(t, err)
	require.Equal(t, 15.0, stmt.CreditBalance)
	require.Len(t, stmt.OpenCharges, 1)

	view := stmt.OpenCharges[0]
	require.Equal(t, ClassRecent, view.Accrual.Class)
	require.Equal(t, 15, view.Accrual.DaysLate)
	require.Equal(t, 2.0, view.Accrual.Penalty)
	// Projection only: the stored balance is untouched.
	require.Equal(t, 100.0, view.Charge.Outstanding)
	require.Equal(t, 100.0, stmt.Rollup.OutstandingTotal)
}

func TestOverdueCounts(t *testing.T) {
	repo := newMemoryRepo()
	repo.addCustomer(1)
	svc := newTestService(repo)
	ctx := context.Background()

	mk := func(due time.Time) {
		soldAt := due.AddDate(0, -1, 0)
		_, err := svc.RecordSale(ctx, RecordSaleInput{
			CustomerID: 1,
			Lines:      []CartLine{{ProductName: "Item", Quantity: 1, UnitPrice: 10}},
			Method:     MethodSweetFlex,
			DueDates:   []time.Time{due},
			SoldAt:     soldAt,
		})
		require.NoError(t, err)
	}
	asOf := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mk(asOf.AddDate(0, 0, -45)) // critical
	mk(asOf.AddDate(0, 0, -10)) // recent
	mk(asOf)                    // due today
	mk(asOf.AddDate(0, 0, 20))  // upcoming
	mk(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)) // legacy

	counts, err := svc.OverdueCounts(ctx, asOf)
	require.NoError(t, err)
	require.Equal(t, 1, counts[ClassCritical])
	require.Equal(t, 1, counts[ClassRecent])
	require.Equal(t, 1, counts[ClassDueToday])
	require.Equal(t, 1, counts[ClassUpcoming])
	require.Equal(t, 1, counts[ClassLegacy])
}

func TestSummaryExcludesInternal(t *testing.T) {
	repo := newMemoryRepo()
	repo.addCustomer(1)
	repo.addCustomer(2)
	svc := newTestService(repo)
	ctx := context.Background()

	for _, customerID := range []int64{1, 2} {
		_, err := svc.RecordSale(ctx, RecordSaleInput{
			CustomerID: customerID,
			Lines:      []CartLine{{ProductName: "Item", Quantity: 1, UnitPrice: 100}},
			Method:     MethodPix,
			SoldAt:     time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}

	snap, err := svc.Summary(ctx, SnapshotFilter{ExcludeCustomerIDs: map[int64]struct{}{2: {}}})
	require.NoError(t, err)
	require.Equal(t, 100.0, snap.GrossSales)
	require.Equal(t, 1, snap.ChargeCount)
}
