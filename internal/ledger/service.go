package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sweethome/ledger/internal/lock"
	"github.com/sweethome/ledger/internal/money"
	"github.com/sweethome/ledger/internal/observability"
)

// CustomerLocker serializes balance mutations per customer.
type CustomerLocker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// NoopLocker satisfies CustomerLocker without locking. Tests and single
// process tooling use it.
type NoopLocker struct{}

func (NoopLocker) WithLock(ctx context.Context, _ string, _ time.Duration, fn func(context.Context) error) error {
	return fn(ctx)
}

// Service handles ledger business logic: recording sales, FIFO settlement,
// accrual projections and aggregation.
type Service struct {
	repo    Repository
	cache   *Cache
	locker  CustomerLocker
	logger  *slog.Logger
	metrics *observability.Metrics

	legacyCutoff time.Time
	lockTTL      time.Duration
}

// NewService builds a Service instance.
func NewService(repo Repository, cache *Cache, locker CustomerLocker, logger *slog.Logger, metrics *observability.Metrics, legacyCutoff time.Time, lockTTL time.Duration) *Service {
	if locker == nil {
		locker = NoopLocker{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if lockTTL <= 0 {
		lockTTL = 15 * time.Second
	}
	return &Service{
		repo:         repo,
		cache:        cache,
		locker:       locker,
		logger:       logger,
		metrics:      metrics,
		legacyCutoff: legacyCutoff,
		lockTTL:      lockTTL,
	}
}

// RecordSaleInput is a full cart sale for one customer.
type RecordSaleInput struct {
	CustomerID    int64
	Lines         []CartLine
	OrderDiscount float64
	Method        PaymentMethod
	DueDates      []time.Time
	SoldAt        time.Time
	Seller        string
}

// SaleResult is the persisted outcome of a sale.
type SaleResult struct {
	Charges  []Charge `json:"charges"`
	NetTotal float64  `json:"net_total"`
}

// RecordSale builds one charge per cart line and persists them atomically
// under the customer's lock.
func (s *Service) RecordSale(ctx context.Context, in RecordSaleInput) (*SaleResult, error) {
	if in.CustomerID <= 0 {
		return nil, fmt.Errorf("%w: customer id required", ErrValidation)
	}
	charges, err := BuildCharges(BuildChargesInput{
		Lines:         in.Lines,
		OrderDiscount: in.OrderDiscount,
		Method:        in.Method,
		DueDates:      in.DueDates,
		SoldAt:        in.SoldAt,
		Seller:        in.Seller,
	})
	if err != nil {
		return nil, err
	}
	// Existence check before taking the lock; unknown customers fail fast.
	if _, err := s.repo.GetCustomerCredit(ctx, in.CustomerID); err != nil {
		return nil, err
	}

	result := &SaleResult{}
	err = s.locker.WithLock(ctx, lock.CustomerKey(in.CustomerID), s.lockTTL, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
			for i := range charges {
				charges[i].CustomerID = in.CustomerID
				if err := repo.CreateCharge(ctx, &charges[i]); err != nil {
					return err
				}
				result.NetTotal = money.Round2(result.NetTotal + charges[i].Net)
			}
			result.Charges = charges
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, in.CustomerID)
	if s.metrics != nil {
		s.metrics.SalesRecorded.WithLabelValues(string(in.Method)).Inc()
	}
	s.logger.Info("sale recorded",
		slog.Int64("customer_id", in.CustomerID),
		slog.Int("lines", len(result.Charges)),
		slog.Float64("net_total", result.NetTotal),
		slog.String("method", string(in.Method)),
	)
	return result, nil
}

// ApplyPaymentInput is an incoming receipt from a customer.
type ApplyPaymentInput struct {
	CustomerID int64
	Amount     float64
	Method     PaymentMethod
	Note       string
	PaidAt     time.Time
	// IncludeCredit drains the customer's carried credit into this
	// settlement. Credit is never consumed implicitly.
	IncludeCredit bool
}

// SettlementOutcome reports how a payment landed.
type SettlementOutcome struct {
	Payment       Payment      `json:"payment"`
	Allocations   []Allocation `json:"allocations"`
	Applied       float64      `json:"applied"`
	CreditCarried float64      `json:"credit_carried"`
	CreditUsed    float64      `json:"credit_used"`
}

// ApplyPayment applies an incoming payment across the customer's open
// charges oldest-first. The payment record, every balance update and the
// credit adjustment commit in one transaction inside the customer's lock;
// a failed write rolls everything back. Any remainder after the last open
// charge is carried forward as non-negative customer credit.
func (s *Service) ApplyPayment(ctx context.Context, in ApplyPaymentInput) (*SettlementOutcome, error) {
	if in.Amount <= 0 {
		return nil, fmt.Errorf("%w: payment amount must be positive", ErrValidation)
	}
	if in.Method != "" && !in.Method.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrValidation, in.Method)
	}
	if _, err := s.repo.GetCustomerCredit(ctx, in.CustomerID); err != nil {
		return nil, err
	}
	paidAt := in.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now()
	}

	outcome := &SettlementOutcome{}
	err := s.locker.WithLock(ctx, lock.CustomerKey(in.CustomerID), s.lockTTL, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
			amount := money.Round2(in.Amount)
			if in.IncludeCredit {
				credit, err := repo.GetCustomerCredit(ctx, in.CustomerID)
				if err != nil {
					return err
				}
				if credit > 0 {
					amount = money.Round2(amount + credit)
					outcome.CreditUsed = credit
				}
			}

			charges, err := repo.ListOpenCharges(ctx, in.CustomerID)
			if err != nil {
				return err
			}
			refs := make([]*Charge, len(charges))
			for i := range charges {
				refs[i] = &charges[i]
			}

			result, err := AllocateFIFO(refs, amount)
			if err != nil {
				return err
			}

			for _, a := range result.Allocations {
				for i := range charges {
					if charges[i].ID == a.ChargeID {
						if err := repo.UpdateChargeBalances(ctx, &charges[i]); err != nil {
							return err
						}
						break
					}
				}
			}

			payment := Payment{
				CustomerID:     in.CustomerID,
				Amount:         money.Round2(in.Amount),
				Method:         in.Method,
				Note:           in.Note,
				PaidAt:         paidAt,
				AppliedAmount:  result.Applied,
				CreditedAmount: result.Remainder,
			}
			if err := repo.CreatePayment(ctx, &payment, result.Allocations); err != nil {
				return err
			}

			creditDelta := money.Round2(result.Remainder - outcome.CreditUsed)
			if creditDelta != 0 {
				if err := repo.AddCustomerCredit(ctx, in.CustomerID, creditDelta); err != nil {
					return err
				}
			}

			outcome.Payment = payment
			outcome.Allocations = result.Allocations
			outcome.Applied = result.Applied
			outcome.CreditCarried = result.Remainder
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, in.CustomerID)
	if s.metrics != nil {
		s.metrics.PaymentsApplied.Inc()
		if outcome.CreditCarried > 0 {
			s.metrics.CreditCarried.Inc()
		}
	}
	s.logger.Info("payment applied",
		slog.Int64("customer_id", in.CustomerID),
		slog.Float64("amount", in.Amount),
		slog.Float64("applied", outcome.Applied),
		slog.Float64("credit_carried", outcome.CreditCarried),
		slog.Int("charges_touched", len(outcome.Allocations)),
	)
	return outcome, nil
}

// VoidCharge removes a charge from the books. Void is the only way a charge
// leaves the ledger; its history stays for audit.
func (s *Service) VoidCharge(ctx context.Context, chargeID int64, reason string) error {
	ch, err := s.repo.GetCharge(ctx, chargeID)
	if err != nil {
		return err
	}
	err = s.locker.WithLock(ctx, lock.CustomerKey(ch.CustomerID), s.lockTTL, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
			return repo.VoidCharge(ctx, chargeID, reason)
		})
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(ctx, ch.CustomerID)
	s.logger.Info("charge voided", slog.Int64("charge_id", chargeID), slog.String("reason", reason))
	return nil
}

// CorrectChargeInput fixes a mis-entered quantity or price.
type CorrectChargeInput struct {
	Quantity  int
	UnitPrice float64
}

// CorrectCharge recomputes a charge's totals from corrected inputs. Only
// untouched charges can be corrected; once money has been applied the fix
// is a void plus a new sale.
func (s *Service) CorrectCharge(ctx context.Context, chargeID int64, in CorrectChargeInput) (*Charge, error) {
	if in.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if in.UnitPrice < 0 {
		return nil, fmt.Errorf("%w: unit price cannot be negative", ErrValidation)
	}
	ch, err := s.repo.GetCharge(ctx, chargeID)
	if err != nil {
		return nil, err
	}
	if ch.Status != StatusPending {
		return nil, fmt.Errorf("%w: only pending charges can be corrected", ErrValidation)
	}
	if ch.PaidToDate > money.Epsilon {
		return nil, fmt.Errorf("%w: charge already has payments applied", ErrValidation)
	}

	err = s.locker.WithLock(ctx, lock.CustomerKey(ch.CustomerID), s.lockTTL, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
			ch.Quantity = in.Quantity
			ch.UnitPrice = in.UnitPrice
			ch.Gross = money.Round2(float64(in.Quantity) * in.UnitPrice)
			discount := money.Round2(ch.Gross * ch.DiscountFraction)
			ch.Net = money.Round2(ch.Gross - discount)
			ch.Outstanding = ch.Net
			// The plan must keep summing to net; reschedule it over the
			// existing due dates.
			if len(ch.Installments) > 0 {
				dueDates := make([]time.Time, len(ch.Installments))
				for i := range ch.Installments {
					dueDates[i] = ch.Installments[i].DueDate
				}
				plan, err := ScheduleInstallments(ch.Net, dueDates)
				if err != nil {
					return err
				}
				if err := repo.ReplaceInstallments(ctx, ch.ID, plan); err != nil {
					return err
				}
				ch.Installments = plan
			}
			return repo.UpdateChargeBalances(ctx, ch)
		})
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, ch.CustomerID)
	s.logger.Info("charge corrected", slog.Int64("charge_id", chargeID))
	return ch, nil
}

// ChargeView is an open charge with its accrual projection attached.
type ChargeView struct {
	Charge  Charge  `json:"charge"`
	Accrual Accrual `json:"accrual"`
}

// CustomerStatement is the per-customer ledger view.
type CustomerStatement struct {
	CustomerID    int64          `json:"customer_id"`
	OpenCharges   []ChargeView   `json:"open_charges"`
	CreditBalance float64        `json:"credit_balance"`
	Rollup        LedgerSnapshot `json:"rollup"`
	AsOf          time.Time      `json:"as_of"`
}

// Statement assembles a customer's open charges with accrual projections,
// carried credit and the per-customer rollup. Reads run lock-free through
// the open-charges cache.
func (s *Service) Statement(ctx context.Context, customerID int64, asOf time.Time) (*CustomerStatement, error) {
	if asOf.IsZero() {
		asOf = time.Now()
	}
	credit, err := s.repo.GetCustomerCredit(ctx, customerID)
	if err != nil {
		return nil, err
	}

	open, err := s.cache.OpenCharges(ctx, customerID, func(ctx context.Context) ([]Charge, error) {
		return s.repo.ListOpenCharges(ctx, customerID)
	})
	if err != nil {
		return nil, err
	}

	all, err := s.repo.ListCharges(ctx, ListChargesRequest{CustomerID: customerID})
	if err != nil {
		return nil, err
	}

	stmt := &CustomerStatement{
		CustomerID:    customerID,
		CreditBalance: credit,
		Rollup:        Summarize(all, SnapshotFilter{CustomerID: customerID}),
		AsOf:          asOf,
	}
	for i := range open {
		ch := open[i]
		stmt.OpenCharges = append(stmt.OpenCharges, ChargeView{
			Charge:  ch,
			Accrual: Accrue(&ch, asOf, s.legacyCutoff),
		})
	}
	return stmt, nil
}

// Summary aggregates the whole store's ledger.
func (s *Service) Summary(ctx context.Context, filter SnapshotFilter) (LedgerSnapshot, error) {
	charges, err := s.repo.ListCharges(ctx, ListChargesRequest{})
	if err != nil {
		return LedgerSnapshot{}, err
	}
	return Summarize(charges, filter), nil
}

// ListPayments returns the audit trail, optionally scoped to one customer.
func (s *Service) ListPayments(ctx context.Context, customerID int64) ([]Payment, error) {
	return s.repo.ListPayments(ctx, customerID)
}

// LegacyCutoff exposes the configured accrual exemption date.
func (s *Service) LegacyCutoff() time.Time {
	return s.legacyCutoff
}

// WarmCaches preloads the open-charge cache for every customer that still
// owes something. Returns the number of customers warmed.
func (s *Service) WarmCaches(ctx context.Context) (int, error) {
	open, err := s.repo.ListOpenCharges(ctx, 0)
	if err != nil {
		return 0, err
	}
	seen := make(map[int64]struct{})
	for i := range open {
		seen[open[i].CustomerID] = struct{}{}
	}
	for id := range seen {
		id := id
		_, err := s.cache.OpenCharges(ctx, id, func(ctx context.Context) ([]Charge, error) {
			return s.repo.ListOpenCharges(ctx, id)
		})
		if err != nil {
			return 0, err
		}
	}
	return len(seen), nil
}

// OverdueCounts classifies every open charge for the collection report.
func (s *Service) OverdueCounts(ctx context.Context, asOf time.Time) (map[OverdueClass]int, error) {
	if asOf.IsZero() {
		asOf = time.Now()
	}
	open, err := s.repo.ListOpenCharges(ctx, 0)
	if err != nil {
		return nil, err
	}
	counts := make(map[OverdueClass]int)
	for i := range open {
		acc := Accrue(&open[i], asOf, s.legacyCutoff)
		counts[acc.Class]++
	}
	return counts, nil
}
