package ledger

import (
	"fmt"
	"time"

	"github.com/sweethome/ledger/internal/money"
	"github.com/sweethome/ledger/internal/platform/httpx"
)

// PaymentMethod enumerates how a sale is paid.
type PaymentMethod string

const (
	MethodPix       PaymentMethod = "Pix"
	MethodCash      PaymentMethod = "Dinheiro"
	MethodCard      PaymentMethod = "Cartão"
	MethodSweetFlex PaymentMethod = "Sweet Flex"
)

// Immediate reports whether the method settles at sale time. Only the
// installment plan leaves a balance on the books.
func (m PaymentMethod) Immediate() bool {
	return m != MethodSweetFlex
}

// Valid reports whether the method is one the store accepts.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodPix, MethodCash, MethodCard, MethodSweetFlex:
		return true
	}
	return false
}

// ChargeStatus enumerates charge lifecycle states.
type ChargeStatus string

const (
	StatusPending   ChargeStatus = "Pendente"
	StatusPaid      ChargeStatus = "Pago"
	StatusCancelled ChargeStatus = "Cancelado"
)

// Installment is one dated slice of a charge's net total.
type Installment struct {
	ID       int64     `json:"id"`
	ChargeID int64     `json:"charge_id"`
	Seq      int       `json:"seq"`
	Amount   float64   `json:"amount"`
	DueDate  time.Time `json:"due_date"`
}

// Charge is one line of a sale: money owed by a customer for one product
// line. Quantity, price and product name are snapshotted at sale time and
// never re-derived from the live catalog record.
type Charge struct {
	ID               int64         `json:"id"`
	CustomerID       int64         `json:"customer_id"`
	ProductCode      string        `json:"product_code"`
	ProductName      string        `json:"product_name"`
	Quantity         int           `json:"quantity"`
	UnitPrice        float64       `json:"unit_price"`
	UnitCost         float64       `json:"unit_cost"`
	DiscountFraction float64       `json:"discount_fraction"`
	Gross            float64       `json:"gross"`
	Net              float64       `json:"net"`
	Method           PaymentMethod `json:"method"`
	InstallmentCount int           `json:"installment_count"`
	Installments     []Installment `json:"installments,omitempty"`
	PaidToDate       float64       `json:"paid_to_date"`
	Outstanding      float64       `json:"outstanding"`
	Status           ChargeStatus  `json:"status"`
	Seller           string        `json:"seller,omitempty"`
	SoldAt           time.Time     `json:"sold_at"`
	DueDate          *time.Time    `json:"due_date,omitempty"`
	VoidReason       string        `json:"void_reason,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Open reports whether the charge can still receive settlements.
func (c *Charge) Open() bool {
	return c.Status == StatusPending && !money.IsSettled(c.Outstanding)
}

// Payment is the append-only audit record of money received. A payment is
// recorded even when it only partially applies.
type Payment struct {
	ID             int64         `json:"id"`
	CustomerID     int64         `json:"customer_id"`
	Amount         float64       `json:"amount"`
	Method         PaymentMethod `json:"method"`
	Note           string        `json:"note,omitempty"`
	PaidAt         time.Time     `json:"paid_at"`
	AppliedAmount  float64       `json:"applied_amount"`
	CreditedAmount float64       `json:"credited_amount"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Allocation records how much of a payment landed on one charge.
type Allocation struct {
	ChargeID      int64   `json:"charge_id"`
	Amount        float64 `json:"amount"`
	BalanceBefore float64 `json:"balance_before"`
	BalanceAfter  float64 `json:"balance_after"`
}

// OverdueClass buckets a charge for collection reporting.
type OverdueClass string

const (
	ClassLegacy   OverdueClass = "Legacy"
	ClassCritical OverdueClass = "Critical"
	ClassRecent   OverdueClass = "Recent"
	ClassDueToday OverdueClass = "DueToday"
	ClassUpcoming OverdueClass = "Upcoming"
	ClassNone     OverdueClass = "None"
)

// Accrual is a read-only projection of overdue surcharges. It is never
// written back into the charge balance.
type Accrual struct {
	DaysLate        int          `json:"days_late"`
	Penalty         float64      `json:"penalty"`
	Interest        float64      `json:"interest"`
	AdjustedBalance float64      `json:"adjusted_balance"`
	Class           OverdueClass `json:"class"`
	UpcomingDays    int          `json:"upcoming_days,omitempty"`
}

// LedgerSnapshot aggregates totals over a charge set. Derived on demand,
// never persisted.
type LedgerSnapshot struct {
	GrossSales       float64 `json:"gross_sales"`
	OutstandingTotal float64 `json:"outstanding_total"`
	Collected        float64 `json:"collected"`
	ImmediateSales   float64 `json:"immediate_sales"`
	LiquidityIndex   float64 `json:"liquidity_index"`
	ChargeCount      int     `json:"charge_count"`
	OpenChargeCount  int     `json:"open_charge_count"`
}

// Sentinel errors surfaced by the ledger engine. Each wraps the shared
// transport sentinel so handlers map them to status codes.
var (
	ErrValidation = fmt.Errorf("ledger: %w", httpx.ErrValidation)
	ErrNotFound   = fmt.Errorf("ledger: %w", httpx.ErrNotFound)
	ErrConflict   = fmt.Errorf("ledger: %w", httpx.ErrConflict)
)
