package ledger

import (
	"fmt"
	"time"

	"github.com/sweethome/ledger/internal/money"
)

// CartLine is one product line of a sale before it becomes a charge.
type CartLine struct {
	ProductCode string
	ProductName string
	Quantity    int
	UnitPrice   float64
	UnitCost    float64
}

// BuildChargesInput carries everything needed to turn a cart into charges.
type BuildChargesInput struct {
	Lines         []CartLine
	OrderDiscount float64
	Method        PaymentMethod
	DueDates      []time.Time
	SoldAt        time.Time
	Seller        string
}

const maxInstallments = 12

// BuildCharges produces one charge per cart line. The order-level discount is
// distributed across lines proportionally to each line's subtotal so that
// per-line margin accounting stays correct; an even split would misstate the
// margin of cheap lines sold next to expensive ones. The last priced line
// absorbs the rounding remainder so the per-line discounts sum to the order
// discount exactly, the same remainder rule the installment plan uses.
//
// Immediate methods (Pix, cash, card) settle at sale time: the charge is born
// Paid with a zero balance. The installment plan leaves the full net open and
// splits it across the supplied due dates.
func BuildCharges(in BuildChargesInput) ([]Charge, error) {
	if len(in.Lines) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", ErrValidation)
	}
	if !in.Method.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrValidation, in.Method)
	}
	if in.OrderDiscount < 0 {
		return nil, fmt.Errorf("%w: discount cannot be negative", ErrValidation)
	}

	var orderSubtotal float64
	for i, line := range in.Lines {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: line %d quantity must be positive", ErrValidation, i+1)
		}
		if line.UnitPrice < 0 {
			return nil, fmt.Errorf("%w: line %d unit price cannot be negative", ErrValidation, i+1)
		}
		orderSubtotal += float64(line.Quantity) * line.UnitPrice
	}
	if in.OrderDiscount > orderSubtotal {
		return nil, fmt.Errorf("%w: discount exceeds order subtotal", ErrValidation)
	}

	installmentCount := 1
	if in.Method == MethodSweetFlex {
		installmentCount = len(in.DueDates)
		if installmentCount < 1 {
			return nil, fmt.Errorf("%w: installment plan requires at least one due date", ErrValidation)
		}
		if installmentCount > maxInstallments {
			return nil, fmt.Errorf("%w: installment plan allows at most %d due dates", ErrValidation, maxInstallments)
		}
	}

	soldAt := in.SoldAt
	if soldAt.IsZero() {
		soldAt = time.Now()
	}

	// Zero-priced lines get no discount; the last priced line takes the
	// order discount minus everything already handed out, capped at its own
	// subtotal so no line nets negative.
	discounts := make([]float64, len(in.Lines))
	if in.OrderDiscount > 0 {
		lastPriced := -1
		for i, line := range in.Lines {
			if float64(line.Quantity)*line.UnitPrice > 0 {
				lastPriced = i
			}
		}
		var allocated float64
		for i, line := range in.Lines {
			subtotal := float64(line.Quantity) * line.UnitPrice
			if subtotal <= 0 {
				continue
			}
			if i == lastPriced {
				discounts[i] = money.Round2(in.OrderDiscount - allocated)
				if discounts[i] > subtotal {
					discounts[i] = money.Round2(subtotal)
				}
			} else {
				discounts[i] = money.Round2(in.OrderDiscount * subtotal / orderSubtotal)
				allocated = money.Round2(allocated + discounts[i])
			}
		}
	}

	charges := make([]Charge, 0, len(in.Lines))
	for i, line := range in.Lines {
		subtotal := float64(line.Quantity) * line.UnitPrice
		gross := money.Round2(subtotal)

		lineDiscount := discounts[i]
		var fraction float64
		if subtotal > 0 && lineDiscount > 0 {
			fraction = lineDiscount / subtotal
		}
		net := money.Round2(gross - lineDiscount)

		ch := Charge{
			CustomerID:       0, // assigned by the service once the customer is resolved
			ProductCode:      line.ProductCode,
			ProductName:      line.ProductName,
			Quantity:         line.Quantity,
			UnitPrice:        line.UnitPrice,
			UnitCost:         line.UnitCost,
			DiscountFraction: fraction,
			Gross:            gross,
			Net:              net,
			Method:           in.Method,
			InstallmentCount: installmentCount,
			Seller:           in.Seller,
			SoldAt:           soldAt,
		}

		if in.Method.Immediate() {
			ch.Status = StatusPaid
			ch.PaidToDate = net
			ch.Outstanding = 0
		} else {
			ch.Status = StatusPending
			ch.PaidToDate = 0
			ch.Outstanding = net
			plan, err := ScheduleInstallments(net, in.DueDates)
			if err != nil {
				return nil, err
			}
			ch.Installments = plan
			first := in.DueDates[0]
			ch.DueDate = &first
		}

		charges = append(charges, ch)
	}
	return charges, nil
}
