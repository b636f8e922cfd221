package ledger

import (
	"fmt"
	"time"
)

// cartLinePayload is one product entry in a sale request.
type cartLinePayload struct {
	ProductCode string  `json:"product_code" validate:"required"`
	ProductName string  `json:"product_name" validate:"required"`
	Quantity    int     `json:"quantity" validate:"required,gt=0"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
	UnitCost    float64 `json:"unit_cost" validate:"gte=0"`
}

// createSalePayload is the POST /sales request body.
type createSalePayload struct {
	CustomerID    int64             `json:"customer_id" validate:"required,gt=0"`
	Lines         []cartLinePayload `json:"lines" validate:"required,min=1,dive"`
	OrderDiscount float64           `json:"order_discount" validate:"gte=0"`
	Method        string            `json:"method" validate:"required"`
	DueDates      []string          `json:"due_dates" validate:"omitempty,max=12,dive,required"`
	SoldAt        string            `json:"sold_at"`
	Seller        string            `json:"seller"`
}

func (p createSalePayload) toInput() (RecordSaleInput, error) {
	in := RecordSaleInput{
		CustomerID:    p.CustomerID,
		OrderDiscount: p.OrderDiscount,
		Method:        PaymentMethod(p.Method),
		Seller:        p.Seller,
		SoldAt:        time.Now(),
	}
	for _, l := range p.Lines {
		in.Lines = append(in.Lines, CartLine{
			ProductCode: l.ProductCode,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			UnitCost:    l.UnitCost,
		})
	}
	if p.SoldAt != "" {
		soldAt, err := time.Parse("2006-01-02", p.SoldAt)
		if err != nil {
			return in, fmt.Errorf("%w: invalid sold_at %q", ErrValidation, p.SoldAt)
		}
		in.SoldAt = soldAt
	}
	for _, raw := range p.DueDates {
		due, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return in, fmt.Errorf("%w: invalid due date %q", ErrValidation, raw)
		}
		in.DueDates = append(in.DueDates, due)
	}
	return in, nil
}

// createPaymentPayload is the POST /payments request body.
type createPaymentPayload struct {
	CustomerID    int64   `json:"customer_id" validate:"required,gt=0"`
	Amount        float64 `json:"amount" validate:"required,gt=0"`
	Method        string  `json:"method"`
	Note          string  `json:"note"`
	PaidAt        string  `json:"paid_at"`
	IncludeCredit bool    `json:"include_credit"`
}

func (p createPaymentPayload) toInput() (ApplyPaymentInput, error) {
	in := ApplyPaymentInput{
		CustomerID:    p.CustomerID,
		Amount:        p.Amount,
		Method:        PaymentMethod(p.Method),
		Note:          p.Note,
		IncludeCredit: p.IncludeCredit,
	}
	if p.PaidAt != "" {
		paidAt, err := time.Parse("2006-01-02", p.PaidAt)
		if err != nil {
			return in, fmt.Errorf("%w: invalid paid_at %q", ErrValidation, p.PaidAt)
		}
		in.PaidAt = paidAt
	}
	return in, nil
}

// voidChargePayload is the POST /charges/{id}/void request body.
type voidChargePayload struct {
	Reason string `json:"reason" validate:"required"`
}

// correctChargePayload is the POST /charges/{id}/correct request body.
type correctChargePayload struct {
	Quantity  int     `json:"quantity" validate:"required,gt=0"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
}

// saleResponse wraps a recorded sale with its rendered receipt.
type saleResponse struct {
	Sale    *SaleResult `json:"sale"`
	Receipt string      `json:"receipt,omitempty"`
}
