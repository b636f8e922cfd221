package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildChargesImmediateSale(t *testing.T) {
	soldAt := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	charges, err := BuildCharges(BuildChargesInput{
		Lines: []CartLine{
			{ProductCode: "EDR-CASAL", ProductName: "Edredom Casal", Quantity: 2, UnitPrice: 100},
		},
		Method: MethodPix,
		SoldAt: soldAt,
		Seller: "Loja",
	})
	require.NoError(t, err)
	require.Len(t, charges, 1)

	ch := charges[0]
	require.Equal(t, StatusPaid, ch.Status)
	require.Equal(t, 200.0, ch.Gross)
	require.Equal(t, 200.0, ch.Net)
	require.Equal(t, 200.0, ch.PaidToDate)
	require.Zero(t, ch.Outstanding)
	require.Nil(t, ch.DueDate)
	require.False(t, ch.Open())
}

func TestBuildChargesProportionalDiscount(t *testing.T) {
	charges, err := BuildCharges(BuildChargesInput{
		Lines: []CartLine{
			{ProductCode: "A", ProductName: "Caro", Quantity: 1, UnitPrice: 300},
			{ProductCode: "B", ProductName: "Barato", Quantity: 1, UnitPrice: 100},
		},
		OrderDiscount: 40,
		Method:        MethodCash,
	})
	require.NoError(t, err)
	require.Len(t, charges, 2)

	// 40 split 3:1 across the 300/100 lines.
	require.Equal(t, 270.0, charges[0].Net)
	require.Equal(t, 90.0, charges[1].Net)
	require.InDelta(t, 0.1, charges[0].DiscountFraction, 1e-9)
	require.InDelta(t, 0.1, charges[1].DiscountFraction, 1e-9)
	require.Equal(t, 360.0, charges[0].Net+charges[1].Net)
}

func TestBuildChargesInstallmentPlan(t *testing.T) {
	due := []time.Time{
		time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC),
	}
	charges, err := BuildCharges(BuildChargesInput{
		Lines:    []CartLine{{ProductCode: "JGL", ProductName: "Jogo de Lencol", Quantity: 1, UnitPrice: 100}},
		Method:   MethodSweetFlex,
		DueDates: due,
	})
	require.NoError(t, err)
	require.Len(t, charges, 1)

	ch := charges[0]
	require.Equal(t, StatusPending, ch.Status)
	require.Equal(t, 100.0, ch.Outstanding)
	require.Zero(t, ch.PaidToDate)
	require.Equal(t, 3, ch.InstallmentCount)
	require.NotNil(t, ch.DueDate)
	require.True(t, ch.DueDate.Equal(due[0]))
	require.Len(t, ch.Installments, 3)
	require.True(t, ch.Open())
}

func TestBuildChargesValidation(t *testing.T) {
	cases := []struct {
		name string
		in   BuildChargesInput
	}{
		{"empty cart", BuildChargesInput{Method: MethodPix}},
		{"unknown method", BuildChargesInput{
			Lines:  []CartLine{{ProductName: "X", Quantity: 1, UnitPrice: 10}},
			Method: "Boleto",
		}},
		{"negative discount", BuildChargesInput{
			Lines:         []CartLine{{ProductName: "X", Quantity: 1, UnitPrice: 10}},
			Method:        MethodPix,
			OrderDiscount: -1,
		}},
		{"discount exceeds subtotal", BuildChargesInput{
			Lines:         []CartLine{{ProductName: "X", Quantity: 1, UnitPrice: 10}},
			Method:        MethodPix,
			OrderDiscount: 10.01,
		}},
		{"zero quantity", BuildChargesInput{
			Lines:  []CartLine{{ProductName: "X", Quantity: 0, UnitPrice: 10}},
			Method: MethodPix,
		}},
		{"negative price", BuildChargesInput{
			Lines:  []CartLine{{ProductName: "X", Quantity: 1, UnitPrice: -5}},
			Method: MethodPix,
		}},
		{"flex without due dates", BuildChargesInput{
			Lines:  []CartLine{{ProductName: "X", Quantity: 1, UnitPrice: 10}},
			Method: MethodSweetFlex,
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BuildCharges(tc.in)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestBuildChargesDiscountSumsExactly(t *testing.T) {
	// Five equal lines split an order discount that does not divide evenly;
	// the per-line rounding must not drift off the order total.
	lines := make([]CartLine, 5)
	for i := range lines {
		lines[i] = CartLine{ProductName: "Fronha", Quantity: 1, UnitPrice: 10}
	}
	charges, err := BuildCharges(BuildChargesInput{
		Lines:         lines,
		OrderDiscount: 0.13,
		Method:        MethodPix,
	})
	require.NoError(t, err)

	var allocated float64
	for _, ch := range charges {
		allocated += ch.Gross - ch.Net
	}
	require.InDelta(t, 0.13, allocated, 1e-9)

	// The absorbing line carries the remainder, everyone else the rounded
	// proportional share.
	require.InDelta(t, 0.03, charges[0].Gross-charges[0].Net, 1e-9)
	require.InDelta(t, 0.01, charges[4].Gross-charges[4].Net, 1e-9)
}

func TestBuildChargesTooManyInstallments(t *testing.T) {
	due := make([]time.Time, 13)
	start := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	for i := range due {
		due[i] = start.AddDate(0, i, 0)
	}
	_, err := BuildCharges(BuildChargesInput{
		Lines:    []CartLine{{ProductName: "Edredom", Quantity: 1, UnitPrice: 1200}},
		Method:   MethodSweetFlex,
		DueDates: due,
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestBuildChargesZeroPricedLine(t *testing.T) {
	charges, err := BuildCharges(BuildChargesInput{
		Lines: []CartLine{
			{ProductName: "Brinde", Quantity: 1, UnitPrice: 0},
			{ProductName: "Toalha", Quantity: 1, UnitPrice: 50},
		},
		OrderDiscount: 10,
		Method:        MethodCard,
	})
	require.NoError(t, err)
	require.Zero(t, charges[0].Net)
	require.Zero(t, charges[0].DiscountFraction)
	require.Equal(t, 40.0, charges[1].Net)
}
