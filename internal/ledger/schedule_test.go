package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sweethome/ledger/internal/money"
)

func monthlyDates(n int) []time.Time {
	start := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.AddDate(0, i, 0)
	}
	return out
}

func TestScheduleInstallmentsEvenSplit(t *testing.T) {
	plan, err := ScheduleInstallments(300, monthlyDates(3))
	require.NoError(t, err)
	require.Len(t, plan, 3)
	for i, ins := range plan {
		require.Equal(t, i+1, ins.Seq)
		require.Equal(t, 100.0, ins.Amount)
	}
}

func TestScheduleInstallmentsLastAbsorbsRemainder(t *testing.T) {
	plan, err := ScheduleInstallments(100, monthlyDates(3))
	require.NoError(t, err)
	require.Equal(t, 33.33, plan[0].Amount)
	require.Equal(t, 33.33, plan[1].Amount)
	require.Equal(t, 33.34, plan[2].Amount)

	var total float64
	for _, ins := range plan {
		total = money.Round2(total + ins.Amount)
	}
	require.Equal(t, 100.0, total)
}

func TestScheduleInstallmentsSumsExactly(t *testing.T) {
	for _, net := range []float64{0.01, 0.05, 199.90, 1234.56, 999.99} {
		for n := 1; n <= 12; n++ {
			plan, err := ScheduleInstallments(net, monthlyDates(n))
			require.NoError(t, err)
			var total float64
			for _, ins := range plan {
				total = money.Round2(total + ins.Amount)
			}
			require.Equalf(t, net, total, "net=%v n=%d", net, n)
		}
	}
}

func TestScheduleInstallmentsValidation(t *testing.T) {
	_, err := ScheduleInstallments(100, nil)
	require.ErrorIs(t, err, ErrValidation)

	_, err = ScheduleInstallments(-1, monthlyDates(2))
	require.ErrorIs(t, err, ErrValidation)

	decreasing := []time.Time{
		time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC),
	}
	_, err = ScheduleInstallments(100, decreasing)
	require.ErrorIs(t, err, ErrValidation)
}

func TestScheduleInstallmentsZeroNet(t *testing.T) {
	plan, err := ScheduleInstallments(0, monthlyDates(2))
	require.NoError(t, err)
	require.Zero(t, plan[0].Amount)
	require.Zero(t, plan[1].Amount)
}
