package ledger

import (
	"fmt"
	"time"

	"github.com/sweethome/ledger/internal/money"
)

// ScheduleInstallments splits a net total into len(dueDates) dated slices.
// Each installment is round(net/n, 2) except the last, which absorbs the
// rounding remainder so the plan sums to net exactly.
func ScheduleInstallments(net float64, dueDates []time.Time) ([]Installment, error) {
	n := len(dueDates)
	if n < 1 {
		return nil, fmt.Errorf("%w: installment count must be at least 1", ErrValidation)
	}
	if net < 0 {
		return nil, fmt.Errorf("%w: net total cannot be negative", ErrValidation)
	}
	for i := 1; i < n; i++ {
		if dueDates[i].Before(dueDates[i-1]) {
			return nil, fmt.Errorf("%w: due dates must not decrease", ErrValidation)
		}
	}

	base := money.Round2(net / float64(n))
	out := make([]Installment, n)
	var allocated float64
	for i := 0; i < n-1; i++ {
		out[i] = Installment{Seq: i + 1, Amount: base, DueDate: dueDates[i]}
		allocated += base
	}
	out[n-1] = Installment{Seq: n, Amount: money.Round2(net - allocated), DueDate: dueDates[n-1]}
	return out, nil
}
