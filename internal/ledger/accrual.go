package ledger

import (
	"time"

	"github.com/sweethome/ledger/internal/money"
)

const (
	penaltyRate         = 0.02 // flat, charged once when overdue
	monthlyInterestRate = 0.01 // simple, pro-rated per day over 30 days
	criticalAfterDays   = 30
)

// Accrue computes the overdue surcharge projection for a charge as of a
// date. Charges due before the legacy cutoff never accrue anything, however
// late: the cutoff encodes the date the store started charging for delay,
// and older flex plans were sold without that clause.
//
// The result is display-only. The principal balance is never adjusted, so
// the outstanding+paid==net invariant stays clean of accrual math.
func Accrue(ch *Charge, asOf, legacyCutoff time.Time) Accrual {
	if ch.DueDate == nil || !ch.Open() {
		return Accrual{Class: ClassNone, AdjustedBalance: ch.Outstanding}
	}
	due := *ch.DueDate

	daysLate := daysBetween(due, asOf)
	if due.Before(legacyCutoff) {
		return Accrual{
			DaysLate:        maxInt(daysLate, 0),
			Class:           ClassLegacy,
			AdjustedBalance: ch.Outstanding,
		}
	}

	acc := Accrual{AdjustedBalance: ch.Outstanding}
	switch {
	case daysLate > criticalAfterDays:
		acc.Class = ClassCritical
	case daysLate > 0:
		acc.Class = ClassRecent
	case daysLate == 0:
		acc.Class = ClassDueToday
	default:
		acc.Class = ClassUpcoming
		acc.UpcomingDays = -daysLate
	}
	if daysLate > 0 {
		acc.DaysLate = daysLate
		acc.Penalty = money.Round2(ch.Outstanding * penaltyRate)
		acc.Interest = money.Round2(ch.Outstanding * (monthlyInterestRate / 30) * float64(daysLate))
		acc.AdjustedBalance = money.Round2(ch.Outstanding + acc.Penalty + acc.Interest)
	}
	return acc
}

// daysBetween counts whole calendar days from a to b, negative when b is
// before a. Time-of-day is ignored; a charge due today is not late yet.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	at := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	bt := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(bt.Sub(at).Hours() / 24)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
