// Package legacy imports historical sales rows exported from the old
// spreadsheet workbook. Values arrive as display strings in Brazilian
// formats; malformed cells parse to zero with a logged warning instead of
// aborting the whole import.
package legacy

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sweethome/ledger/internal/customer"
	"github.com/sweethome/ledger/internal/ledger"
	"github.com/sweethome/ledger/internal/money"
)

// Row is one exported sales line, by column, as the sheet stored it.
type Row struct {
	SoldAt       string // dd/mm/yyyy
	CustomerName string
	ProductCode  string
	ProductName  string
	Quantity     string
	UnitPrice    string // "R$ 1.234,56"
	Discount     string // absolute value in BRL
	Method       string
	Installments string
	PaidToDate   string // BRL
	Status       string // Pendente, Pago, Em dia
	DueDate      string // dd/mm/yyyy, blank for immediate sales
	Seller       string
}

// CustomerResolver finds or registers the account a row belongs to.
type CustomerResolver interface {
	FindOrCreateByName(ctx context.Context, name string) (*customer.Customer, error)
}

// Importer replays exported rows into the ledger, creating customer
// accounts as they first appear.
type Importer struct {
	repo      ledger.Repository
	customers CustomerResolver
	logger    *slog.Logger
}

func NewImporter(repo ledger.Repository, customers CustomerResolver, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{repo: repo, customers: customers, logger: logger}
}

// Summary reports what an import run did.
type Summary struct {
	Imported int
	Skipped  int
}

// Import replays rows in order. Rows missing a customer name or product are
// skipped and counted; everything else imports with zero defaults for
// unparseable amounts.
func (im *Importer) Import(ctx context.Context, rows []Row) (Summary, error) {
	var sum Summary
	for i, row := range rows {
		if strings.TrimSpace(row.CustomerName) == "" || strings.TrimSpace(row.ProductName) == "" {
			im.logger.Warn("skipping legacy row", slog.Int("row", i+1), slog.String("reason", "missing customer or product"))
			sum.Skipped++
			continue
		}
		if err := im.importRow(ctx, i+1, row); err != nil {
			return sum, fmt.Errorf("legacy row %d: %w", i+1, err)
		}
		sum.Imported++
	}
	return sum, nil
}

func (im *Importer) importRow(ctx context.Context, n int, row Row) error {
	cust, err := im.customers.FindOrCreateByName(ctx, row.CustomerName)
	if err != nil {
		return err
	}

	qty := im.parseInt(n, "quantity", row.Quantity, 1)
	price := im.parseAmount(n, "unit_price", row.UnitPrice)
	discount := im.parseAmount(n, "discount", row.Discount)
	paid := im.parseAmount(n, "paid_to_date", row.PaidToDate)
	soldAt := im.parseDate(n, "sold_at", row.SoldAt)
	if soldAt.IsZero() {
		soldAt = time.Now()
	}

	gross := money.Round2(float64(qty) * price)
	net := money.Round2(gross - discount)
	if net < 0 {
		im.logger.Warn("legacy discount exceeds line total, clamping", slog.Int("row", n))
		net = 0
	}
	// Fraction stays inside [0, 1] even when the sheet's discount overshoots
	// the line total.
	fraction := 0.0
	if gross > 0 {
		fraction = discount / gross
		if fraction > 1 {
			fraction = 1
		}
	}

	method := ledger.PaymentMethod(strings.TrimSpace(row.Method))
	if !method.Valid() {
		im.logger.Warn("unknown legacy payment method, assuming cash", slog.Int("row", n), slog.String("method", row.Method))
		method = ledger.MethodCash
	}

	ch := ledger.Charge{
		CustomerID:       cust.ID,
		ProductCode:      strings.TrimSpace(row.ProductCode),
		ProductName:      strings.TrimSpace(row.ProductName),
		Quantity:         qty,
		UnitPrice:        price,
		DiscountFraction: fraction,
		Gross:            gross,
		Net:              net,
		Method:           method,
		Seller:           strings.TrimSpace(row.Seller),
		SoldAt:           soldAt,
		PaidToDate:       money.Round2(paid),
		Outstanding:      money.Round2(net - paid),
	}
	if ch.Outstanding < 0 {
		ch.Outstanding = 0
	}

	status := strings.TrimSpace(row.Status)
	if method.Immediate() || status == "Pago" || money.IsSettled(ch.Outstanding) {
		ch.Status = ledger.StatusPaid
		ch.PaidToDate = net
		ch.Outstanding = 0
	} else {
		ch.Status = ledger.StatusPending
		if due := im.parseDate(n, "due_date", row.DueDate); !due.IsZero() {
			ch.DueDate = &due
		}
		if count := im.parseInt(n, "installments", row.Installments, 1); count > 1 {
			ch.InstallmentCount = count
		} else {
			ch.InstallmentCount = 1
		}
	}

	return im.repo.WithTx(ctx, func(ctx context.Context, repo ledger.Repository) error {
		return repo.CreateCharge(ctx, &ch)
	})
}

func (im *Importer) parseAmount(row int, field, raw string) float64 {
	if strings.TrimSpace(raw) == "" {
		return 0
	}
	v, ok := money.ParseBRL(raw)
	if !ok {
		im.logger.Warn("unparseable legacy amount, defaulting to zero",
			slog.Int("row", row), slog.String("field", field), slog.String("value", raw))
		return 0
	}
	return v
}

func (im *Importer) parseInt(row int, field, raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		im.logger.Warn("unparseable legacy count, using fallback",
			slog.Int("row", row), slog.String("field", field), slog.String("value", raw))
		return fallback
	}
	return v
}

func (im *Importer) parseDate(row int, field, raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse("02/01/2006", raw)
	if err != nil {
		im.logger.Warn("unparseable legacy date",
			slog.Int("row", row), slog.String("field", field), slog.String("value", raw))
		return time.Time{}
	}
	return t
}
