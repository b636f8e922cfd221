package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sweethome/ledger/internal/platform/db"
)

// Repository defines data access for the ledger engine. Balance-mutating
// calls are expected to run inside WithTx from within the per-customer lock.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	CreateCharge(ctx context.Context, ch *Charge) error
	GetCharge(ctx context.Context, id int64) (*Charge, error)
	ListOpenCharges(ctx context.Context, customerID int64) ([]Charge, error)
	ListCharges(ctx context.Context, req ListChargesRequest) ([]Charge, error)
	UpdateChargeBalances(ctx context.Context, ch *Charge) error
	ReplaceInstallments(ctx context.Context, chargeID int64, insts []Installment) error
	VoidCharge(ctx context.Context, id int64, reason string) error
	CreatePayment(ctx context.Context, p *Payment, allocs []Allocation) error
	ListPayments(ctx context.Context, customerID int64) ([]Payment, error)
	AddCustomerCredit(ctx context.Context, customerID int64, amount float64) error
	GetCustomerCredit(ctx context.Context, customerID int64) (float64, error)
}

// ListChargesRequest filters charge listings.
type ListChargesRequest struct {
	CustomerID int64
	Status     ChargeStatus
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const chargeColumns = `
	id, customer_id, product_code, product_name, quantity, unit_price,
	unit_cost, discount_fraction, gross, net, method, installment_count,
	paid_to_date, outstanding, status, seller, sold_at, due_date,
	void_reason, created_at, updated_at`

func (r *repository) CreateCharge(ctx context.Context, ch *Charge) error {
	query := `
		INSERT INTO charges (
			customer_id, product_code, product_name, quantity, unit_price,
			unit_cost, discount_fraction, gross, net, method, installment_count,
			paid_to_date, outstanding, status, seller, sold_at, due_date,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	var due pgtype.Date
	if ch.DueDate != nil {
		due = pgtype.Date{Time: *ch.DueDate, Valid: true}
	}

	err := r.db.QueryRow(ctx, query,
		ch.CustomerID,
		ch.ProductCode,
		ch.ProductName,
		ch.Quantity,
		ch.UnitPrice,
		ch.UnitCost,
		ch.DiscountFraction,
		ch.Gross,
		ch.Net,
		string(ch.Method),
		ch.InstallmentCount,
		ch.PaidToDate,
		ch.Outstanding,
		string(ch.Status),
		ch.Seller,
		ch.SoldAt,
		due,
	).Scan(&ch.ID, &ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		return mapPgError("create charge", err)
	}

	for i := range ch.Installments {
		inst := &ch.Installments[i]
		inst.ChargeID = ch.ID
		err := r.db.QueryRow(ctx,
			`INSERT INTO installments (charge_id, seq, amount, due_date) VALUES ($1, $2, $3, $4) RETURNING id`,
			ch.ID, inst.Seq, inst.Amount, inst.DueDate,
		).Scan(&inst.ID)
		if err != nil {
			return mapPgError("create installment", err)
		}
	}
	return nil
}

func (r *repository) GetCharge(ctx context.Context, id int64) (*Charge, error) {
	query := `SELECT ` + chargeColumns + ` FROM charges WHERE id = $1`
	ch, err := scanCharge(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: charge %d", ErrNotFound, id)
		}
		return nil, mapPgError("get charge", err)
	}

	insts, err := r.listInstallments(ctx, id)
	if err != nil {
		return nil, err
	}
	ch.Installments = insts
	return ch, nil
}

func (r *repository) ListOpenCharges(ctx context.Context, customerID int64) ([]Charge, error) {
	query := `SELECT ` + chargeColumns + `
		FROM charges
		WHERE status = $1 AND outstanding > $2`
	args := []any{string(StatusPending), 0.01}
	if customerID > 0 {
		query += ` AND customer_id = $3`
		args = append(args, customerID)
	}
	query += ` ORDER BY sold_at, id`
	return r.queryCharges(ctx, query, args...)
}

func (r *repository) ListCharges(ctx context.Context, req ListChargesRequest) ([]Charge, error) {
	query := `SELECT ` + chargeColumns + ` FROM charges WHERE 1=1`
	args := []any{}
	argNum := 1

	if req.CustomerID > 0 {
		query += fmt.Sprintf(" AND customer_id = $%d", argNum)
		args = append(args, req.CustomerID)
		argNum++
	}
	if req.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, string(req.Status))
		argNum++
	}
	if !req.From.IsZero() {
		query += fmt.Sprintf(" AND sold_at >= $%d", argNum)
		args = append(args, req.From)
		argNum++
	}
	if !req.To.IsZero() {
		query += fmt.Sprintf(" AND sold_at <= $%d", argNum)
		args = append(args, req.To)
		argNum++
	}

	query += " ORDER BY sold_at, id"

	if req.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, req.Limit)
		argNum++
	}
	if req.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, req.Offset)
	}

	return r.queryCharges(ctx, query, args...)
}

func (r *repository) UpdateChargeBalances(ctx context.Context, ch *Charge) error {
	query := `
		UPDATE charges
		SET paid_to_date = $2, outstanding = $3, status = $4, due_date = $5,
			quantity = $6, unit_price = $7, discount_fraction = $8,
			gross = $9, net = $10, updated_at = NOW()
		WHERE id = $1`

	var due pgtype.Date
	if ch.DueDate != nil {
		due = pgtype.Date{Time: *ch.DueDate, Valid: true}
	}

	result, err := r.db.Exec(ctx, query,
		ch.ID, ch.PaidToDate, ch.Outstanding, string(ch.Status), due,
		ch.Quantity, ch.UnitPrice, ch.DiscountFraction, ch.Gross, ch.Net,
	)
	if err != nil {
		return mapPgError("update charge", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: charge %d", ErrNotFound, ch.ID)
	}
	return nil
}

// ReplaceInstallments swaps a charge's plan for a freshly scheduled one.
// Runs inside the correction transaction.
func (r *repository) ReplaceInstallments(ctx context.Context, chargeID int64, insts []Installment) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM installments WHERE charge_id = $1`, chargeID); err != nil {
		return mapPgError("delete installments", err)
	}
	for i := range insts {
		inst := &insts[i]
		inst.ChargeID = chargeID
		err := r.db.QueryRow(ctx,
			`INSERT INTO installments (charge_id, seq, amount, due_date) VALUES ($1, $2, $3, $4) RETURNING id`,
			chargeID, inst.Seq, inst.Amount, inst.DueDate,
		).Scan(&inst.ID)
		if err != nil {
			return mapPgError("create installment", err)
		}
	}
	return nil
}

func (r *repository) VoidCharge(ctx context.Context, id int64, reason string) error {
	query := `
		UPDATE charges
		SET status = $2, void_reason = $3, outstanding = 0, due_date = NULL, updated_at = NOW()
		WHERE id = $1 AND status <> $2`

	result, err := r.db.Exec(ctx, query, id, string(StatusCancelled), reason)
	if err != nil {
		return mapPgError("void charge", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: charge %d not found or already cancelled", ErrNotFound, id)
	}
	return nil
}

func (r *repository) CreatePayment(ctx context.Context, p *Payment, allocs []Allocation) error {
	query := `
		INSERT INTO payments (customer_id, amount, method, note, paid_at, applied_amount, credited_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		p.CustomerID, p.Amount, string(p.Method), p.Note, p.PaidAt, p.AppliedAmount, p.CreditedAmount,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return mapPgError("create payment", err)
	}

	for _, a := range allocs {
		_, err := r.db.Exec(ctx,
			`INSERT INTO payment_allocations (payment_id, charge_id, amount, balance_before, balance_after)
			 VALUES ($1, $2, $3, $4, $5)`,
			p.ID, a.ChargeID, a.Amount, a.BalanceBefore, a.BalanceAfter,
		)
		if err != nil {
			return mapPgError("create allocation", err)
		}
	}
	return nil
}

func (r *repository) ListPayments(ctx context.Context, customerID int64) ([]Payment, error) {
	query := `
		SELECT id, customer_id, amount, method, note, paid_at, applied_amount, credited_amount, created_at
		FROM payments`
	args := []any{}
	if customerID > 0 {
		query += ` WHERE customer_id = $1`
		args = append(args, customerID)
	}
	query += ` ORDER BY paid_at DESC, id DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgError("list payments", err)
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		var method string
		if err := rows.Scan(
			&p.ID, &p.CustomerID, &p.Amount, &method, &p.Note, &p.PaidAt,
			&p.AppliedAmount, &p.CreditedAmount, &p.CreatedAt,
		); err != nil {
			return nil, mapPgError("scan payment", err)
		}
		p.Method = PaymentMethod(method)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *repository) AddCustomerCredit(ctx context.Context, customerID int64, amount float64) error {
	result, err := r.db.Exec(ctx,
		`UPDATE customers SET credit_balance = credit_balance + $2, updated_at = NOW() WHERE id = $1`,
		customerID, amount,
	)
	if err != nil {
		return mapPgError("add customer credit", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: customer %d", ErrNotFound, customerID)
	}
	return nil
}

func (r *repository) GetCustomerCredit(ctx context.Context, customerID int64) (float64, error) {
	var credit float64
	err := r.db.QueryRow(ctx, `SELECT credit_balance FROM customers WHERE id = $1`, customerID).Scan(&credit)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: customer %d", ErrNotFound, customerID)
	}
	if err != nil {
		return 0, mapPgError("get customer credit", err)
	}
	return credit, nil
}

// --- Helpers ---

func (r *repository) queryCharges(ctx context.Context, query string, args ...any) ([]Charge, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgError("list charges", err)
	}
	defer rows.Close()

	var charges []Charge
	for rows.Next() {
		ch, err := scanCharge(rows)
		if err != nil {
			return nil, mapPgError("scan charge", err)
		}
		charges = append(charges, *ch)
	}
	return charges, rows.Err()
}

func (r *repository) listInstallments(ctx context.Context, chargeID int64) ([]Installment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, charge_id, seq, amount, due_date FROM installments WHERE charge_id = $1 ORDER BY seq`,
		chargeID,
	)
	if err != nil {
		return nil, mapPgError("list installments", err)
	}
	defer rows.Close()

	var insts []Installment
	for rows.Next() {
		var inst Installment
		if err := rows.Scan(&inst.ID, &inst.ChargeID, &inst.Seq, &inst.Amount, &inst.DueDate); err != nil {
			return nil, mapPgError("scan installment", err)
		}
		insts = append(insts, inst)
	}
	return insts, rows.Err()
}

func scanCharge(row pgx.Row) (*Charge, error) {
	var ch Charge
	var method, status string
	var due pgtype.Date
	var seller, voidReason pgtype.Text

	err := row.Scan(
		&ch.ID, &ch.CustomerID, &ch.ProductCode, &ch.ProductName, &ch.Quantity, &ch.UnitPrice,
		&ch.UnitCost, &ch.DiscountFraction, &ch.Gross, &ch.Net, &method, &ch.InstallmentCount,
		&ch.PaidToDate, &ch.Outstanding, &status, &seller, &ch.SoldAt, &due,
		&voidReason, &ch.CreatedAt, &ch.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	ch.Method = PaymentMethod(method)
	ch.Status = ChargeStatus(status)
	if due.Valid {
		d := due.Time
		ch.DueDate = &d
	}
	if seller.Valid {
		ch.Seller = seller.String
	}
	if voidReason.Valid {
		ch.VoidReason = voidReason.String
	}
	return &ch, nil
}

func mapPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", ErrConflict, op)
		case "40001": // serialization_failure under repeatable read
			return fmt.Errorf("%w: %s", ErrConflict, op)
		}
	}
	return fmt.Errorf("ledger: %s: %w", op, err)
}
