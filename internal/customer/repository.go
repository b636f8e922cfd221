package customer

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sweethome/ledger/internal/platform/db"
	"github.com/sweethome/ledger/internal/platform/httpx"
)

var (
	ErrNotFound      = fmt.Errorf("customer: %w", httpx.ErrNotFound)
	ErrAlreadyExists = fmt.Errorf("customer: %w", httpx.ErrDuplicate)
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*Customer, error)
	GetByCode(ctx context.Context, code string) (*Customer, error)
	FindByName(ctx context.Context, name string) (*Customer, error)
	List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error)
	Create(ctx context.Context, c Customer) (int64, string, error)
	Update(ctx context.Context, id int64, updates map[string]interface{}) error
	ListIncomplete(ctx context.Context) ([]Customer, error)
	ListInternalIDs(ctx context.Context) ([]int64, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const customerColumns = `id, code, name, phone, address, neighborhood, credit_balance, profile_complete, internal, registered_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*Customer, error) {
	row := r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	return scanCustomer(row)
}

func (r *repository) GetByCode(ctx context.Context, code string) (*Customer, error) {
	row := r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE code = $1`, code)
	return scanCustomer(row)
}

// FindByName matches on the exact name, case-insensitive. Quick-sale entry
// types names free-form so trailing whitespace is ignored.
func (r *repository) FindByName(ctx context.Context, name string) (*Customer, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE lower(name) = lower(btrim($1)) ORDER BY id LIMIT 1`, name)
	return scanCustomer(row)
}

func (r *repository) List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1

	if req.Search != "" {
		where += fmt.Sprintf(" AND (code ILIKE $%d OR name ILIKE $%d OR phone ILIKE $%d)", argPos, argPos, argPos)
		args = append(args, "%"+req.Search+"%")
		argPos++
	}
	if req.OnlyIncomplete {
		where += " AND profile_complete = FALSE"
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM customers "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count customers: %w", err)
	}

	limit := req.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := fmt.Sprintf("SELECT "+customerColumns+" FROM customers "+where+" ORDER BY name LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.Phone, &c.Address, &c.Neighborhood,
			&c.CreditBalance, &c.ProfileComplete, &c.Internal, &c.RegisteredAt, &c.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan customer: %w", err)
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// Create inserts the customer and assigns the next CLI-NNN code from the
// sequence in the same statement.
func (r *repository) Create(ctx context.Context, c Customer) (int64, string, error) {
	var id int64
	var code string
	err := r.db.QueryRow(ctx, `
		INSERT INTO customers (code, name, phone, address, neighborhood, credit_balance, profile_complete, internal)
		VALUES ('CLI-' || lpad(nextval('customer_code_seq')::text, 3, '0'), $1, $2, $3, $4, $5, $6, $7)
		RETURNING id, code`,
		c.Name, c.Phone, c.Address, c.Neighborhood, c.CreditBalance, c.ProfileComplete, c.Internal,
	).Scan(&id, &code)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, "", ErrAlreadyExists
		}
		return 0, "", fmt.Errorf("insert customer: %w", err)
	}
	return id, code, nil
}

func (r *repository) Update(ctx context.Context, id int64, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	query := "UPDATE customers SET updated_at = NOW()"
	args := []interface{}{}
	argPos := 1
	for col, val := range updates {
		query += fmt.Sprintf(", %s = $%d", col, argPos)
		args = append(args, val)
		argPos++
	}
	query += fmt.Sprintf(" WHERE id = $%d", argPos)
	args = append(args, id)

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) ListIncomplete(ctx context.Context) ([]Customer, error) {
	out, _, err := r.List(ctx, ListCustomersRequest{OnlyIncomplete: true, Limit: 500})
	return out, err
}

func (r *repository) ListInternalIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM customers WHERE internal`)
	if err != nil {
		return nil, fmt.Errorf("list internal customers: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan internal customer: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Phone, &c.Address, &c.Neighborhood,
		&c.CreditBalance, &c.ProfileComplete, &c.Internal, &c.RegisteredAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan customer: %w", err)
	}
	return &c, nil
}
