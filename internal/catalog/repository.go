package catalog

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
	ErrNotFound      = fmt.Errorf("catalog: %w", httpx.ErrNotFound)
	ErrAlreadyExists = fmt.Errorf("catalog: %w", httpx.ErrDuplicate)
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*Product, error)
	GetByCode(ctx context.Context, code string) (*Product, error)
	LatestVersion(ctx context.Context, baseCode string) (*Product, error)
	List(ctx context.Context, activeOnly bool, search string) ([]Product, error)
	Create(ctx context.Context, p Product) (int64, error)
	Deactivate(ctx context.Context, id int64) error
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

const productColumns = `id, code, base_code, version, name, unit_cost, unit_price, active, created_at`

func (r *repository) Get(ctx context.Context, id int64) (*Product, error) {
	row := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	return scanProduct(row)
}

func (r *repository) GetByCode(ctx context.Context, code string) (*Product, error) {
	row := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE code = $1`, code)
	return scanProduct(row)
}

func (r *repository) LatestVersion(ctx context.Context, baseCode string) (*Product, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE base_code = $1 ORDER BY version DESC LIMIT 1`, baseCode)
	return scanProduct(row)
}

func (r *repository) List(ctx context.Context, activeOnly bool, search string) ([]Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE 1=1`
	args := []interface{}{}
	argPos := 1
	if activeOnly {
		query += " AND active = TRUE"
	}
	if search != "" {
		query += fmt.Sprintf(" AND (code ILIKE $%d OR name ILIKE $%d)", argPos, argPos)
		args = append(args, "%"+search+"%")
		argPos++
	}
	query += " ORDER BY base_code, version"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Code, &p.BaseCode, &p.Version, &p.Name,
			&p.UnitCost, &p.UnitPrice, &p.Active, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) Create(ctx context.Context, p Product) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO products (code, base_code, version, name, unit_cost, unit_price, active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		RETURNING id`,
		p.Code, p.BaseCode, p.Version, p.Name, p.UnitCost, p.UnitPrice,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrAlreadyExists
		}
		return 0, fmt.Errorf("insert product: %w", err)
	}
	return id, nil
}

func (r *repository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE products SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Code, &p.BaseCode, &p.Version, &p.Name,
		&p.UnitCost, &p.UnitPrice, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan product: %w", err)
	}
	return &p, nil
}
