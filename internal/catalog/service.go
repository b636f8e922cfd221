package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sweethome/ledger/internal/money"
	"github.com/sweethome/ledger/internal/platform/httpx"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

type CreateProductRequest struct {
	Code      string  `json:"code" validate:"required,max=50"`
	Name      string  `json:"name" validate:"required,max=200"`
	UnitCost  float64 `json:"unit_cost" validate:"gte=0"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
}

func (s *Service) Create(ctx context.Context, req CreateProductRequest) (*Product, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		return nil, fmt.Errorf("%w: product code required", httpx.ErrValidation)
	}
	p := Product{
		Code:      code,
		BaseCode:  code,
		Version:   1,
		Name:      strings.TrimSpace(req.Name),
		UnitCost:  money.Round2(req.UnitCost),
		UnitPrice: money.Round2(req.UnitPrice),
		Active:    true,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		id, err := repo.Create(ctx, p)
		if err != nil {
			return err
		}
		p.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

type RepriceRequest struct {
	UnitCost  float64 `json:"unit_cost" validate:"gte=0"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
}

// Reprice registers a new version of the product under a suffixed code and
// retires the current one. Charges referencing the old code keep their
// snapshot untouched.
func (s *Service) Reprice(ctx context.Context, baseCode string, req RepriceRequest) (*Product, error) {
	baseCode = strings.ToUpper(strings.TrimSpace(baseCode))
	current, err := s.repo.LatestVersion(ctx, baseCode)
	if err != nil {
		return nil, err
	}

	next := Product{
		BaseCode:  baseCode,
		Version:   current.Version + 1,
		Code:      fmt.Sprintf("%s-v%d", baseCode, current.Version+1),
		Name:      current.Name,
		UnitCost:  money.Round2(req.UnitCost),
		UnitPrice: money.Round2(req.UnitPrice),
		Active:    true,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.Deactivate(ctx, current.ID); err != nil {
			return err
		}
		id, err := repo.Create(ctx, next)
		if err != nil {
			return err
		}
		next.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &next, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Product, error) {
	return s.repo.Get(ctx, id)
}

// Resolve returns the sellable product for a code, following base codes to
// their latest active version.
func (s *Service) Resolve(ctx context.Context, code string) (*Product, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	p, err := s.repo.GetByCode(ctx, code)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.repo.LatestVersion(ctx, code)
}

func (s *Service) List(ctx context.Context, activeOnly bool, search string) ([]Product, error) {
	return s.repo.List(ctx, activeOnly, search)
}
