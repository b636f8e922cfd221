package customer

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

func (s *Service) Create(ctx context.Context, req CreateCustomerRequest) (*Customer, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: customer name required", httpx.ErrValidation)
	}
	if req.InitialCredit < 0 {
		return nil, fmt.Errorf("%w: initial credit cannot be negative", httpx.ErrValidation)
	}

	c := Customer{
		Name:          name,
		Phone:         req.Phone,
		Address:       req.Address,
		Neighborhood:  req.Neighborhood,
		CreditBalance: money.Round2(req.InitialCredit),
		Internal:      req.Internal,
	}
	c.ProfileComplete = c.HasFullProfile()

	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		id, code, err := repo.Create(ctx, c)
		if err != nil {
			return err
		}
		c.ID = id
		c.Code = code
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return &c, nil
}

func (s *Service) Update(ctx context.Context, id int64, req UpdateCustomerRequest) (*Customer, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: customer name cannot be blank", httpx.ErrValidation)
		}
		updates["name"] = name
		existing.Name = name
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
		existing.Phone = req.Phone
	}
	if req.Address != nil {
		updates["address"] = *req.Address
		existing.Address = req.Address
	}
	if req.Neighborhood != nil {
		updates["neighborhood"] = *req.Neighborhood
		existing.Neighborhood = req.Neighborhood
	}
	if req.Internal != nil {
		updates["internal"] = *req.Internal
		existing.Internal = *req.Internal
	}
	updates["profile_complete"] = existing.HasFullProfile()
	existing.ProfileComplete = existing.HasFullProfile()

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		return repo.Update(ctx, id, updates)
	})
	if err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Customer, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) GetByCode(ctx context.Context, code string) (*Customer, error) {
	return s.repo.GetByCode(ctx, code)
}

func (s *Service) List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	return s.repo.List(ctx, req)
}

// FindOrCreateByName resolves the quick-sale flow where the counter enters
// only a name. An existing account matches case-insensitively; otherwise a
// new incomplete profile is registered.
func (s *Service) FindOrCreateByName(ctx context.Context, name string) (*Customer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: customer name required", httpx.ErrValidation)
	}
	existing, err := s.repo.FindByName(ctx, name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.Create(ctx, CreateCustomerRequest{Name: name})
}

// IncompleteProfiles lists accounts still missing phone or address so staff
// can chase the data down.
func (s *Service) IncompleteProfiles(ctx context.Context) ([]Customer, error) {
	return s.repo.ListIncomplete(ctx)
}

// DisplayName returns the customer's name for receipts.
func (s *Service) DisplayName(ctx context.Context, id int64) (string, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return c.Name, nil
}

// InternalIDs returns ids flagged as internal accounts, excluded from
// revenue aggregates by default.
func (s *Service) InternalIDs(ctx context.Context) (map[int64]struct{}, error) {
	all, err := s.repo.ListInternalIDs(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[int64]struct{}, len(all))
	for _, id := range all {
		ids[id] = struct{}{}
	}
	return ids, nil
}
