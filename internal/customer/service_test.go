package customer

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	nextID  int64
	nextSeq int64
	byID    map[int64]*Customer
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{byID: map[int64]*Customer{}}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *memoryRepo) Get(_ context.Context, id int64) (*Customer, error) {
	c, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memoryRepo) GetByCode(_ context.Context, code string) (*Customer, error) {
	for _, c := range m.byID {
		if c.Code == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memoryRepo) FindByName(_ context.Context, name string) (*Customer, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, c := range m.byID {
		if strings.ToLower(c.Name) == name {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memoryRepo) List(_ context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	var out []Customer
	for _, c := range m.byID {
		if req.OnlyIncomplete && c.ProfileComplete {
			continue
		}
		if req.Search != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(req.Search)) {
			continue
		}
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (m *memoryRepo) Create(_ context.Context, c Customer) (int64, string, error) {
	m.nextID++
	m.nextSeq++
	c.ID = m.nextID
	c.Code = fmt.Sprintf("CLI-%03d", m.nextSeq)
	c.RegisteredAt = time.Now()
	m.byID[c.ID] = &c
	return c.ID, c.Code, nil
}

func (m *memoryRepo) Update(_ context.Context, id int64, updates map[string]interface{}) error {
	c, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	for col, val := range updates {
		switch col {
		case "name":
			c.Name = val.(string)
		case "phone":
			v := val.(string)
			c.Phone = &v
		case "address":
			v := val.(string)
			c.Address = &v
		case "neighborhood":
			v := val.(string)
			c.Neighborhood = &v
		case "internal":
			c.Internal = val.(bool)
		case "profile_complete":
			c.ProfileComplete = val.(bool)
		}
	}
	return nil
}

func (m *memoryRepo) ListIncomplete(ctx context.Context) ([]Customer, error) {
	out, _, err := m.List(ctx, ListCustomersRequest{OnlyIncomplete: true})
	return out, err
}

func (m *memoryRepo) ListInternalIDs(_ context.Context) ([]int64, error) {
	var ids []int64
	for _, c := range m.byID {
		if c.Internal {
			ids = append(ids, c.ID)
		}
	}
	return ids, nil
}

func strPtr(s string) *string { return &s }

func TestCreateAssignsSequentialCodes(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	first, err := svc.Create(ctx, CreateCustomerRequest{Name: "Ana Paula"})
	require.NoError(t, err)
	require.Equal(t, "CLI-001", first.Code)

	second, err := svc.Create(ctx, CreateCustomerRequest{Name: "Beatriz"})
	require.NoError(t, err)
	require.Equal(t, "CLI-002", second.Code)
}

func TestCreateDerivesProfileFlag(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	complete, err := svc.Create(ctx, CreateCustomerRequest{
		Name:    "Ana",
		Phone:   strPtr("11988887777"),
		Address: strPtr("Rua das Flores 120"),
	})
	require.NoError(t, err)
	require.True(t, complete.ProfileComplete)

	incomplete, err := svc.Create(ctx, CreateCustomerRequest{Name: "Bia", Phone: strPtr("11977776666")})
	require.NoError(t, err)
	require.False(t, incomplete.ProfileComplete)
}

func TestCreateSeedsInitialCredit(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateCustomerRequest{Name: "Ana", InitialCredit: 25.504})
	require.NoError(t, err)
	require.Equal(t, 25.50, c.CreditBalance)

	stored, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, 25.50, stored.CreditBalance)

	_, err = svc.Create(ctx, CreateCustomerRequest{Name: "Bia", InitialCredit: -5})
	require.Error(t, err)
}

func TestCreateRejectsBlankName(t *testing.T) {
	svc := NewService(newMemoryRepo())
	_, err := svc.Create(context.Background(), CreateCustomerRequest{Name: "   "})
	require.Error(t, err)
}

func TestUpdateCompletesProfile(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateCustomerRequest{Name: "Ana", Phone: strPtr("119")})
	require.NoError(t, err)
	require.False(t, c.ProfileComplete)

	updated, err := svc.Update(ctx, c.ID, UpdateCustomerRequest{Address: strPtr("Rua A, 1")})
	require.NoError(t, err)
	require.True(t, updated.ProfileComplete)

	stored, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, stored.ProfileComplete)
}

func TestFindOrCreateByName(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	created, err := svc.FindOrCreateByName(ctx, "Ana Paula")
	require.NoError(t, err)

	// Case-insensitive match with stray whitespace reuses the account.
	found, err := svc.FindOrCreateByName(ctx, "  ana paula ")
	require.NoError(t, err)
	require.Equal(t, created.ID, found.ID)

	other, err := svc.FindOrCreateByName(ctx, "Beatriz")
	require.NoError(t, err)
	require.NotEqual(t, created.ID, other.ID)
}

func TestIncompleteProfilesRadar(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateCustomerRequest{
		Name: "Completa", Phone: strPtr("119"), Address: strPtr("Rua B"),
	})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateCustomerRequest{Name: "Pendente"})
	require.NoError(t, err)

	missing, err := svc.IncompleteProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	require.Equal(t, "Pendente", missing[0].Name)
}

func TestInternalIDs(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateCustomerRequest{Name: "Cliente"})
	require.NoError(t, err)
	internal, err := svc.Create(ctx, CreateCustomerRequest{Name: "Consumo Interno", Internal: true})
	require.NoError(t, err)

	ids, err := svc.InternalIDs(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	require.Contains(t, ids, internal.ID)
}

func TestDisplayName(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateCustomerRequest{Name: "Ana"})
	require.NoError(t, err)

	name, err := svc.DisplayName(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, "Ana", name)

	_, err = svc.DisplayName(ctx, 999)
	require.ErrorIs(t, err, ErrNotFound)
}
