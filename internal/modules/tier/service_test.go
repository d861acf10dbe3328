package tier

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryRepo is an in-memory Repository for service and handler tests.
// Benefits are shared between tiers by slug, as in postgres.
type memoryRepo struct {
	tiers    map[uuid.UUID]Tier
	order    []uuid.UUID
	prices   map[uuid.UUID]Price
	benefits map[string]Benefit
	links    map[uuid.UUID][]string
	lastList ListFilter
	failGet  error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		tiers:    map[uuid.UUID]Tier{},
		prices:   map[uuid.UUID]Price{},
		benefits: map[string]Benefit{},
		links:    map[uuid.UUID][]string{},
	}
}

func (m *memoryRepo) SlugTaken(ctx context.Context, slug string) (bool, error) {
	for _, t := range m.tiers {
		if t.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRepo) List(ctx context.Context, filter ListFilter, rel Relations) ([]*Tier, int, error) {
	m.lastList = filter
	var matched []*Tier
	for _, id := range m.order {
		t := m.tiers[id]
		if filter.Active != nil && t.Active != *filter.Active {
			continue
		}
		if filter.Visible != nil && t.Visible != *filter.Visible {
			continue
		}
		if filter.Type != "" && t.Type != filter.Type {
			continue
		}
		matched = append(matched, m.load(t, rel))
	}
	total := len(matched)
	start := min(filter.Offset, total)
	end := min(start+filter.Limit, total)
	return matched[start:end], total, nil
}

func (m *memoryRepo) Get(ctx context.Context, id uuid.UUID, rel Relations) (*Tier, error) {
	if m.failGet != nil {
		return nil, m.failGet
	}
	t, ok := m.tiers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.load(t, rel), nil
}

func (m *memoryRepo) Create(ctx context.Context, t *Tier, w Write) error {
	for _, existing := range m.tiers {
		if existing.Slug == t.Slug {
			return ErrDuplicateSlug
		}
	}
	m.order = append(m.order, t.ID)
	return m.save(t, w)
}

func (m *memoryRepo) Update(ctx context.Context, t *Tier, w Write) error {
	if _, ok := m.tiers[t.ID]; !ok {
		return ErrNotFound
	}
	return m.save(t, w)
}

func (m *memoryRepo) save(t *Tier, w Write) error {
	for _, p := range w.Prices {
		m.prices[p.ID] = *p
	}
	for _, id := range w.Archive {
		p := m.prices[id]
		p.Active = false
		m.prices[id] = p
	}
	if w.ReplaceBenefits {
		slugs := make([]string, 0, len(w.Benefits))
		for _, b := range w.Benefits {
			if _, ok := m.benefits[b.Slug]; !ok {
				m.benefits[b.Slug] = b
			}
			slugs = append(slugs, b.Slug)
		}
		m.links[t.ID] = slugs
	}
	stored := *t
	stored.MonthlyPrice, stored.YearlyPrice = nil, nil
	stored.StripePrices, stored.Benefits = Relation[Price]{}, Relation[Benefit]{}
	m.tiers[t.ID] = stored
	return nil
}

func (m *memoryRepo) load(t Tier, rel Relations) *Tier {
	out := t
	if t.MonthlyPriceID != nil {
		p := m.prices[*t.MonthlyPriceID]
		out.MonthlyPrice = &p
	}
	if t.YearlyPriceID != nil {
		p := m.prices[*t.YearlyPriceID]
		out.YearlyPrice = &p
	}
	if rel.StripePrices {
		out.StripePrices = LoadedRelation[Price]()
		for _, p := range m.prices {
			if p.TierID == t.ID {
				out.StripePrices.Items = append(out.StripePrices.Items, p)
			}
		}
	}
	if rel.Benefits {
		out.Benefits = LoadedRelation[Benefit]()
		for _, slug := range m.links[t.ID] {
			out.Benefits.Items = append(out.Benefits.Items, m.benefits[slug])
		}
	}
	return &out
}

type fakeGateway struct {
	products int
	prices   int
	fail     error
}

func (g *fakeGateway) CreateProduct(ctx context.Context, name string) (string, error) {
	if g.fail != nil {
		return "", g.fail
	}
	g.products++
	return fmt.Sprintf("prod_%d", g.products), nil
}

func (g *fakeGateway) CreatePrice(ctx context.Context, productRef, currency string, amount int64, interval string) (string, error) {
	if g.fail != nil {
		return "", g.fail
	}
	g.prices++
	return fmt.Sprintf("price_%d", g.prices), nil
}

func newTestService(repo Repository, gw Gateway) *service {
	s := NewService(repo, gw).(*service)
	s.now = func() time.Time { return stamp }
	return s
}

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }

func TestServiceAddCreatesPricesAndBenefits(t *testing.T) {
	repo := newMemoryRepo()
	gw := &fakeGateway{}
	svc := newTestService(repo, gw)

	got, err := svc.Add(context.Background(), CreateTierRequest{
		Name:         "Gold Plan",
		MonthlyPrice: &PriceInput{Amount: 500, Currency: "USD"},
		YearlyPrice:  &PriceInput{Amount: 5000, Currency: "usd"},
		Benefits:     []string{"Priority support", " priority support ", "Swag"},
	})
	require.NoError(t, err)

	assert.Equal(t, "gold-plan", got.Slug)
	assert.Equal(t, TypePaid, got.Type)
	assert.True(t, got.Active)
	assert.False(t, got.Visible)

	require.NotNil(t, got.MonthlyPrice)
	assert.Equal(t, int64(500), got.MonthlyPrice.Amount)
	assert.Equal(t, "usd", got.MonthlyPrice.Currency)
	assert.Equal(t, IntervalMonth, got.MonthlyPrice.Interval)
	assert.Equal(t, PriceRecurring, got.MonthlyPrice.Type)
	require.NotNil(t, got.YearlyPrice)
	assert.Equal(t, IntervalYear, got.YearlyPrice.Interval)
	assert.Equal(t, got.MonthlyPrice.StripeProductID, got.YearlyPrice.StripeProductID)

	assert.Equal(t, 1, gw.products)
	assert.Equal(t, 2, gw.prices)
	assert.True(t, got.StripePrices.Loaded)
	assert.Len(t, got.StripePrices.Items, 2)

	require.True(t, got.Benefits.Loaded)
	require.Len(t, got.Benefits.Items, 2)
	assert.Equal(t, "priority-support", got.Benefits.Items[0].Slug)
	assert.Equal(t, "swag", got.Benefits.Items[1].Slug)
}

func TestServiceAddRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		req  CreateTierRequest
	}{
		{"missing name", CreateTierRequest{}},
		{"bad type", CreateTierRequest{Name: "Gold", Type: "premium"}},
		{"bad currency", CreateTierRequest{Name: "Gold", MonthlyPrice: &PriceInput{Amount: 1, Currency: "dollars"}}},
		{"negative amount", CreateTierRequest{Name: "Gold", MonthlyPrice: &PriceInput{Amount: -1, Currency: "usd"}}},
		{"bad url", CreateTierRequest{Name: "Gold", WelcomePageURL: "not a url"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestService(newMemoryRepo(), &fakeGateway{}).Add(context.Background(), tt.req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.NotEmpty(t, verr.Fields)
		})
	}
}

func TestServiceAddValidationFieldNames(t *testing.T) {
	_, err := newTestService(newMemoryRepo(), &fakeGateway{}).Add(context.Background(), CreateTierRequest{
		Name:         "Gold",
		MonthlyPrice: &PriceInput{Amount: 5, Currency: "us"},
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "len=3", verr.Fields["monthly_price.currency"])
}

func TestServiceAddFreeTierCannotCarryPrices(t *testing.T) {
	_, err := newTestService(newMemoryRepo(), &fakeGateway{}).Add(context.Background(), CreateTierRequest{
		Name:         "Free",
		Type:         TypeFree,
		MonthlyPrice: &PriceInput{Amount: 0, Currency: "usd"},
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestServiceAddDuplicateSlug(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(newMemoryRepo(), gw)
	_, err := svc.Add(context.Background(), CreateTierRequest{
		Name:         "Gold",
		MonthlyPrice: &PriceInput{Amount: 500, Currency: "usd"},
	})
	require.NoError(t, err)

	_, err = svc.Add(context.Background(), CreateTierRequest{
		Name:         "Other",
		Slug:         "Gold",
		MonthlyPrice: &PriceInput{Amount: 900, Currency: "usd"},
		YearlyPrice:  &PriceInput{Amount: 9000, Currency: "usd"},
	})
	assert.ErrorIs(t, err, ErrDuplicateSlug)
	assert.Equal(t, 1, gw.products, "no billing product for a rejected slug")
	assert.Equal(t, 1, gw.prices, "no billing prices for a rejected slug")
}

func TestServiceAddGatewayFailure(t *testing.T) {
	gw := &fakeGateway{fail: errors.New("provider down")}
	_, err := newTestService(newMemoryRepo(), gw).Add(context.Background(), CreateTierRequest{
		Name:         "Gold",
		MonthlyPrice: &PriceInput{Amount: 500, Currency: "usd"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider down")
}

func TestServiceEditReplacesChangedPriceOnly(t *testing.T) {
	repo := newMemoryRepo()
	gw := &fakeGateway{}
	svc := newTestService(repo, gw)

	created, err := svc.Add(context.Background(), CreateTierRequest{
		Name:         "Gold",
		MonthlyPrice: &PriceInput{Amount: 500, Currency: "usd"},
		YearlyPrice:  &PriceInput{Amount: 5000, Currency: "usd"},
	})
	require.NoError(t, err)
	oldMonthly := created.MonthlyPrice.ID
	oldYearly := created.YearlyPrice.ID

	edited, err := svc.Edit(context.Background(), created.ID.String(), UpdateTierRequest{
		Name:         strPtr("Gold+"),
		Visible:      boolPtr(true),
		MonthlyPrice: &PriceInput{Amount: 600, Currency: "usd"},
		YearlyPrice:  &PriceInput{Amount: 5000, Currency: "USD"},
		Benefits:     &[]string{"Support"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Gold+", edited.Name)
	assert.Equal(t, "gold", edited.Slug)
	assert.True(t, edited.Visible)
	assert.NotEqual(t, oldMonthly, edited.MonthlyPrice.ID)
	assert.Equal(t, int64(600), edited.MonthlyPrice.Amount)
	assert.Equal(t, oldYearly, edited.YearlyPrice.ID)
	assert.Equal(t, 1, gw.products, "product reference is reused")
	assert.Equal(t, 3, gw.prices)
	assert.False(t, repo.prices[oldMonthly].Active, "replaced price is archived")
	require.Len(t, edited.Benefits.Items, 1)
	assert.Equal(t, "support", edited.Benefits.Items[0].Slug)
}

func TestServiceEditUnknownTier(t *testing.T) {
	svc := newTestService(newMemoryRepo(), &fakeGateway{})

	_, err := svc.Edit(context.Background(), uuid.NewString(), UpdateTierRequest{Name: strPtr("x")})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Edit(context.Background(), "not-a-uuid", UpdateTierRequest{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServiceReadHidesInvisibleFromContent(t *testing.T) {
	svc := newTestService(newMemoryRepo(), &fakeGateway{})
	created, err := svc.Add(context.Background(), CreateTierRequest{Name: "Hidden", Visible: boolPtr(false)})
	require.NoError(t, err)

	_, err = svc.Read(context.Background(), created.ID.String(), AudienceContent, Relations{})
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := svc.Read(context.Background(), created.ID.String(), AudienceAdmin, Relations{})
	require.NoError(t, err)
	assert.Equal(t, "Hidden", got.Name)
}

func TestServiceReadWrapsRepositoryErrors(t *testing.T) {
	repo := newMemoryRepo()
	repo.failGet = errors.New("connection reset")
	_, err := newTestService(repo, &fakeGateway{}).Read(context.Background(), uuid.NewString(), AudienceAdmin, Relations{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read tier")
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestServiceBrowse(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &fakeGateway{})
	for i, visible := range []bool{true, false, true} {
		_, err := svc.Add(context.Background(), CreateTierRequest{Name: fmt.Sprintf("Tier %d", i), Visible: boolPtr(visible)})
		require.NoError(t, err)
	}

	page, err := svc.Browse(context.Background(), BrowseOptions{Audience: AudienceContent})
	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
	require.NotNil(t, repo.lastList.Visible)
	assert.True(t, *repo.lastList.Visible)
	assert.Equal(t, defaultLimit, repo.lastList.Limit)

	page, err = svc.Browse(context.Background(), BrowseOptions{Audience: AudienceAdmin, Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Data, 1)
	meta, ok := page.Meta.(Meta)
	require.True(t, ok)
	assert.Equal(t, Pagination{Page: 2, Limit: 2, Pages: 2, Total: 3, Prev: meta.Pagination.Prev}, meta.Pagination)
	require.NotNil(t, meta.Pagination.Prev)
	assert.Equal(t, 1, *meta.Pagination.Prev)

	_, err = svc.Browse(context.Background(), BrowseOptions{Type: "gold"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Gold":            "gold",
		"  Gold  Plan!! ": "gold-plan",
		"Über Tier 2":     "über-tier-2",
		"---":             "",
		"Pro/Team & Co.":  "pro-team-co",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slugify(in), in)
	}
}
