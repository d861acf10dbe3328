package tier

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Service defines tier business logic.
type Service interface {
	Browse(ctx context.Context, opts BrowseOptions) (*Page, error)
	Read(ctx context.Context, id string, audience Audience, rel Relations) (*Tier, error)
	Add(ctx context.Context, req CreateTierRequest) (*Tier, error)
	Edit(ctx context.Context, id string, req UpdateTierRequest) (*Tier, error)
}

// Gateway issues external product and price references.
type Gateway interface {
	CreateProduct(ctx context.Context, name string) (string, error)
	CreatePrice(ctx context.Context, productRef, currency string, amount int64, interval string) (string, error)
}

// ValidationError lists the payload fields that failed validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, rule := range e.Fields {
		parts = append(parts, field+": "+rule)
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

type service struct {
	repo     Repository
	gateway  Gateway
	validate *validator.Validate
	now      func() time.Time
}

func NewService(repo Repository, gateway Gateway) Service {
	return &service{
		repo:     repo,
		gateway:  gateway,
		validate: newValidator(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// fullRelations is what add and edit return, so the caller sees the saved state.
var fullRelations = Relations{StripePrices: true, Benefits: true}

func (s *service) Browse(ctx context.Context, opts BrowseOptions) (*Page, error) {
	if opts.Type != "" && opts.Type != TypeFree && opts.Type != TypePaid {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidInput, opts.Type)
	}
	page, limit := normalizePage(opts.Page, opts.Limit)

	filter := ListFilter{
		Active: opts.Active,
		Type:   opts.Type,
		Offset: (page - 1) * limit,
		Limit:  limit,
	}
	if opts.Audience == AudienceContent {
		visible := true
		filter.Active = &visible
		filter.Visible = &visible
	}

	tiers, total, err := s.repo.List(ctx, filter, opts.Relations)
	if err != nil {
		return nil, fmt.Errorf("browse tiers: %w", err)
	}
	return &Page{
		Data: tiers,
		Meta: Meta{Pagination: NewPagination(page, limit, total)},
	}, nil
}

func (s *service) Read(ctx context.Context, id string, audience Audience, rel Relations) (*Tier, error) {
	tierID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	t, err := s.repo.Get(ctx, tierID, rel)
	if err != nil {
		return nil, fmt.Errorf("read tier: %w", err)
	}
	if audience == AudienceContent && !(t.Active && t.Visible) {
		return nil, ErrNotFound
	}
	return t, nil
}

func (s *service) Add(ctx context.Context, req CreateTierRequest) (*Tier, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}

	tierType := req.Type
	if tierType == "" {
		tierType = TypePaid
	}
	slug := Slugify(req.Slug)
	if slug == "" {
		slug = Slugify(req.Name)
	}
	if slug == "" {
		return nil, fmt.Errorf("%w: name does not produce a usable slug", ErrInvalidInput)
	}
	// A taken slug is rejected before any billing reference is requested.
	taken, err := s.repo.SlugTaken(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("add tier: %w", err)
	}
	if taken {
		return nil, fmt.Errorf("add tier: %w", ErrDuplicateSlug)
	}

	now := s.now()
	t := &Tier{
		ID:             uuid.New(),
		Name:           strings.TrimSpace(req.Name),
		Slug:           slug,
		Description:    req.Description,
		Active:         boolOr(req.Active, true),
		Visible:        boolOr(req.Visible, false),
		Type:           tierType,
		WelcomePageURL: req.WelcomePageURL,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var w Write
	if err := s.applyPrices(ctx, t, req.MonthlyPrice, req.YearlyPrice, &w); err != nil {
		return nil, err
	}
	if req.Benefits != nil {
		w.Benefits, w.ReplaceBenefits = benefitsFromNames(req.Benefits, now), true
	}

	if err := s.repo.Create(ctx, t, w); err != nil {
		return nil, fmt.Errorf("add tier: %w", err)
	}
	return s.repo.Get(ctx, t.ID, fullRelations)
}

func (s *service) Edit(ctx context.Context, id string, req UpdateTierRequest) (*Tier, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	tierID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	t, err := s.repo.Get(ctx, tierID, Relations{})
	if err != nil {
		return nil, fmt.Errorf("edit tier: %w", err)
	}

	if req.Name != nil {
		t.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Active != nil {
		t.Active = *req.Active
	}
	if req.Visible != nil {
		t.Visible = *req.Visible
	}
	if req.WelcomePageURL != nil {
		t.WelcomePageURL = *req.WelcomePageURL
	}
	t.UpdatedAt = s.now()

	var w Write
	if err := s.applyPrices(ctx, t, req.MonthlyPrice, req.YearlyPrice, &w); err != nil {
		return nil, err
	}
	if req.Benefits != nil {
		w.Benefits, w.ReplaceBenefits = benefitsFromNames(*req.Benefits, t.UpdatedAt), true
	}

	if err := s.repo.Update(ctx, t, w); err != nil {
		return nil, fmt.Errorf("edit tier: %w", err)
	}
	return s.repo.Get(ctx, t.ID, fullRelations)
}

// applyPrices creates new monthly/yearly prices where the input differs from
// the current one. Replaced prices are queued for archiving.
func (s *service) applyPrices(ctx context.Context, t *Tier, monthly, yearly *PriceInput, w *Write) error {
	if monthly == nil && yearly == nil {
		return nil
	}
	if t.Type == TypeFree {
		return fmt.Errorf("%w: free tiers cannot carry prices", ErrInvalidInput)
	}

	productRef := ""
	for _, p := range []*Price{t.MonthlyPrice, t.YearlyPrice} {
		if p != nil && p.StripeProductID != "" {
			productRef = p.StripeProductID
			break
		}
	}
	if productRef == "" {
		ref, err := s.gateway.CreateProduct(ctx, t.Name)
		if err != nil {
			return fmt.Errorf("create billing product: %w", err)
		}
		productRef = ref
	}

	set := func(in *PriceInput, interval Interval, current *Price) (*Price, error) {
		if in == nil {
			return current, nil
		}
		currency := strings.ToLower(in.Currency)
		if current != nil && current.Active && current.Amount == in.Amount && current.Currency == currency {
			return current, nil
		}
		ref, err := s.gateway.CreatePrice(ctx, productRef, currency, in.Amount, string(interval))
		if err != nil {
			return nil, fmt.Errorf("create billing price: %w", err)
		}
		p := &Price{
			ID:              uuid.New(),
			TierID:          t.ID,
			StripeProductID: productRef,
			StripePriceID:   ref,
			Active:          true,
			Nickname:        nickname(interval),
			Currency:        currency,
			Amount:          in.Amount,
			Type:            PriceRecurring,
			Interval:        interval,
			CreatedAt:       t.UpdatedAt,
			UpdatedAt:       t.UpdatedAt,
		}
		w.Prices = append(w.Prices, p)
		if current != nil {
			w.Archive = append(w.Archive, current.ID)
		}
		return p, nil
	}

	m, err := set(monthly, IntervalMonth, t.MonthlyPrice)
	if err != nil {
		return err
	}
	y, err := set(yearly, IntervalYear, t.YearlyPrice)
	if err != nil {
		return err
	}
	t.MonthlyPrice, t.MonthlyPriceID = m, priceID(m)
	t.YearlyPrice, t.YearlyPriceID = y, priceID(y)
	return nil
}

func (s *service) check(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		fields[field] = rule
	}
	return &ValidationError{Fields: fields}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Slugify lowercases s and joins its letter and digit runs with hyphens.
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			pendingDash = false
			continue
		}
		pendingDash = true
	}
	return b.String()
}

// benefitsFromNames builds benefits in input order, skipping blank and repeated slugs.
func benefitsFromNames(names []string, now time.Time) []Benefit {
	seen := make(map[string]bool, len(names))
	benefits := make([]Benefit, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		slug := Slugify(name)
		if slug == "" || seen[slug] {
			continue
		}
		seen[slug] = true
		benefits = append(benefits, Benefit{
			ID:        uuid.New(),
			Name:      name,
			Slug:      slug,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return benefits
}

func nickname(interval Interval) string {
	switch interval {
	case IntervalMonth:
		return "Monthly"
	case IntervalYear:
		return "Yearly"
	default:
		return string(interval)
	}
}

func priceID(p *Price) *uuid.UUID {
	if p == nil {
		return nil
	}
	id := p.ID
	return &id
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
