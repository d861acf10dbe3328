package tier

import (
	"time"

	"github.com/google/uuid"
)

// ── Enumerations ──────────────────────────────────────────────────────────────

// Type classifies a tier as free or paid.
type Type string

const (
	TypeFree Type = "free"
	TypePaid Type = "paid"
)

// PriceType distinguishes recurring prices from one-off charges.
type PriceType string

const (
	PriceRecurring PriceType = "recurring"
	PriceOneTime   PriceType = "one-time"
)

// Interval is the recurrence period of a price.
type Interval string

const (
	IntervalDay   Interval = "day"
	IntervalWeek  Interval = "week"
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

// ── Records ───────────────────────────────────────────────────────────────────

// Relation holds a to-many relation together with whether it was fetched.
// A relation that was never loaded is distinct from one that loaded no rows.
type Relation[T any] struct {
	Loaded bool `json:"loaded"`
	Items  []T  `json:"items"`
}

// LoadedRelation returns a relation marked as fetched.
func LoadedRelation[T any](items ...T) Relation[T] {
	return Relation[T]{Loaded: true, Items: items}
}

// Populated reports whether the relation was fetched and holds at least one item.
func (r Relation[T]) Populated() bool {
	return r.Loaded && len(r.Items) > 0
}

// Price is an external billing price attached to a tier.
type Price struct {
	ID              uuid.UUID `json:"id"`
	TierID          uuid.UUID `json:"tier_id"`
	StripeProductID string    `json:"stripe_product_id"`
	StripePriceID   string    `json:"stripe_price_id"`
	Active          bool      `json:"active"`
	Nickname        string    `json:"nickname"`
	Description     string    `json:"description"`
	Currency        string    `json:"currency"`
	Amount          int64     `json:"amount"`
	Type            PriceType `json:"type"`
	Interval        Interval  `json:"interval"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// IsZero reports whether p carries no data at all.
func (p *Price) IsZero() bool {
	return p == nil || *p == Price{}
}

// Benefit is a named perk listed on a tier.
type Benefit struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tier is a subscription plan with its prices and benefits.
type Tier struct {
	ID             uuid.UUID         `json:"id"`
	Name           string            `json:"name"`
	Slug           string            `json:"slug"`
	Description    string            `json:"description"`
	Active         bool              `json:"active"`
	Visible        bool              `json:"visible"`
	Type           Type              `json:"type"`
	WelcomePageURL string            `json:"welcome_page_url"`
	MonthlyPriceID *uuid.UUID        `json:"monthly_price_id,omitempty"`
	YearlyPriceID  *uuid.UUID        `json:"yearly_price_id,omitempty"`
	MonthlyPrice   *Price            `json:"monthly_price,omitempty"`
	YearlyPrice    *Price            `json:"yearly_price,omitempty"`
	StripePrices   Relation[Price]   `json:"stripe_prices"`
	Benefits       Relation[Benefit] `json:"benefits"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Relations selects which to-many relations a read should fetch. Monthly and
// yearly prices are always resolved.
type Relations struct {
	StripePrices bool
	Benefits     bool
}

// ── Requests ──────────────────────────────────────────────────────────────────

// PriceInput describes a monthly or yearly price when adding or editing a tier.
type PriceInput struct {
	Amount   int64  `json:"amount" validate:"gte=0"`
	Currency string `json:"currency" validate:"required,len=3,alpha"`
}

// CreateTierRequest is the payload for adding a tier.
type CreateTierRequest struct {
	Name           string      `json:"name" validate:"required,max=191"`
	Slug           string      `json:"slug,omitempty" validate:"omitempty,max=191"`
	Description    string      `json:"description,omitempty" validate:"max=2000"`
	Active         *bool       `json:"active,omitempty"`
	Visible        *bool       `json:"visible,omitempty"`
	Type           Type        `json:"type,omitempty" validate:"omitempty,oneof=free paid"`
	WelcomePageURL string      `json:"welcome_page_url,omitempty" validate:"omitempty,url"`
	MonthlyPrice   *PriceInput `json:"monthly_price,omitempty"`
	YearlyPrice    *PriceInput `json:"yearly_price,omitempty"`
	Benefits       []string    `json:"benefits,omitempty" validate:"dive,required,max=191"`
}

// UpdateTierRequest is the payload for editing a tier. Nil fields are left unchanged.
type UpdateTierRequest struct {
	Name           *string     `json:"name,omitempty" validate:"omitempty,min=1,max=191"`
	Description    *string     `json:"description,omitempty" validate:"omitempty,max=2000"`
	Active         *bool       `json:"active,omitempty"`
	Visible        *bool       `json:"visible,omitempty"`
	WelcomePageURL *string     `json:"welcome_page_url,omitempty" validate:"omitempty,url"`
	MonthlyPrice   *PriceInput `json:"monthly_price,omitempty"`
	YearlyPrice    *PriceInput `json:"yearly_price,omitempty"`
	Benefits       *[]string   `json:"benefits,omitempty" validate:"omitempty,dive,required,max=191"`
}

// BrowseOptions narrows and pages a tier listing.
type BrowseOptions struct {
	Audience  Audience
	Page      int
	Limit     int
	Active    *bool
	Type      Type
	Relations Relations
}

// ListFilter is the repository-level form of BrowseOptions.
type ListFilter struct {
	Active  *bool
	Visible *bool
	Type    Type
	Offset  int
	Limit   int
}
