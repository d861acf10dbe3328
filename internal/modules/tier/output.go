package tier

import "slices"

// Record is a response object keyed by JSON field name. A nil Record encodes as null.
type Record map[string]any

// AllowedIncludes are the optional tier fields a caller must ask for by name.
var AllowedIncludes = []string{"monthly_price", "yearly_price"}

// TiersResponse is the envelope written to Frame.Response.
type TiersResponse struct {
	Tiers []Record `json:"tiers"`
	Meta  any      `json:"meta,omitempty"`
}

// TraceFunc observes which serializer operation ran.
type TraceFunc func(operation string)

// Output turns tiers into audience-shaped responses.
type Output struct {
	trace TraceFunc
}

// NewOutput builds an Output. trace may be nil.
func NewOutput(trace TraceFunc) *Output {
	return &Output{trace: trace}
}

// Browse writes {tiers, meta} for a page. Meta is passed through untouched.
func (o *Output) Browse(page *Page, frame *Frame) {
	o.observe("browse")

	var items []*Tier
	var meta any
	if page != nil {
		items, meta = page.Data, page.Meta
	}
	requested := frame.Includes()
	tiers := make([]Record, 0, len(items))
	for _, t := range items {
		tiers = append(tiers, FilterIncludes(AllowedIncludes, requested, SerializeTier(t, frame.Audience)))
	}
	frame.Response = TiersResponse{Tiers: tiers, Meta: meta}
}

// Read writes {tiers:[tier]}.
func (o *Output) Read(t *Tier, frame *Frame) { o.single("read", t, frame) }

// Edit writes {tiers:[tier]}.
func (o *Output) Edit(t *Tier, frame *Frame) { o.single("edit", t, frame) }

// Add writes {tiers:[tier]}.
func (o *Output) Add(t *Tier, frame *Frame) { o.single("add", t, frame) }

func (o *Output) single(operation string, t *Tier, frame *Frame) {
	o.observe(operation)

	tier := FilterIncludes(AllowedIncludes, frame.Includes(), SerializeTier(t, frame.Audience))
	frame.Response = TiersResponse{Tiers: []Record{tier}}
}

// observe calls the trace hook. A panicking hook is swallowed.
func (o *Output) observe(operation string) {
	if o.trace == nil {
		return
	}
	defer func() { _ = recover() }()
	o.trace(operation)
}

// FilterIncludes returns a copy of data without the allowed keys that were not requested.
func FilterIncludes(allowed []string, requested IncludeSet, data Record) Record {
	cleaned := make(Record, len(data))
	for k, v := range data {
		cleaned[k] = v
	}
	for _, name := range allowed {
		if !requested.Has(name) {
			delete(cleaned, name)
		}
	}
	return cleaned
}

// SerializeTier maps a tier to its response shape. monthly_price and
// yearly_price are always set here and left to FilterIncludes.
func SerializeTier(t *Tier, audience Audience) Record {
	if t == nil {
		return Record{}
	}
	redact := audience == AudienceContent

	var stripePrices []Record
	if t.StripePrices.Loaded {
		stripePrices = make([]Record, 0, len(t.StripePrices.Items))
		for i := range t.StripePrices.Items {
			stripePrices = append(stripePrices, SerializePrice(&t.StripePrices.Items[i], redact))
		}
	}

	var benefits []Benefit
	if t.Benefits.Populated() {
		benefits = slices.Clone(t.Benefits.Items)
	}

	return Record{
		"id":               t.ID,
		"name":             t.Name,
		"description":      t.Description,
		"slug":             t.Slug,
		"active":           t.Active,
		"type":             t.Type,
		"welcome_page_url": t.WelcomePageURL,
		"created_at":       t.CreatedAt,
		"updated_at":       t.UpdatedAt,
		"stripe_prices":    stripePrices,
		"monthly_price":    SerializePrice(t.MonthlyPrice, redact),
		"yearly_price":     SerializePrice(t.YearlyPrice, redact),
		"benefits":         benefits,
		"visible":          t.Visible,
	}
}

// SerializePrice maps a price to its response shape, or nil when p is absent.
// With redact set the external billing identifiers are dropped.
func SerializePrice(p *Price, redact bool) Record {
	if p.IsZero() {
		return nil
	}
	price := Record{
		"id":              p.ID,
		"stripe_tier_id":  p.StripeProductID,
		"stripe_price_id": p.StripePriceID,
		"active":          p.Active,
		"nickname":        p.Nickname,
		"description":     p.Description,
		"currency":        p.Currency,
		"amount":          p.Amount,
		"type":            p.Type,
		"interval":        p.Interval,
		"created_at":      p.CreatedAt,
		"updated_at":      p.UpdatedAt,
	}
	if redact {
		delete(price, "stripe_price_id")
		delete(price, "stripe_tier_id")
	}
	return price
}
