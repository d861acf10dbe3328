package tier

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

type postgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgreSQL tier repository.
func NewPostgresRepository(db *sql.DB) Repository {
	return &postgresRepository{db: db}
}

const tierColumns = `id, name, slug, description, active, visible, type, welcome_page_url,
		monthly_price_id, yearly_price_id, created_at, updated_at`

const priceColumns = `id, tier_id, stripe_product_id, stripe_price_id, active, nickname, description,
		currency, amount, type, interval, created_at, updated_at`

func (r *postgresRepository) List(ctx context.Context, filter ListFilter, rel Relations) ([]*Tier, int, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Active != nil {
		args = append(args, *filter.Active)
		clauses = append(clauses, fmt.Sprintf("active = $%d", len(args)))
	}
	if filter.Visible != nil {
		args = append(args, *filter.Visible)
		clauses = append(clauses, fmt.Sprintf("visible = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		clauses = append(clauses, fmt.Sprintf("type = $%d", len(args)))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tiers"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tiers: %w", err)
	}

	query := "SELECT " + tierColumns + " FROM tiers" + where +
		fmt.Sprintf(" ORDER BY created_at, id LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tiers: %w", err)
	}
	defer rows.Close()

	var tiers []*Tier
	for rows.Next() {
		t, err := scanTier(rows)
		if err != nil {
			return nil, 0, err
		}
		tiers = append(tiers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if err := r.hydrate(ctx, tiers, rel); err != nil {
		return nil, 0, err
	}
	return tiers, total, nil
}

func (r *postgresRepository) Get(ctx context.Context, id uuid.UUID, rel Relations) (*Tier, error) {
	query := "SELECT " + tierColumns + " FROM tiers WHERE id = $1"
	t, err := scanTier(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(err)
	}
	if err := r.hydrate(ctx, []*Tier{t}, rel); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *postgresRepository) Create(ctx context.Context, t *Tier, w Write) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO tiers (id, name, slug, description, active, visible, type, welcome_page_url, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`
		if _, err := tx.ExecContext(ctx, query, t.ID, t.Name, t.Slug, t.Description, t.Active, t.Visible,
			string(t.Type), t.WelcomePageURL, t.CreatedAt, t.UpdatedAt); err != nil {
			return mapError(err)
		}
		if err := insertPrices(ctx, tx, w.Prices); err != nil {
			return err
		}
		if t.MonthlyPriceID != nil || t.YearlyPriceID != nil {
			query := `UPDATE tiers SET monthly_price_id = $2, yearly_price_id = $3 WHERE id = $1`
			if _, err := tx.ExecContext(ctx, query, t.ID, nullUUID(t.MonthlyPriceID), nullUUID(t.YearlyPriceID)); err != nil {
				return fmt.Errorf("link tier prices: %w", err)
			}
		}
		if w.ReplaceBenefits {
			return replaceBenefits(ctx, tx, t, w.Benefits)
		}
		return nil
	})
}

func (r *postgresRepository) Update(ctx context.Context, t *Tier, w Write) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertPrices(ctx, tx, w.Prices); err != nil {
			return err
		}
		if len(w.Archive) > 0 {
			query := `UPDATE tier_prices SET active = false, updated_at = $2 WHERE id = ANY($1)`
			if _, err := tx.ExecContext(ctx, query, pq.Array(uuidStrings(w.Archive)), t.UpdatedAt); err != nil {
				return fmt.Errorf("archive prices: %w", err)
			}
		}

		query := `
			UPDATE tiers
			SET name = $2, description = $3, active = $4, visible = $5, welcome_page_url = $6,
				monthly_price_id = $7, yearly_price_id = $8, updated_at = $9
			WHERE id = $1
		`
		res, err := tx.ExecContext(ctx, query, t.ID, t.Name, t.Description, t.Active, t.Visible, t.WelcomePageURL,
			nullUUID(t.MonthlyPriceID), nullUUID(t.YearlyPriceID), t.UpdatedAt)
		if err != nil {
			return mapError(err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}

		if w.ReplaceBenefits {
			return replaceBenefits(ctx, tx, t, w.Benefits)
		}
		return nil
	})
}

func (r *postgresRepository) SlugTaken(ctx context.Context, slug string) (bool, error) {
	var taken bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM tiers WHERE slug = $1)`, slug).Scan(&taken); err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return taken, nil
}

func (r *postgresRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// hydrate attaches prices and the requested relations to tiers with one query per relation.
func (r *postgresRepository) hydrate(ctx context.Context, tiers []*Tier, rel Relations) error {
	if len(tiers) == 0 {
		return nil
	}
	ids := make([]string, 0, len(tiers))
	byID := make(map[uuid.UUID]*Tier, len(tiers))
	for _, t := range tiers {
		ids = append(ids, t.ID.String())
		byID[t.ID] = t
	}

	prices, err := r.pricesFor(ctx, ids)
	if err != nil {
		return err
	}
	for _, t := range tiers {
		if rel.StripePrices {
			t.StripePrices = LoadedRelation[Price]()
		}
		if rel.Benefits {
			t.Benefits = LoadedRelation[Benefit]()
		}
	}
	for i := range prices {
		p := prices[i]
		t, ok := byID[p.TierID]
		if !ok {
			continue
		}
		if t.MonthlyPriceID != nil && *t.MonthlyPriceID == p.ID {
			t.MonthlyPrice = &p
		}
		if t.YearlyPriceID != nil && *t.YearlyPriceID == p.ID {
			t.YearlyPrice = &p
		}
		if rel.StripePrices {
			t.StripePrices.Items = append(t.StripePrices.Items, p)
		}
	}

	if !rel.Benefits {
		return nil
	}
	query := `
		SELECT tb.tier_id, b.id, b.name, b.slug, b.created_at, b.updated_at
		FROM tiers_benefits tb
		JOIN benefits b ON b.id = tb.benefit_id
		WHERE tb.tier_id = ANY($1)
		ORDER BY tb.tier_id, tb.sort_order
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("load benefits: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tierID uuid.UUID
		var b Benefit
		if err := rows.Scan(&tierID, &b.ID, &b.Name, &b.Slug, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return err
		}
		if t, ok := byID[tierID]; ok {
			t.Benefits.Items = append(t.Benefits.Items, b)
		}
	}
	return rows.Err()
}

func (r *postgresRepository) pricesFor(ctx context.Context, tierIDs []string) ([]Price, error) {
	query := "SELECT " + priceColumns + " FROM tier_prices WHERE tier_id = ANY($1) ORDER BY created_at, id"
	rows, err := r.db.QueryContext(ctx, query, pq.Array(tierIDs))
	if err != nil {
		return nil, fmt.Errorf("load prices: %w", err)
	}
	defer rows.Close()

	var prices []Price
	for rows.Next() {
		var p Price
		var priceType, interval string
		if err := rows.Scan(&p.ID, &p.TierID, &p.StripeProductID, &p.StripePriceID, &p.Active, &p.Nickname,
			&p.Description, &p.Currency, &p.Amount, &priceType, &interval, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Type, p.Interval = PriceType(priceType), Interval(interval)
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

func insertPrices(ctx context.Context, tx *sql.Tx, prices []*Price) error {
	query := `
		INSERT INTO tier_prices (id, tier_id, stripe_product_id, stripe_price_id, active, nickname, description,
			currency, amount, type, interval, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	for _, p := range prices {
		if _, err := tx.ExecContext(ctx, query, p.ID, p.TierID, p.StripeProductID, p.StripePriceID, p.Active,
			p.Nickname, p.Description, p.Currency, p.Amount, string(p.Type), string(p.Interval),
			p.CreatedAt, p.UpdatedAt); err != nil {
			return fmt.Errorf("insert price: %w", err)
		}
	}
	return nil
}

// replaceBenefits relinks benefits to t in the given order. A slug that already
// exists resolves to the stored row unchanged, since other tiers share it.
func replaceBenefits(ctx context.Context, tx *sql.Tx, t *Tier, benefits []Benefit) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM tiers_benefits WHERE tier_id = $1`, t.ID); err != nil {
		return fmt.Errorf("unlink benefits: %w", err)
	}

	// The no-op update makes RETURNING yield the existing row on conflict.
	upsert := `
		INSERT INTO benefits (id, name, slug, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (slug) DO UPDATE SET slug = EXCLUDED.slug
		RETURNING id, name, created_at, updated_at
	`
	link := `INSERT INTO tiers_benefits (tier_id, benefit_id, sort_order) VALUES ($1, $2, $3)`
	for i := range benefits {
		b := &benefits[i]
		if err := tx.QueryRowContext(ctx, upsert, b.ID, b.Name, b.Slug, b.CreatedAt, b.UpdatedAt).
			Scan(&b.ID, &b.Name, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return fmt.Errorf("upsert benefit %q: %w", b.Slug, err)
		}
		if _, err := tx.ExecContext(ctx, link, t.ID, b.ID, i); err != nil {
			return fmt.Errorf("link benefit %q: %w", b.Slug, err)
		}
	}
	t.Benefits = LoadedRelation(benefits...)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTier(row rowScanner) (*Tier, error) {
	t := &Tier{}
	var tierType string
	var monthly, yearly uuid.NullUUID
	if err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.Description, &t.Active, &t.Visible, &tierType,
		&t.WelcomePageURL, &monthly, &yearly, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Type = Type(tierType)
	if monthly.Valid {
		t.MonthlyPriceID = &monthly.UUID
	}
	if yearly.Valid {
		t.YearlyPriceID = &yearly.UUID
	}
	return t, nil
}

func mapError(err error) error {
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pqErr) && pqErr.Code == uniqueViolation:
		return ErrDuplicateSlug
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	default:
		return err
	}
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
