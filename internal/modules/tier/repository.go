package tier

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("tier not found")
	ErrDuplicateSlug = errors.New("tier slug already exists")
	ErrInvalidInput  = errors.New("invalid tier input")
)

// Write lists the rows a create or update persists next to the tier row.
type Write struct {
	// Prices are inserted before the tier's price references are saved.
	Prices []*Price
	// Archive marks these prices inactive.
	Archive []uuid.UUID
	// Benefits replaces the tier's benefit list, in order, when ReplaceBenefits is set.
	Benefits        []Benefit
	ReplaceBenefits bool
}

// Repository defines the interface for tier data storage.
type Repository interface {
	List(ctx context.Context, filter ListFilter, rel Relations) ([]*Tier, int, error)
	Get(ctx context.Context, id uuid.UUID, rel Relations) (*Tier, error)
	Create(ctx context.Context, t *Tier, w Write) error
	Update(ctx context.Context, t *Tier, w Write) error
	SlugTaken(ctx context.Context, slug string) (bool, error)
}
