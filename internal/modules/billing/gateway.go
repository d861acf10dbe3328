// Package billing issues the external product and price references stored on tier prices.
package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Provider names a billing backend.
type Provider string

const ProviderSandbox Provider = "sandbox"

var ErrUnknownProvider = errors.New("unknown billing provider")

// Gateway is the provider-agnostic interface every billing adapter must implement.
type Gateway interface {
	// CreateProduct registers a product for a tier and returns its reference.
	CreateProduct(ctx context.Context, name string) (string, error)
	// CreatePrice registers a recurring price under productRef and returns its reference.
	CreatePrice(ctx context.Context, productRef, currency string, amount int64, interval string) (string, error)
}

// Registry maps provider names to their Gateway implementations.
type Registry map[Provider]Gateway

// NewRegistry returns a registry holding the built-in adapters.
func NewRegistry() Registry {
	return Registry{ProviderSandbox: NewSandboxGateway()}
}

// Get resolves the gateway configured for provider.
func (r Registry) Get(provider Provider) (Gateway, error) {
	g, ok := r[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	return g, nil
}

// ── Sandbox Adapter ───────────────────────────────────────────────────────────
// Issues local references shaped like the hosted provider's ids.

type sandboxGateway struct{}

func NewSandboxGateway() Gateway {
	return sandboxGateway{}
}

func (sandboxGateway) CreateProduct(ctx context.Context, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("product name is required")
	}
	return "prod_" + shortRef(), nil
}

func (sandboxGateway) CreatePrice(ctx context.Context, productRef, currency string, amount int64, interval string) (string, error) {
	if productRef == "" {
		return "", fmt.Errorf("product reference is required")
	}
	if amount < 0 {
		return "", fmt.Errorf("amount must not be negative")
	}
	return "price_" + shortRef(), nil
}

func shortRef() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
}
