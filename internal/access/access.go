// Package access gates administrative operations behind capabilities.
package access

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"stagefarm/internal/domain"
)

// ErrUnauthorized is returned when the caller lacks the required capability.
var ErrUnauthorized = errors.New("unauthorized")

// Capability names a permission checked by a Gate.
type Capability string

const (
	// CapOwner guards schedule, pool, fee and ownership administration.
	CapOwner Capability = "owner"
	// CapClock guards manual clock overrides.
	CapClock Capability = "clock"
)

// Gate decides whether a caller holds a capability.
type Gate interface {
	Require(ctx context.Context, caller domain.Account, capability Capability) error
}

// OwnerGate grants every capability to a single owner account.
type OwnerGate struct {
	mu    sync.RWMutex
	owner domain.Account
}

// NewOwnerGate creates a gate owned by owner.
func NewOwnerGate(owner domain.Account) *OwnerGate {
	return &OwnerGate{owner: owner}
}

// Compile-time interface check.
var _ Gate = (*OwnerGate)(nil)

// Require returns ErrUnauthorized unless caller is the owner.
func (g *OwnerGate) Require(_ context.Context, caller domain.Account, capability Capability) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.owner.IsZero() || caller != g.owner {
		return fmt.Errorf("%w: %s lacks %s", ErrUnauthorized, caller, capability)
	}
	return nil
}

// Owner returns the current owner.
func (g *OwnerGate) Owner() domain.Account {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.owner
}

// TransferOwnership hands the gate to newOwner. Only the current owner may call it.
func (g *OwnerGate) TransferOwnership(_ context.Context, caller, newOwner domain.Account) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.owner.IsZero() || caller != g.owner {
		return fmt.Errorf("%w: %s is not the owner", ErrUnauthorized, caller)
	}
	if newOwner.IsZero() {
		return fmt.Errorf("%w: new owner is empty", ErrUnauthorized)
	}
	g.owner = newOwner
	return nil
}

// Open is a Gate that allows everything. Used when replaying an already-authorized journal.
type Open struct{}

// Require always succeeds.
func (Open) Require(context.Context, domain.Account, Capability) error {
	return nil
}
