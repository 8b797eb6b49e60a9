// Package ledger defines the multi-token fungible ledger the engine moves tokens through.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"stagefarm/internal/domain"
)

var (
	// ErrInsufficientBalance is returned when a transfer exceeds the sender's balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrMintNotAllowed is returned when a ledger does not mint the requested token.
	ErrMintNotAllowed = errors.New("mint not allowed")

	// ErrInvalidOp is returned for malformed operations.
	ErrInvalidOp = errors.New("invalid ledger operation")

	// ErrJournal is returned by ApplyJournaled when the entry could not be stored.
	ErrJournal = errors.New("journal append failed")
)

// OpKind is the kind of ledger operation.
type OpKind string

const (
	OpTransfer OpKind = "transfer"
	OpMint     OpKind = "mint"
)

// Op is a single token movement. From is ignored for mints.
type Op struct {
	Kind   OpKind
	Token  domain.TokenID
	From   domain.Account
	To     domain.Account
	Amount *big.Int
}

// Validate checks the operation shape.
func (o Op) Validate() error {
	if o.Token == "" || o.To.IsZero() {
		return fmt.Errorf("%w: missing token or recipient", ErrInvalidOp)
	}
	if o.Amount == nil || o.Amount.Sign() < 0 {
		return fmt.Errorf("%w: amount must be non-negative", ErrInvalidOp)
	}
	switch o.Kind {
	case OpTransfer:
		if o.From.IsZero() {
			return fmt.Errorf("%w: transfer without sender", ErrInvalidOp)
		}
	case OpMint:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidOp, o.Kind)
	}
	return nil
}

// Ledger holds balances of many tokens.
type Ledger interface {
	// BalanceOf returns the balance of account in token. Unknown accounts hold zero.
	BalanceOf(ctx context.Context, token domain.TokenID, account domain.Account) (*big.Int, error)

	// Apply executes ops in order, all or nothing. On error no balance changes.
	Apply(ctx context.Context, ops []Op) error
}

// Journaled is implemented by ledgers that keep the operation journal in the
// same store as balances. ApplyJournaled applies ops and appends entry in one
// transaction; on error neither is visible.
type Journaled interface {
	ApplyJournaled(ctx context.Context, ops []Op, entry *domain.JournalEntry) error
}
