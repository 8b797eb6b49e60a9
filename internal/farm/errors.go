package farm

import (
	"errors"
	"fmt"

	"stagefarm/internal/access"
	"stagefarm/internal/ledger"
	"stagefarm/internal/schedule"
)

// Engine errors. Every failure aborts the whole operation with no state change.
var (
	// ErrUnauthorized is returned when the caller lacks the admin capability.
	ErrUnauthorized = access.ErrUnauthorized

	// ErrInvalidRange is returned when a stage ends before it starts.
	ErrInvalidRange = schedule.ErrInvalidRange

	// ErrNonAdjacent is returned when a stage does not follow the previous one.
	ErrNonAdjacent = schedule.ErrNonAdjacent

	// ErrStageNotFound is returned for out-of-range stage indices.
	ErrStageNotFound = schedule.ErrStageNotFound

	// ErrZeroTotalWeight is returned when an admin change would leave the total weight at zero.
	ErrZeroTotalWeight = errors.New("total allocation weight would be zero")

	// ErrInsufficientBalance is returned when a withdrawal exceeds the deposit
	// or the ledger lacks funds for a transfer.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrTransferFailed is returned when the ledger rejects an operation for any other reason.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrPoolNotFound is returned for unknown pool ids.
	ErrPoolNotFound = errors.New("pool not found")

	// ErrDuplicatePool is returned when an LP token is registered twice.
	ErrDuplicatePool = errors.New("lp token already registered")

	// ErrInvalidFee is returned when the developer fee is outside [0, 1e6] ppm.
	ErrInvalidFee = errors.New("dev fee out of range")

	// ErrInvalidAmount is returned for nil or negative amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidInput is returned for malformed arguments.
	ErrInvalidInput = errors.New("invalid input")

	// ErrJournal is returned when an operation could not be journaled.
	ErrJournal = errors.New("journal write failed")

	// ErrHalted is returned for writes after the ledger and the journal diverged.
	ErrHalted = errors.New("engine halted")
)

// ledgerError maps ledger failures onto the engine taxonomy.
func ledgerError(err error) error {
	if errors.Is(err, ledger.ErrInsufficientBalance) {
		return fmt.Errorf("%w: %w", ErrInsufficientBalance, err)
	}
	return fmt.Errorf("%w: %w", ErrTransferFailed, err)
}
