package farm

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"stagefarm/internal/access"
	"stagefarm/internal/domain"
)

// AppendStage appends an emission stage to the schedule.
func (e *Engine) AppendStage(ctx context.Context, caller domain.Account, start, end uint64, primaryRate, secondaryRate *big.Int) error {
	if err := e.requireOwner(ctx, caller); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.schedule.Validate(start, end, primaryRate, secondaryRate); err != nil {
		return err
	}

	t := e.begin(ctx)
	t.onCommit(func() {
		// Validated above under the same lock.
		_ = e.schedule.Append(start, end, primaryRate, secondaryRate)
	})

	stage := domain.Stage{
		StartIndex:    start,
		EndIndex:      end,
		PrimaryRate:   new(big.Int).Set(primaryRate),
		SecondaryRate: new(big.Int).Set(secondaryRate),
	}
	if err := t.commit(&domain.JournalEntry{
		Kind:   domain.EntryStageAppended,
		Caller: caller,
		PoolID: -1,
		Stage:  &stage,
	}); err != nil {
		return err
	}

	e.logger.Info("stage appended",
		zap.Uint64("start", start),
		zap.Uint64("end", end),
		zap.String("primary_rate", primaryRate.String()),
		zap.String("secondary_rate", secondaryRate.String()))
	return nil
}

// SetDevFee sets the developer fee in parts per million.
func (e *Engine) SetDevFee(ctx context.Context, caller domain.Account, ppm uint32) error {
	if err := e.requireOwner(ctx, caller); err != nil {
		return err
	}
	if ppm > FeeDenominator {
		return fmt.Errorf("%w: %d ppm", ErrInvalidFee, ppm)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if ppm > 0 && e.devAddress.IsZero() {
		return fmt.Errorf("%w: set a dev address before a dev fee", ErrInvalidInput)
	}

	t := e.begin(ctx)
	t.onCommit(func() { e.devFeePpm = ppm })

	return t.commit(&domain.JournalEntry{
		Kind:   domain.EntryDevFeeSet,
		Caller: caller,
		PoolID: -1,
		FeePpm: ppm,
	})
}

// SetDevAddress sets the developer fee recipient.
func (e *Engine) SetDevAddress(ctx context.Context, caller domain.Account, addr domain.Account) error {
	if err := e.requireOwner(ctx, caller); err != nil {
		return err
	}
	if addr.IsZero() {
		return fmt.Errorf("%w: empty dev address", ErrInvalidInput)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.begin(ctx)
	t.onCommit(func() { e.devAddress = addr })

	return t.commit(&domain.JournalEntry{
		Kind:    domain.EntryDevAddressSet,
		Caller:  caller,
		PoolID:  -1,
		Address: addr,
	})
}

// OwnershipTransferer is implemented by gates whose owner can change.
type OwnershipTransferer interface {
	TransferOwnership(ctx context.Context, caller, newOwner domain.Account) error
}

// TransferOwnership hands the admin capability to newOwner. The gate changes
// only after the transfer is journaled.
func (e *Engine) TransferOwnership(ctx context.Context, caller, newOwner domain.Account) error {
	tr, ok := e.gate.(OwnershipTransferer)
	if !ok {
		return fmt.Errorf("%w: gate does not support ownership transfer", ErrUnauthorized)
	}
	if err := e.requireOwner(ctx, caller); err != nil {
		return err
	}
	if newOwner.IsZero() {
		return fmt.Errorf("%w: new owner is empty", ErrUnauthorized)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.begin(ctx)
	t.onCommit(func() {
		if err := tr.TransferOwnership(ctx, caller, newOwner); err != nil {
			e.logger.Error("gate rejected journaled ownership transfer",
				zap.String("caller", caller.String()),
				zap.String("new_owner", newOwner.String()),
				zap.Error(err))
		}
	})

	return t.commit(&domain.JournalEntry{
		Kind:    domain.EntryOwnershipTransferred,
		Caller:  caller,
		PoolID:  -1,
		Address: newOwner,
	})
}

// Compile-time interface check.
var _ OwnershipTransferer = (*access.OwnerGate)(nil)
