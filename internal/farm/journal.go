package farm

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"stagefarm/internal/domain"
	"stagefarm/internal/ledger"
)

// Journal durably records committed operations. The engine appends each entry
// before it publishes the operation's state.
type Journal interface {
	Append(ctx context.Context, entries ...*domain.JournalEntry) error
}

// persist applies the ledger batch and journals entry.
//
// A ledger implementing ledger.Journaled takes both in one transaction, so any
// failure leaves no trace. Otherwise the batch is applied first; if the append
// then fails the ledger has already moved, the engine halts and every later
// write is refused until it is rebuilt from the journal.
func (t *txn) persist(entry *domain.JournalEntry) error {
	e := t.e

	if e.journal == nil {
		if err := t.batch.Commit(t.ctx); err != nil {
			return ledgerError(err)
		}
		return nil
	}

	if jl, ok := e.ledger.(ledger.Journaled); ok {
		err := jl.ApplyJournaled(t.ctx, t.batch.Ops(), entry)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ledger.ErrJournal):
			return fmt.Errorf("%w: seq %d: %w", ErrJournal, entry.Seq, err)
		default:
			return ledgerError(err)
		}
	}

	if err := t.batch.Commit(t.ctx); err != nil {
		return ledgerError(err)
	}
	if err := e.journal.Append(context.WithoutCancel(t.ctx), entry); err != nil {
		err = fmt.Errorf("%w: seq %d: %w", ErrJournal, entry.Seq, err)
		e.halted = err
		e.logger.Error("journal append failed after ledger commit, engine halted",
			zap.Uint64("seq", entry.Seq),
			zap.String("kind", entry.Kind.String()),
			zap.Int("ledger_ops", t.batch.Len()),
			zap.Error(err))
		return err
	}
	return nil
}

// Halted returns the error that stopped the engine, or nil.
func (e *Engine) Halted() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.halted
}

// checkWritable refuses writes on a halted engine. Caller must hold e.mu.
func (e *Engine) checkWritable() error {
	if e.halted != nil {
		return fmt.Errorf("%w: %w", ErrHalted, e.halted)
	}
	return nil
}
