package farm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"stagefarm/internal/domain"
	"stagefarm/internal/idhash"
	"stagefarm/internal/ledger"
)

// txn stages one public operation. Pools and positions are copied on first
// touch and ledger movements are batched; nothing is visible until commit.
type txn struct {
	ctx   context.Context
	e     *Engine
	now   uint64
	batch *ledger.Batch

	pools     map[int]*domain.Pool
	positions map[positionKey]*domain.Position
	after     []func()

	accruals []*domain.AccrualPoint
	payouts  []*domain.Payout
}

// begin starts a transaction. Caller must hold e.mu for writing.
func (e *Engine) begin(ctx context.Context) *txn {
	return &txn{
		ctx:       ctx,
		e:         e,
		now:       e.clock.Now(),
		batch:     ledger.NewBatch(e.ledger),
		pools:     make(map[int]*domain.Pool),
		positions: make(map[positionKey]*domain.Position),
	}
}

// pool returns the staged copy of a pool.
func (t *txn) pool(id int) (*domain.Pool, error) {
	if p, ok := t.pools[id]; ok {
		return p, nil
	}
	p, err := t.e.poolLocked(id)
	if err != nil {
		return nil, err
	}
	c := p.Clone()
	t.pools[id] = c
	return c, nil
}

// position returns the staged copy of a position, creating it if needed.
func (t *txn) position(poolID int, user domain.Account) *domain.Position {
	k := positionKey{poolID, user}
	if pos, ok := t.positions[k]; ok {
		return pos
	}
	var pos *domain.Position
	if cur, ok := t.e.positions[k]; ok {
		pos = cur.Clone()
	} else {
		pos = domain.NewPosition(poolID, user)
	}
	t.positions[k] = pos
	return pos
}

// onCommit registers a state change applied once the operation is journaled.
func (t *txn) onCommit(fn func()) {
	t.after = append(t.after, fn)
}

// commit persists the operation, publishes staged state and notifies observers.
// Nothing is published unless the ledger batch and the journal entry both land.
func (t *txn) commit(entry *domain.JournalEntry) error {
	e := t.e

	if err := e.checkWritable(); err != nil {
		return err
	}

	entry.Seq = e.seq + 1
	entry.Index = t.now
	entry.RecordedAt = time.Now().UnixMilli()
	entry.ID = idhash.EntryID(entry)

	if err := t.persist(entry); err != nil {
		return err
	}

	for id, p := range t.pools {
		e.pools[id] = p
	}
	for k, pos := range t.positions {
		e.positions[k] = pos
	}
	for _, fn := range t.after {
		fn()
	}
	e.seq = entry.Seq

	for _, a := range t.accruals {
		a.Seq = entry.Seq
	}
	for _, p := range t.payouts {
		p.Seq = entry.Seq
	}

	e.logger.Debug("operation committed",
		zap.Uint64("seq", entry.Seq),
		zap.String("kind", entry.Kind.String()),
		zap.Uint64("index", entry.Index),
		zap.Int("pool_id", entry.PoolID),
		zap.Int("ledger_ops", t.batch.Len()))

	if e.observer != nil {
		c := &Commit{
			Entry:    entry,
			Accruals: t.accruals,
			Payouts:  t.payouts,
			state:    e.stateLocked,
		}
		// The entry is already journaled; observers only feed derived views.
		if err := e.observer.OnCommit(context.WithoutCancel(t.ctx), c); err != nil {
			e.logger.Warn("commit observer failed",
				zap.Uint64("seq", entry.Seq),
				zap.String("kind", entry.Kind.String()),
				zap.Error(err))
		}
	}

	return nil
}
