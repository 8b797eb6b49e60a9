package domain

import "math/big"

// EntryKind identifies the committed operation recorded by a journal entry.
type EntryKind string

const (
	EntryStageAppended        EntryKind = "stage_appended"
	EntryPoolRegistered       EntryKind = "pool_registered"
	EntryPoolWeightUpdated    EntryKind = "pool_weight_updated"
	EntryPoolUpdated          EntryKind = "pool_updated"
	EntryPoolsMassUpdated     EntryKind = "pools_mass_updated"
	EntryDeposit              EntryKind = "deposit"
	EntryWithdraw             EntryKind = "withdraw"
	EntryClaim                EntryKind = "claim"
	EntryEmergencyWithdraw    EntryKind = "emergency_withdraw"
	EntryDevFeeSet            EntryKind = "dev_fee_set"
	EntryDevAddressSet        EntryKind = "dev_address_set"
	EntryOwnershipTransferred EntryKind = "ownership_transferred"
)

// String returns the string representation of EntryKind.
func (k EntryKind) String() string {
	return string(k)
}

// IsValid checks if the kind is a known value.
func (k EntryKind) IsValid() bool {
	switch k {
	case EntryStageAppended, EntryPoolRegistered, EntryPoolWeightUpdated, EntryPoolUpdated,
		EntryPoolsMassUpdated, EntryDeposit, EntryWithdraw, EntryClaim, EntryEmergencyWithdraw,
		EntryDevFeeSet, EntryDevAddressSet, EntryOwnershipTransferred:
		return true
	}
	return false
}

// JournalEntry records one committed engine operation.
// Only the fields relevant to Kind are populated.
type JournalEntry struct {
	Seq        uint64    // engine commit sequence, starts at 1
	ID         string    // deterministic hash
	Kind       EntryKind // operation
	Index      uint64    // clock index the operation executed at
	Caller     Account   // admin caller or acting user
	PoolID     int       // -1 when not pool scoped
	User       Account   // position owner for user operations
	LPToken    TokenID   // pool_registered
	Amount     *big.Int  // deposit / withdraw / emergency_withdraw amount
	Weight     uint64    // pool_registered / pool_weight_updated
	RecalcAll  bool      // pool_registered / pool_weight_updated
	Stage      *Stage    // stage_appended
	FeePpm     uint32    // dev_fee_set
	Address    Account   // dev_address_set / ownership_transferred
	RecordedAt int64     // wall clock (ms)
}

// Clone returns a deep copy of the entry.
func (e *JournalEntry) Clone() *JournalEntry {
	c := *e
	if e.Amount != nil {
		c.Amount = new(big.Int).Set(e.Amount)
	}
	if e.Stage != nil {
		s := e.Stage.Clone()
		c.Stage = &s
	}
	return &c
}
