package domain

// State is the canonical view of the engine used for snapshots and verification.
// Positions are ordered by (PoolID, User).
type State struct {
	Index       uint64
	Stages      []Stage
	Pools       []*Pool
	Positions   []*Position
	TotalWeight uint64
	DevFeePpm   uint32
	DevAddress  Account
}

// Snapshot is a persisted, encoded State taken after journal entry Seq.
type Snapshot struct {
	Seq       uint64
	Index     uint64
	Digest    string // hex blake2b-256 of State
	State     []byte // canonical encoding
	CreatedAt int64  // wall clock (ms)
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	c.State = append([]byte(nil), s.State...)
	return &c
}
