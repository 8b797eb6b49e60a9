// Package idhash computes deterministic identifiers.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"stagefarm/internal/domain"
)

// ComputeEntryID computes a deterministic journal entry id using SHA256.
// Formula: SHA256(seq|kind|index|caller|pool_id|user|amount)
// Returns hex-encoded hash (64 characters).
func ComputeEntryID(
	seq uint64,
	kind domain.EntryKind,
	index uint64,
	caller domain.Account,
	poolID int,
	user domain.Account,
	amount string,
) string {
	data := fmt.Sprintf("%d|%s|%d|%s|%d|%s|%s",
		seq,
		string(kind),
		index,
		string(caller),
		poolID,
		string(user),
		amount,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// EntryID computes the id of a journal entry from its fields.
func EntryID(e *domain.JournalEntry) string {
	amount := ""
	if e.Amount != nil {
		amount = e.Amount.String()
	}
	return ComputeEntryID(e.Seq, e.Kind, e.Index, e.Caller, e.PoolID, e.User, amount)
}
