package replay

import (
	"fmt"
	"sort"

	"stagefarm/internal/domain"
)

// SortEntries orders entries by seq ASC.
func SortEntries(entries []*domain.JournalEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Seq < entries[j].Seq
	})
}

// ValidateOrdering checks that entries continue the journal after seq `after`
// without gaps and that clock indices never go backwards.
func ValidateOrdering(entries []*domain.JournalEntry, after uint64) error {
	next := after + 1
	var lastIndex uint64
	for i, e := range entries {
		if e.Seq != next {
			return fmt.Errorf("%w: entry %d has seq %d, expected %d", ErrInvalidOrdering, i, e.Seq, next)
		}
		if i > 0 && e.Index < lastIndex {
			return fmt.Errorf("%w: seq %d index %d before %d", ErrInvalidOrdering, e.Seq, e.Index, lastIndex)
		}
		if !e.Kind.IsValid() {
			return fmt.Errorf("%w: seq %d has unknown kind %q", ErrInvalidOrdering, e.Seq, e.Kind)
		}
		lastIndex = e.Index
		next++
	}
	return nil
}
