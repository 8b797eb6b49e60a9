package verification

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"stagefarm/internal/domain"
	"stagefarm/internal/farm"
	"stagefarm/internal/replay"
	"stagefarm/internal/storage"
)

// VerificationResult contains the result of verifying a single snapshot.
type VerificationResult struct {
	Seq            uint64            // snapshot seq
	Match          bool              // true if the replayed digest matches
	StoredDigest   string            // digest recorded with the snapshot
	ReplayedDigest string            // digest of the replayed state
	Divergences    []FieldDivergence // populated on mismatch
}

// VerificationReport contains results for a full journal verification.
type VerificationReport struct {
	Entries            int    // journal entries replayed
	TotalSnapshots     int    // snapshots verified
	MatchedSnapshots   int    // snapshots that matched exactly
	DivergentSnapshots int    // snapshots with divergences
	FinalSeq           uint64 // engine seq after replay
	FinalDigest        string // digest of the final replayed state
	Results            []VerificationResult
}

// OK reports whether every snapshot matched.
func (r *VerificationReport) OK() bool {
	return r.DivergentSnapshots == 0
}

// Verifier replays the journal and checks every stored snapshot digest.
type Verifier struct {
	journal   storage.JournalStore
	snapshots storage.SnapshotStore
	replayer  *replay.Replayer
	logger    *zap.Logger
}

// NewVerifier creates a new Verifier.
func NewVerifier(journal storage.JournalStore, snapshots storage.SnapshotStore, replayer *replay.Replayer, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		journal:   journal,
		snapshots: snapshots,
		replayer:  replayer,
		logger:    logger,
	}
}

// NewRunner returns a replay runner over the verifier's stores that decodes
// snapshots with Decode.
func (v *Verifier) NewRunner() *replay.Runner {
	return replay.NewRunner(v.journal, v.snapshots, Decode, v.replayer, v.logger)
}

// VerifyAll replays the whole journal from an empty engine and compares the
// replayed state at every snapshot seq with the stored digest.
func (v *Verifier) VerifyAll(ctx context.Context) (*VerificationReport, error) {
	snaps, err := v.snapshots.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	bySeq := make(map[uint64]*domain.Snapshot, len(snaps))
	for _, s := range snaps {
		bySeq[s.Seq] = s
	}

	report := &VerificationReport{
		TotalSnapshots: len(snaps),
		Results:        make([]VerificationResult, 0, len(snaps)),
	}

	step := func(_ context.Context, e *domain.JournalEntry, eng *farm.Engine) error {
		report.Entries++
		snap, ok := bySeq[e.Seq]
		if !ok {
			return nil
		}
		delete(bySeq, e.Seq)

		result, err := verifySnapshot(snap, eng.State())
		if err != nil {
			return err
		}
		report.Results = append(report.Results, *result)
		if result.Match {
			report.MatchedSnapshots++
		} else {
			report.DivergentSnapshots++
			v.logger.Warn("snapshot diverged",
				zap.Uint64("seq", snap.Seq),
				zap.Int("fields", len(result.Divergences)))
		}
		return nil
	}

	eng, err := v.NewRunner().RunAll(ctx, step)
	if err != nil {
		return nil, err
	}

	// Snapshots past the journal head can never be reproduced.
	for _, s := range snaps {
		if _, left := bySeq[s.Seq]; !left {
			continue
		}
		report.Results = append(report.Results, VerificationResult{
			Seq:          s.Seq,
			StoredDigest: s.Digest,
			Divergences: []FieldDivergence{
				{Field: "seq", Expected: fmt.Sprint(s.Seq), Actual: fmt.Sprint(eng.Seq())},
			},
		})
		report.DivergentSnapshots++
	}

	report.FinalSeq = eng.Seq()
	report.FinalDigest, err = Digest(eng.State())
	if err != nil {
		return nil, err
	}

	v.logger.Info("verification complete",
		zap.Int("entries", report.Entries),
		zap.Int("snapshots", report.TotalSnapshots),
		zap.Int("divergent", report.DivergentSnapshots))
	return report, nil
}

// VerifyLatest rebuilds the engine from the latest snapshot and the journal tail
// and checks that its state matches the live one.
func (v *Verifier) VerifyLatest(ctx context.Context, live *domain.State) (*VerificationResult, error) {
	eng, err := v.NewRunner().Rebuild(ctx)
	if err != nil {
		return nil, err
	}

	replayed := eng.State()
	replayed.Index = live.Index

	want, err := Digest(live)
	if err != nil {
		return nil, err
	}
	got, err := Digest(replayed)
	if err != nil {
		return nil, err
	}
	res := &VerificationResult{
		Seq:            eng.Seq(),
		Match:          want == got,
		StoredDigest:   want,
		ReplayedDigest: got,
	}
	if !res.Match {
		res.Divergences = CompareStates(live, replayed)
	}
	return res, nil
}

func verifySnapshot(snap *domain.Snapshot, replayed *domain.State) (*VerificationResult, error) {
	got, err := Digest(replayed)
	if err != nil {
		return nil, err
	}
	res := &VerificationResult{
		Seq:            snap.Seq,
		Match:          got == snap.Digest,
		StoredDigest:   snap.Digest,
		ReplayedDigest: got,
	}
	if res.Match {
		return res, nil
	}

	stored, err := Decode(snap.State)
	if errors.Is(err, ErrMalformedState) {
		res.Divergences = []FieldDivergence{{Field: "state", Expected: "decodable", Actual: err.Error()}}
		return res, nil
	}
	if err != nil {
		return nil, err
	}
	res.Divergences = CompareStates(stored, replayed)
	if len(res.Divergences) == 0 {
		// Same state but the stored bytes hash differently.
		res.Divergences = []FieldDivergence{{Field: "digest", Expected: snap.Digest, Actual: got}}
	}
	return res, nil
}
