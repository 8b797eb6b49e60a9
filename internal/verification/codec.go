package verification

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"

	"stagefarm/internal/domain"
)

// ErrMalformedState is returned when an encoded state cannot be decoded.
var ErrMalformedState = errors.New("malformed state encoding")

// Amounts are carried as base-10 strings so the encoding is independent of big.Int internals.
type wireStage struct {
	Start     uint64 `cbor:"start"`
	End       uint64 `cbor:"end"`
	Primary   string `cbor:"primary_rate"`
	Secondary string `cbor:"secondary_rate"`
}

type wirePool struct {
	ID           int    `cbor:"id"`
	LPToken      string `cbor:"lp_token"`
	Weight       uint64 `cbor:"weight"`
	LastAccrual  uint64 `cbor:"last_accrual"`
	AccPrimary   string `cbor:"acc_primary"`
	AccSecondary string `cbor:"acc_secondary"`
}

type wirePosition struct {
	PoolID        int    `cbor:"pool_id"`
	User          string `cbor:"user"`
	Amount        string `cbor:"amount"`
	PrimaryDebt   string `cbor:"primary_debt"`
	SecondaryDebt string `cbor:"secondary_debt"`
}

type wireState struct {
	Index       uint64         `cbor:"index"`
	Stages      []wireStage    `cbor:"stages"`
	Pools       []wirePool     `cbor:"pools"`
	Positions   []wirePosition `cbor:"positions"`
	TotalWeight uint64         `cbor:"total_weight"`
	DevFeePpm   uint32         `cbor:"dev_fee_ppm"`
	DevAddress  string         `cbor:"dev_address"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor enc mode: %v", err))
	}
	decMode, err = cbor.DecOptions{ExtraReturnErrors: cbor.ExtraDecErrorUnknownField}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cbor dec mode: %v", err))
	}
}

// Encode returns the canonical encoding of st. Equal states encode to equal bytes.
func Encode(st *domain.State) ([]byte, error) {
	w := wireState{
		Index:       st.Index,
		Stages:      make([]wireStage, len(st.Stages)),
		Pools:       make([]wirePool, len(st.Pools)),
		Positions:   make([]wirePosition, len(st.Positions)),
		TotalWeight: st.TotalWeight,
		DevFeePpm:   st.DevFeePpm,
		DevAddress:  string(st.DevAddress),
	}
	for i, s := range st.Stages {
		w.Stages[i] = wireStage{
			Start:     s.StartIndex,
			End:       s.EndIndex,
			Primary:   intString(s.PrimaryRate),
			Secondary: intString(s.SecondaryRate),
		}
	}
	for i, p := range st.Pools {
		w.Pools[i] = wirePool{
			ID:           p.ID,
			LPToken:      string(p.LPToken),
			Weight:       p.AllocationWeight,
			LastAccrual:  p.LastAccrualIndex,
			AccPrimary:   intString(p.AccPrimaryPerShare),
			AccSecondary: intString(p.AccSecondaryPerShare),
		}
	}
	for i, p := range st.Positions {
		w.Positions[i] = wirePosition{
			PoolID:        p.PoolID,
			User:          string(p.User),
			Amount:        intString(p.Amount),
			PrimaryDebt:   intString(p.PrimaryDebt),
			SecondaryDebt: intString(p.SecondaryDebt),
		}
	}
	return encMode.Marshal(w)
}

// Decode parses a state produced by Encode.
func Decode(data []byte) (*domain.State, error) {
	var w wireState
	if err := decMode.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}

	st := &domain.State{
		Index:       w.Index,
		Stages:      make([]domain.Stage, len(w.Stages)),
		Pools:       make([]*domain.Pool, len(w.Pools)),
		Positions:   make([]*domain.Position, len(w.Positions)),
		TotalWeight: w.TotalWeight,
		DevFeePpm:   w.DevFeePpm,
		DevAddress:  domain.Account(w.DevAddress),
	}

	var d decoder
	for i, s := range w.Stages {
		st.Stages[i] = domain.Stage{
			StartIndex:    s.Start,
			EndIndex:      s.End,
			PrimaryRate:   d.int("primary_rate", s.Primary),
			SecondaryRate: d.int("secondary_rate", s.Secondary),
		}
	}
	for i, p := range w.Pools {
		st.Pools[i] = &domain.Pool{
			ID:                   p.ID,
			LPToken:              domain.TokenID(p.LPToken),
			AllocationWeight:     p.Weight,
			LastAccrualIndex:     p.LastAccrual,
			AccPrimaryPerShare:   d.int("acc_primary", p.AccPrimary),
			AccSecondaryPerShare: d.int("acc_secondary", p.AccSecondary),
		}
	}
	for i, p := range w.Positions {
		st.Positions[i] = &domain.Position{
			PoolID:        p.PoolID,
			User:          domain.Account(p.User),
			Amount:        d.int("amount", p.Amount),
			PrimaryDebt:   d.int("primary_debt", p.PrimaryDebt),
			SecondaryDebt: d.int("secondary_debt", p.SecondaryDebt),
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return st, nil
}

// decoder keeps the first amount parse error.
type decoder struct {
	err error
}

func (d *decoder) int(field, s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		if d.err == nil {
			d.err = fmt.Errorf("%w: %s=%q", ErrMalformedState, field, s)
		}
		return new(big.Int)
	}
	return v
}

func intString(x *big.Int) string {
	if x == nil {
		return "0"
	}
	return x.String()
}

// DigestBytes returns the hex blake2b-256 of an encoded state.
func DigestBytes(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Digest returns the hex blake2b-256 of the canonical encoding of st.
func Digest(st *domain.State) (string, error) {
	data, err := Encode(st)
	if err != nil {
		return "", err
	}
	return DigestBytes(data), nil
}

// NewSnapshot encodes st as the snapshot taken after entry seq.
func NewSnapshot(seq uint64, st *domain.State) (*domain.Snapshot, error) {
	data, err := Encode(st)
	if err != nil {
		return nil, fmt.Errorf("encode state at seq %d: %w", seq, err)
	}
	return &domain.Snapshot{
		Seq:       seq,
		Index:     st.Index,
		Digest:    DigestBytes(data),
		State:     data,
		CreatedAt: time.Now().UnixMilli(),
	}, nil
}
