package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"stagefarm/internal/domain"
)

type configResponse struct {
	PrimaryToken   string `json:"primary_token"`
	SecondaryToken string `json:"secondary_token"`
	Custody        string `json:"custody"`
	RewardSource   string `json:"reward_source"`
	DevAddress     string `json:"dev_address"`
	DevFeePpm      uint32 `json:"dev_fee_ppm"`
	CapPayouts     bool   `json:"cap_payouts"`
	TotalWeight    uint64 `json:"total_allocation_weight"`
	PoolCount      int    `json:"pool_count"`
	StageCount     int    `json:"stage_count"`
	Index          uint64 `json:"index"`
	Seq            uint64 `json:"seq"`
	ManualClock    bool   `json:"manual_clock"`
}

// HandleConfig returns engine parameters and counters.
// GET /v1/config
func (s *Server) HandleConfig(w http.ResponseWriter, _ *http.Request) {
	cfg := s.engine.Config()
	writeJSON(w, http.StatusOK, configResponse{
		PrimaryToken:   string(cfg.PrimaryToken),
		SecondaryToken: string(cfg.SecondaryToken),
		Custody:        string(cfg.Custody),
		RewardSource:   s.engine.RewardSourceMode(),
		DevAddress:     string(cfg.DevAddress),
		DevFeePpm:      cfg.DevFeePpm,
		CapPayouts:     cfg.CapPayoutsAtBalance,
		TotalWeight:    s.engine.TotalAllocationWeight(),
		PoolCount:      s.engine.PoolLength(),
		StageCount:     s.engine.StageCount(),
		Index:          s.engine.Now(),
		Seq:            s.engine.Seq(),
		ManualClock:    s.clock != nil,
	})
}

// HandleStages lists the emission schedule.
// GET /v1/stages
func (s *Server) HandleStages(w http.ResponseWriter, _ *http.Request) {
	stages := s.engine.Stages()
	out := make([]stageResponse, len(stages))
	for i, st := range stages {
		out[i] = s.stage(i, st)
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleStage returns one stage.
// GET /v1/stages/{index}
func (s *Server) HandleStage(w http.ResponseWriter, r *http.Request) {
	i, err := intVar(r, "index")
	if err != nil {
		s.fail(w, err)
		return
	}
	st, err := s.engine.Stage(i)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.stage(i, st))
}

// HandleRewards returns the schedule's emission over an inclusive index range.
// GET /v1/rewards?from=<index>&to=<index>
func (s *Server) HandleRewards(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := strconv.ParseUint(q.Get("from"), 10, 64)
	if err != nil {
		s.fail(w, badRequest("invalid from"))
		return
	}
	to, err := strconv.ParseUint(q.Get("to"), 10, 64)
	if err != nil {
		s.fail(w, badRequest("invalid to"))
		return
	}
	writeJSON(w, http.StatusOK, s.reward(s.engine.TotalReward(from, to)))
}

// HandlePools lists all pools.
// GET /v1/pools
func (s *Server) HandlePools(w http.ResponseWriter, _ *http.Request) {
	pools := s.engine.Pools()
	out := make([]poolResponse, len(pools))
	for i, p := range pools {
		out[i] = poolView(p)
	}
	writeJSON(w, http.StatusOK, out)
}

// HandlePool returns one pool.
// GET /v1/pools/{id}
func (s *Server) HandlePool(w http.ResponseWriter, r *http.Request) {
	id, err := intVar(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	p, err := s.engine.Pool(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, poolView(p))
}

type positionResponse struct {
	PoolID        int    `json:"pool_id"`
	User          string `json:"user"`
	Amount        string `json:"amount"`
	PrimaryDebt   string `json:"primary_debt"`
	SecondaryDebt string `json:"secondary_debt"`
}

// HandlePosition returns a user's position; users who never deposited get an empty one.
// GET /v1/pools/{id}/positions/{user}
func (s *Server) HandlePosition(w http.ResponseWriter, r *http.Request) {
	id, err := intVar(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	pos, err := s.engine.Position(id, domain.Account(mux.Vars(r)["user"]))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positionResponse{
		PoolID:        pos.PoolID,
		User:          string(pos.User),
		Amount:        pos.Amount.String(),
		PrimaryDebt:   pos.PrimaryDebt.String(),
		SecondaryDebt: pos.SecondaryDebt.String(),
	})
}

// HandlePending returns the reward a user could claim now.
// GET /v1/pools/{id}/pending/{user}
func (s *Server) HandlePending(w http.ResponseWriter, r *http.Request) {
	id, err := intVar(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	pending, err := s.engine.PendingReward(r.Context(), id, domain.Account(mux.Vars(r)["user"]))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.reward(pending))
}
