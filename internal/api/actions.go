package api

import (
	"net/http"

	"go.uber.org/zap"

	"stagefarm/internal/access"
	"stagefarm/internal/domain"
)

type amountRequest struct {
	Amount string `json:"amount"`
}

type commitResponse struct {
	Seq   uint64 `json:"seq"`
	Index uint64 `json:"index"`
}

func (s *Server) committed(w http.ResponseWriter, status int) {
	writeJSON(w, status, commitResponse{Seq: s.engine.Seq(), Index: s.engine.Now()})
}

// poolAction resolves the caller and pool id shared by the user endpoints.
func poolAction(r *http.Request) (domain.Account, int, error) {
	user, err := caller(r)
	if err != nil {
		return "", 0, err
	}
	id, err := intVar(r, "id")
	if err != nil {
		return "", 0, err
	}
	return user, id, nil
}

func (s *Server) amountAction(w http.ResponseWriter, r *http.Request, op func(id int, user domain.Account, req amountRequest) error) {
	user, id, err := poolAction(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	var req amountRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if err := op(id, user, req); err != nil {
		s.fail(w, err)
		return
	}
	s.committed(w, http.StatusOK)
}

// HandleDeposit moves LP shares from the caller into the pool.
// POST /v1/pools/{id}/deposit {"amount": "100"}
func (s *Server) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	s.amountAction(w, r, func(id int, user domain.Account, req amountRequest) error {
		amt, err := parseAmount("amount", req.Amount)
		if err != nil {
			return err
		}
		return s.engine.Deposit(r.Context(), id, user, amt)
	})
}

// HandleWithdraw returns LP shares to the caller and settles pending reward.
// POST /v1/pools/{id}/withdraw {"amount": "100"}
func (s *Server) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.amountAction(w, r, func(id int, user domain.Account, req amountRequest) error {
		amt, err := parseAmount("amount", req.Amount)
		if err != nil {
			return err
		}
		return s.engine.Withdraw(r.Context(), id, user, amt)
	})
}

// HandleClaim settles the caller's pending reward.
// POST /v1/pools/{id}/claim
func (s *Server) HandleClaim(w http.ResponseWriter, r *http.Request) {
	user, id, err := poolAction(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := s.engine.Claim(r.Context(), id, user); err != nil {
		s.fail(w, err)
		return
	}
	s.committed(w, http.StatusOK)
}

// HandleEmergencyWithdraw returns the caller's whole deposit, forfeiting pending reward.
// POST /v1/pools/{id}/emergency-withdraw
func (s *Server) HandleEmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	user, id, err := poolAction(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := s.engine.EmergencyWithdraw(r.Context(), id, user); err != nil {
		s.fail(w, err)
		return
	}
	s.committed(w, http.StatusOK)
}

// HandleUpdatePool advances one pool.
// POST /v1/pools/{id}/update
func (s *Server) HandleUpdatePool(w http.ResponseWriter, r *http.Request) {
	who, id, err := poolAction(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := s.engine.UpdatePool(r.Context(), who, id); err != nil {
		s.fail(w, err)
		return
	}
	s.committed(w, http.StatusOK)
}

// HandleMassUpdate advances every pool.
// POST /v1/pools/update
func (s *Server) HandleMassUpdate(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := s.engine.MassUpdatePools(r.Context(), who); err != nil {
		s.fail(w, err)
		return
	}
	s.committed(w, http.StatusOK)
}

type stageRequest struct {
	Start         uint64 `json:"start"`
	End           uint64 `json:"end"`
	PrimaryRate   string `json:"primary_rate"`
	SecondaryRate string `json:"secondary_rate"`
}

// HandleAppendStage appends an emission stage.
// POST /v1/admin/stages
func (s *Server) HandleAppendStage(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	var req stageRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	p, err := parseAmount("primary_rate", req.PrimaryRate)
	if err != nil {
		s.fail(w, err)
		return
	}
	sec, err := parseAmount("secondary_rate", req.SecondaryRate)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := s.engine.AppendStage(r.Context(), who, req.Start, req.End, p, sec); err != nil {
		s.fail(w, err)
		return
	}
	s.committed(w, http.StatusCreated)
}

type registerPoolRequest struct {
	LPToken   string `json:"lp_token"`
	Weight    uint64 `json:"weight"`
	RecalcAll bool   `json:"recalc_all"`
}

// HandleRegisterPool registers a pool.
// POST /v1/admin/pools
func (s *Server) HandleRegisterPool(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	var req registerPoolRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	id, err := s.engine.RegisterPool(r.Context(), who, req.Weight, domain.TokenID(req.LPToken), req.RecalcAll)
	if err != nil {
		s.fail(w, err)
		return
	}
	p, err := s.engine.Pool(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, poolView(p))
}

type weightRequest struct {
	Weight    uint64 `json:"weight"`
	RecalcAll bool   `json:"recalc_all"`
}

// HandleUpdatePoolWeight changes a pool's allocation weight.
// PUT /v1/admin/pools/{id}
func (s *Server) HandleUpdatePoolWeight(w http.ResponseWriter, r *http.Request) {
	who, id, err := poolAction(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	var req weightRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if err := s.engine.UpdatePoolWeight(r.Context(), who, id, req.Weight, req.RecalcAll); err != nil {
		s.fail(w, err)
		return
	}
	s.committed(w, http.StatusOK)
}

// HandleSetDevFee sets the developer fee.
// PUT /v1/admin/dev-fee {"ppm": 50000}
func (s *Server) HandleSetDevFee(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	var req struct {
		Ppm uint32 `json:"ppm"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if err := s.engine.SetDevFee(r.Context(), who, req.Ppm); err != nil {
		s.fail(w, err)
		return
	}
	s.committed(w, http.StatusOK)
}

// HandleSetDevAddress sets the developer fee recipient.
// PUT /v1/admin/dev-address {"address": "dev"}
func (s *Server) HandleSetDevAddress(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	var req struct {
		Address string `json:"address"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if err := s.engine.SetDevAddress(r.Context(), who, domain.Account(req.Address)); err != nil {
		s.fail(w, err)
		return
	}
	s.committed(w, http.StatusOK)
}

// HandleTransferOwnership hands the admin capability to another account.
// PUT /v1/admin/owner {"owner": "alice"}
func (s *Server) HandleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	var req struct {
		Owner string `json:"owner"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if err := s.engine.TransferOwnership(r.Context(), who, domain.Account(req.Owner)); err != nil {
		s.fail(w, err)
		return
	}
	s.committed(w, http.StatusOK)
}

// HandleSetClock moves the manual clock. Only routed when the engine runs on a manual clock.
// PUT /v1/admin/clock {"index": 150}
func (s *Server) HandleSetClock(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := s.gate.Require(r.Context(), who, access.CapClock); err != nil {
		s.fail(w, err)
		return
	}
	var req struct {
		Index uint64 `json:"index"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}

	s.clock.Set(req.Index)
	s.logger.Warn("clock overridden", zap.String("caller", string(who)), zap.Uint64("index", req.Index))
	writeJSON(w, http.StatusOK, map[string]uint64{"index": s.clock.Now()})
}
