package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stagefarm/internal/domain"
	"stagefarm/internal/farm"
)

// Amount is a raw base-unit amount plus its human-readable form.
type Amount struct {
	Raw     string `json:"raw"`
	Display string `json:"display"`
}

func (s *Server) amount(x *big.Int, token int) Amount {
	x = domain.CloneInt(x)
	return Amount{
		Raw:     x.String(),
		Display: decimal.NewFromBigInt(x, -s.decimals[token]).String(),
	}
}

func (s *Server) primary(x *big.Int) Amount   { return s.amount(x, 0) }
func (s *Server) secondary(x *big.Int) Amount { return s.amount(x, 1) }

type stageResponse struct {
	Index         int    `json:"index"`
	Start         uint64 `json:"start"`
	End           uint64 `json:"end"`
	PrimaryRate   Amount `json:"primary_rate"`
	SecondaryRate Amount `json:"secondary_rate"`
}

func (s *Server) stage(i int, st domain.Stage) stageResponse {
	return stageResponse{
		Index:         i,
		Start:         st.StartIndex,
		End:           st.EndIndex,
		PrimaryRate:   s.primary(st.PrimaryRate),
		SecondaryRate: s.secondary(st.SecondaryRate),
	}
}

type poolResponse struct {
	ID                   int    `json:"id"`
	LPToken              string `json:"lp_token"`
	AllocationWeight     uint64 `json:"allocation_weight"`
	LastAccrualIndex     uint64 `json:"last_accrual_index"`
	AccPrimaryPerShare   string `json:"acc_primary_per_share"`
	AccSecondaryPerShare string `json:"acc_secondary_per_share"`
}

func poolView(p *domain.Pool) poolResponse {
	return poolResponse{
		ID:                   p.ID,
		LPToken:              string(p.LPToken),
		AllocationWeight:     p.AllocationWeight,
		LastAccrualIndex:     p.LastAccrualIndex,
		AccPrimaryPerShare:   domain.CloneInt(p.AccPrimaryPerShare).String(),
		AccSecondaryPerShare: domain.CloneInt(p.AccSecondaryPerShare).String(),
	}
}

type rewardResponse struct {
	Primary   Amount `json:"primary"`
	Secondary Amount `json:"secondary"`
}

func (s *Server) reward(r domain.Reward) rewardResponse {
	return rewardResponse{Primary: s.primary(r.Primary), Secondary: s.secondary(r.Secondary)}
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// errBadRequest marks request decoding failures.
var errBadRequest = errors.New("bad request")

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, farm.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, farm.ErrPoolNotFound), errors.Is(err, farm.ErrStageNotFound):
		return http.StatusNotFound
	case errors.Is(err, farm.ErrInsufficientBalance):
		return http.StatusConflict
	case errors.Is(err, farm.ErrTransferFailed):
		return http.StatusBadGateway
	case errors.Is(err, farm.ErrJournal), errors.Is(err, farm.ErrHalted):
		return http.StatusServiceUnavailable
	case errors.Is(err, farm.ErrInvalidRange),
		errors.Is(err, farm.ErrNonAdjacent),
		errors.Is(err, farm.ErrZeroTotalWeight),
		errors.Is(err, farm.ErrDuplicatePool),
		errors.Is(err, farm.ErrInvalidFee),
		errors.Is(err, farm.ErrInvalidAmount),
		errors.Is(err, farm.ErrInvalidInput):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, code, "internal error")
		return
	}
	writeError(w, code, err.Error())
}

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func caller(r *http.Request) (domain.Account, error) {
	c := r.Header.Get(CallerHeader)
	if c == "" {
		return "", badRequest("missing %s header", CallerHeader)
	}
	return domain.Account(c), nil
}

func intVar(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(mux.Vars(r)[name])
	if err != nil {
		return 0, badRequest("invalid %s", name)
	}
	return v, nil
}

func parseAmount(field, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, badRequest("%s must be a base-10 integer", field)
	}
	return v, nil
}

func decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest("invalid body: %v", err)
	}
	return nil
}
