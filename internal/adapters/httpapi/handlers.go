package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alejandrodnm/ertvault/internal/application/positions"
	"github.com/alejandrodnm/ertvault/internal/domain"
)

const defaultEventLimit = 100

func caller(r *http.Request) string { return r.Header.Get(CallerHeader) }

// requireCaller rechaza operaciones que mueven fondos sin identidad.
func requireCaller(w http.ResponseWriter, r *http.Request) (string, bool) {
	c := caller(r)
	if c == "" {
		writeError(w, r, domain.Unauthorized("", "missing "+CallerHeader+" header"))
		return "", false
	}
	return c, true
}

// ─── Vault ───────────────────────────────────────────────────────────────────

func (s *Server) getVault(w http.ResponseWriter, r *http.Request) {
	info, err := s.ctl.VaultInfo(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	depositor := chi.URLParam(r, "depositor")
	bal, value, err := s.ctl.Balance(r.Context(), depositor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceDTO{Depositor: depositor, Shares: bal.Shares, Value: value})
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	who, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	shares, err := s.ctl.Deposit(r.Context(), who, req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"depositor": who, "shares": shares})
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	who, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req sharesRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := s.ctl.Withdraw(r.Context(), who, req.Shares)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"depositor": who, "amount": amount})
}

func (s *Server) redeem(w http.ResponseWriter, r *http.Request) {
	who, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	shares, err := s.ctl.Redeem(r.Context(), who, req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"depositor": who, "amount": req.Amount, "shares_burned": shares})
}

// ─── Execution rights ────────────────────────────────────────────────────────

func (s *Server) mintERT(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ert, err := s.ctl.MintERT(r.Context(), req.toDomain(caller(r)))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toERT(ert))
}

func (s *Server) listERTs(w http.ResponseWriter, r *http.Request) {
	status := domain.ERTStatus(r.URL.Query().Get("status"))
	erts, err := s.ctl.ListERTs(r.Context(), status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]ertDTO, 0, len(erts))
	for _, e := range erts {
		out = append(out, toERT(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getERT(w http.ResponseWriter, r *http.Request) {
	v, err := s.ctl.GetERT(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := ertViewDTO{ERT: toERT(v.ERT), Positions: toPositions(v.Positions)}
	if v.Settlement != nil {
		st := toSettlement(*v.Settlement)
		out.Settlement = &st
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) estimateSettlement(w http.ResponseWriter, r *http.Request) {
	b, err := s.ctl.EstimateSettlement(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBreakdown(b))
}

func (s *Server) estimatePnl(w http.ResponseWriter, r *http.Request) {
	pnl, err := s.ctl.EstimatePnl(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pnlDTO{
		Realized:   pnl.Realized,
		Unrealized: pnl.Unrealized,
		Total:      pnl.Total(),
		PricedAt:   pnl.PricedAt,
	})
}

func (s *Server) settle(w http.ResponseWriter, r *http.Request) {
	st, err := s.ctl.Settle(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlement(st))
}

func (s *Server) forceSettle(w http.ResponseWriter, r *http.Request) {
	st, err := s.ctl.ForceSettle(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlement(st))
}

// ─── Positions ───────────────────────────────────────────────────────────────

func (s *Server) listPositions(w http.ResponseWriter, r *http.Request) {
	v, err := s.ctl.GetERT(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPositions(v.Positions))
}

func (s *Server) openPosition(w http.ResponseWriter, r *http.Request) {
	var req openPositionRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	pos, err := s.ctl.OpenPosition(r.Context(), caller(r), positions.OpenRequest{
		ERTID:         chi.URLParam(r, "id"),
		Adapter:       req.Adapter,
		Asset:         req.Asset,
		Side:          req.Side,
		Size:          req.Size,
		EntryValueUSD: req.EntryValueUSD,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPosition(pos))
}

func (s *Server) closePosition(w http.ResponseWriter, r *http.Request) {
	pos, err := s.ctl.ClosePosition(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPosition(pos))
}

// ─── Executors ───────────────────────────────────────────────────────────────

func (s *Server) registerExecutor(w http.ResponseWriter, r *http.Request) {
	var req executorRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Executor == "" {
		req.Executor = caller(r)
	}
	rec, err := s.ctl.RegisterExecutor(r.Context(), req.Executor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExecutor(rec))
}

func (s *Server) getExecutor(w http.ResponseWriter, r *http.Request) {
	rec, err := s.ctl.Executor(r.Context(), chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExecutor(rec))
}

func (s *Server) checkExecutor(w http.ResponseWriter, r *http.Request) {
	check, err := s.ctl.CheckExecutor(r.Context(), chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

func (s *Server) requiredStake(w http.ResponseWriter, r *http.Request) {
	capital, err := queryDecimal(r, "capital")
	if err != nil {
		writeError(w, r, err)
		return
	}
	addr := chi.URLParam(r, "addr")
	stake, err := s.ctl.RequiredStake(r.Context(), addr, capital)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"executor": addr, "capital": capital, "required_stake": stake})
}

func (s *Server) whitelistExecutor(w http.ResponseWriter, r *http.Request) {
	rec, err := s.ctl.WhitelistExecutor(r.Context(), caller(r), chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExecutor(rec))
}

func (s *Server) banExecutor(w http.ResponseWriter, r *http.Request) {
	var req banRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := s.ctl.BanExecutor(r.Context(), caller(r), chi.URLParam(r, "addr"), req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExecutor(rec))
}

func (s *Server) unbanExecutor(w http.ResponseWriter, r *http.Request) {
	rec, err := s.ctl.UnbanExecutor(r.Context(), caller(r), chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExecutor(rec))
}

// ─── Risk ────────────────────────────────────────────────────────────────────

func (s *Server) getBreaker(w http.ResponseWriter, r *http.Request) {
	st, err := s.ctl.BreakerStatus(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) resetBreaker(w http.ResponseWriter, r *http.Request) {
	st, err := s.ctl.ResetBreaker(r.Context(), caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) getReserve(w http.ResponseWriter, r *http.Request) {
	st, err := s.ctl.ReserveStatus(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) fundReserve(w http.ResponseWriter, r *http.Request) {
	who, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.ctl.FundReserve(r.Context(), who, req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultEventLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	events, err := s.ctl.Events(r.Context(), r.URL.Query().Get("entity"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]eventDTO, 0, len(events))
	for _, e := range events {
		out = append(out, eventDTO{ID: e.ID, Kind: e.Kind, Entity: e.Entity, Amount: e.Amount, Detail: e.Detail, At: e.At})
	}
	writeJSON(w, http.StatusOK, out)
}
