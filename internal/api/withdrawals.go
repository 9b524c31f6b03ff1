package api

import (
	"net/http"

	"github.com/google/uuid"

	"tokens.hh/internal/engine"
	"tokens.hh/internal/ledger"
)

type createWithdrawalRequest struct {
	DesignerID   uuid.UUID `json:"designer_id"`
	AmountTokens int64     `json:"amount_tokens"`
	Notes        string    `json:"notes"`
}

type transitionRequest struct {
	ActorID   string `json:"actor_id"`
	Reason    string `json:"reason"`
	Reference string `json:"reference"`
}

func (s *Server) handleCreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req createWithdrawalRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.logEvent(r.Context(), "withdrawal_create_failed", map[string]any{"reason": "invalid_request"})
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	res, err := s.engine.RequestWithdrawal(r.Context(), engine.WithdrawalRequest{
		DesignerID:   req.DesignerID,
		AmountTokens: req.AmountTokens,
		Notes:        req.Notes,
	})
	if err != nil {
		reason := s.writeEngineError(w, r, err)
		s.logEvent(r.Context(), "withdrawal_create_failed", map[string]any{
			"reason":  reason,
			"user_id": req.DesignerID,
			"amount":  req.AmountTokens,
		})
		return
	}

	s.logEvent(r.Context(), "withdrawal_created", map[string]any{
		"withdrawal_id": res.Withdrawal.ID,
		"user_id":       res.Withdrawal.DesignerID,
		"amount":        res.Withdrawal.AmountTokens,
		"status":        res.Withdrawal.Status,
	})
	writeJSON(w, http.StatusCreated, toWithdrawalResponse(res.Withdrawal))
}

func (s *Server) handleGetWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return
	}
	withdrawal, err := s.engine.GetWithdrawal(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWithdrawalResponse(withdrawal))
}

func (s *Server) handleListWithdrawals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	designerID, err := queryUUID(q, "designer_id")
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	limit, err := queryLimit(q, 100)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	list, err := s.engine.ListWithdrawals(r.Context(), ledger.WithdrawalFilter{
		DesignerID: designerID,
		Status:     ledger.WithdrawalStatus(q.Get("status")),
		Limit:      limit,
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	out := make([]withdrawalResponse, 0, len(list))
	for _, wd := range list {
		out = append(out, toWithdrawalResponse(wd))
	}
	writeJSON(w, http.StatusOK, map[string]any{"withdrawals": out})
}

func (s *Server) handleApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, ledger.WithdrawalApproved, func(id uuid.UUID, req transitionRequest) (engine.WithdrawalResult, error) {
		return s.engine.ApproveWithdrawal(r.Context(), id, req.ActorID)
	})
}

func (s *Server) handleRejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, ledger.WithdrawalRejected, func(id uuid.UUID, req transitionRequest) (engine.WithdrawalResult, error) {
		return s.engine.RejectWithdrawal(r.Context(), id, req.ActorID, req.Reason)
	})
}

func (s *Server) handlePayWithdrawal(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, ledger.WithdrawalPaid, func(id uuid.UUID, req transitionRequest) (engine.WithdrawalResult, error) {
		return s.engine.MarkWithdrawalPaid(r.Context(), id, req.ActorID, req.Reference)
	})
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request, to ledger.WithdrawalStatus, apply func(uuid.UUID, transitionRequest) (engine.WithdrawalResult, error)) {
	event := "withdrawal_" + transitionEvent(to)

	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return
	}
	var req transitionRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.logEvent(r.Context(), event+"_failed", map[string]any{"reason": "invalid_request", "withdrawal_id": id})
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.ActorID == "" {
		s.logEvent(r.Context(), event+"_failed", map[string]any{"reason": "invalid_request", "withdrawal_id": id})
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Field: "actor_id", Message: "required"})
		return
	}

	res, err := apply(id, req)
	if err != nil {
		reason := s.writeEngineError(w, r, err)
		s.logEvent(r.Context(), event+"_failed", map[string]any{
			"reason":        reason,
			"withdrawal_id": id,
			"actor_id":      req.ActorID,
		})
		return
	}

	s.logEvent(r.Context(), event, map[string]any{
		"withdrawal_id": res.Withdrawal.ID,
		"user_id":       res.Withdrawal.DesignerID,
		"status":        res.Withdrawal.Status,
		"actor_id":      req.ActorID,
	})
	out := withdrawalTransitionResponse{
		Withdrawal: toWithdrawalResponse(res.Withdrawal),
		Entry:      toEntryResponsePtr(res.Entry),
	}
	if res.Entry != nil {
		out.DesignerBalance = &res.DesignerBalance
	}
	writeJSON(w, http.StatusOK, out)
}

func transitionEvent(to ledger.WithdrawalStatus) string {
	switch to {
	case ledger.WithdrawalApproved:
		return "approved"
	case ledger.WithdrawalRejected:
		return "rejected"
	case ledger.WithdrawalPaid:
		return "paid"
	}
	return "transition"
}
