package api

import (
	"net/http"

	"github.com/google/uuid"

	"tokens.hh/internal/engine"
	"tokens.hh/internal/ledger"
)

type createPlanRequest struct {
	Name          string `json:"name"`
	MonthlyTokens int64  `json:"monthly_tokens"`
}

type createCompanyRequest struct {
	Name   string     `json:"name"`
	PlanID *uuid.UUID `json:"plan_id"`
}

type createUserRequest struct {
	Name string `json:"name"`
}

type createTicketRequest struct {
	ID             *uuid.UUID `json:"id"`
	CompanyID      uuid.UUID  `json:"company_id"`
	DesignerID     *uuid.UUID `json:"designer_id"`
	Title          string     `json:"title"`
	JobType        string     `json:"job_type"`
	TokenCost      int64      `json:"token_cost"`
	DesignerPayout int64      `json:"designer_payout"`
}

type completeTicketRequest struct {
	DesignerID *uuid.UUID `json:"designer_id"`
}

type creditSubscriptionRequest struct {
	CompanyID         uuid.UUID  `json:"company_id"`
	PlanID            *uuid.UUID `json:"plan_id"`
	MonthlyTokens     int64      `json:"monthly_tokens"`
	FirstActivation   bool       `json:"first_activation"`
	ProviderEventID   string     `json:"provider_event_id"`
	ProviderInvoiceID string     `json:"provider_invoice_id"`
}

type adjustmentRequest struct {
	Owner     ledger.SubjectKind `json:"owner"`
	OwnerID   uuid.UUID          `json:"owner_id"`
	Direction ledger.Direction   `json:"direction"`
	Amount    int64              `json:"amount"`
	ActorID   string             `json:"actor_id"`
	Notes     string             `json:"notes"`
	Ref       string             `json:"ref"`
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req createPlanRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.logEvent(r.Context(), "plan_create_failed", map[string]any{"reason": "invalid_request"})
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	plan, err := s.engine.CreatePlan(r.Context(), req.Name, req.MonthlyTokens)
	if err != nil {
		reason := s.writeEngineError(w, r, err)
		s.logEvent(r.Context(), "plan_create_failed", map[string]any{"reason": reason})
		return
	}

	s.logEvent(r.Context(), "plan_created", map[string]any{
		"plan_id":        plan.ID,
		"monthly_tokens": plan.MonthlyTokens,
	})
	writeJSON(w, http.StatusCreated, toPlanResponse(plan))
}

func (s *Server) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	var req createCompanyRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.logEvent(r.Context(), "company_create_failed", map[string]any{"reason": "invalid_request"})
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	company, err := s.engine.CreateCompany(r.Context(), engine.NewCompany{Name: req.Name, PlanID: req.PlanID})
	if err != nil {
		reason := s.writeEngineError(w, r, err)
		s.logEvent(r.Context(), "company_create_failed", map[string]any{"reason": reason})
		return
	}

	s.logEvent(r.Context(), "company_created", map[string]any{"company_id": company.ID})
	writeJSON(w, http.StatusCreated, toCompanyResponse(company))
}

func (s *Server) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return
	}
	company, err := s.engine.GetCompany(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCompanyResponse(company))
}

func (s *Server) handleCompanyBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return
	}
	balance, err := s.engine.CompanyBalance(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Owner: ledger.SubjectCompany, ID: id, Balance: balance})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.logEvent(r.Context(), "user_create_failed", map[string]any{"reason": "invalid_request"})
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	user, err := s.engine.CreateDesigner(r.Context(), req.Name)
	if err != nil {
		reason := s.writeEngineError(w, r, err)
		s.logEvent(r.Context(), "user_create_failed", map[string]any{"reason": reason})
		return
	}

	s.logEvent(r.Context(), "user_created", map[string]any{"user_id": user.ID})
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

func (s *Server) handleDesignerBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return
	}
	balance, err := s.engine.DesignerBalance(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Owner: ledger.SubjectDesigner, ID: id, Balance: balance})
}

func (s *Server) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var req createTicketRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.logEvent(r.Context(), "ticket_debit_failed", map[string]any{"reason": "invalid_request"})
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	in := engine.TicketDebit{
		CompanyID:      req.CompanyID,
		DesignerID:     req.DesignerID,
		Title:          req.Title,
		JobType:        req.JobType,
		TokenCost:      req.TokenCost,
		DesignerPayout: req.DesignerPayout,
	}
	if req.ID != nil {
		in.TicketID = *req.ID
	}

	res, err := s.engine.DebitTicketCreation(r.Context(), in)
	if err != nil {
		reason := s.writeEngineError(w, r, err)
		s.logEvent(r.Context(), "ticket_debit_failed", map[string]any{
			"reason":     reason,
			"company_id": req.CompanyID,
			"token_cost": req.TokenCost,
		})
		return
	}

	s.logEvent(r.Context(), "ticket_debited", map[string]any{
		"ticket_id":  res.Ticket.ID,
		"company_id": res.Ticket.CompanyID,
		"token_cost": res.Entry.Amount,
		"balance":    res.Balance,
	})
	writeJSON(w, http.StatusCreated, ticketDebitResponse{
		Ticket:         toTicketResponse(res.Ticket),
		Entry:          toEntryResponse(res.Entry),
		CompanyBalance: res.Balance,
	})
}

func (s *Server) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return
	}
	ticket, err := s.engine.GetTicket(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTicketResponse(ticket))
}

func (s *Server) handleCompleteTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return
	}
	var req completeTicketRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		s.logEvent(r.Context(), "ticket_complete_failed", map[string]any{"reason": "invalid_request", "ticket_id": id})
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	res, err := s.engine.CompleteTicket(r.Context(), engine.TicketCompletion{TicketID: id, DesignerID: req.DesignerID})
	if err != nil {
		reason := s.writeEngineError(w, r, err)
		s.logEvent(r.Context(), "ticket_complete_failed", map[string]any{"reason": reason, "ticket_id": id})
		return
	}

	s.logEvent(r.Context(), "ticket_completed", map[string]any{
		"ticket_id":         id,
		"payout":            res.Ticket.DesignerPayout,
		"already_completed": res.AlreadyCompleted,
	})
	writeJSON(w, http.StatusOK, ticketCompletionResponse{
		Ticket:           toTicketResponse(res.Ticket),
		Entry:            toEntryResponsePtr(res.Entry),
		DesignerBalance:  res.DesignerBalance,
		AlreadyCompleted: res.AlreadyCompleted,
	})
}

func (s *Server) handleCreditSubscription(w http.ResponseWriter, r *http.Request) {
	var req creditSubscriptionRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.logEvent(r.Context(), "subscription_credit_failed", map[string]any{"reason": "invalid_request"})
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	res, err := s.engine.CreditSubscription(r.Context(), engine.SubscriptionCredit{
		CompanyID:         req.CompanyID,
		PlanID:            req.PlanID,
		MonthlyTokens:     req.MonthlyTokens,
		FirstActivation:   req.FirstActivation,
		ProviderEventID:   req.ProviderEventID,
		ProviderInvoiceID: req.ProviderInvoiceID,
	})
	if err != nil {
		reason := s.writeEngineError(w, r, err)
		s.logEvent(r.Context(), "subscription_credit_failed", map[string]any{
			"reason":            reason,
			"company_id":        req.CompanyID,
			"provider_event_id": req.ProviderEventID,
		})
		return
	}

	s.logEvent(r.Context(), "subscription_credited", map[string]any{
		"company_id": req.CompanyID,
		"reason":     res.Entry.Reason,
		"amount":     res.Entry.Amount,
		"balance":    res.Balance,
	})
	writeJSON(w, http.StatusCreated, creditResponse{Entry: toEntryResponse(res.Entry), Balance: res.Balance})
}

func (s *Server) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.logEvent(r.Context(), "adjustment_failed", map[string]any{"reason": "invalid_request"})
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	res, err := s.engine.AdjustBalance(r.Context(), engine.Adjustment{
		Owner:     req.Owner,
		OwnerID:   req.OwnerID,
		Direction: req.Direction,
		Amount:    req.Amount,
		ActorID:   req.ActorID,
		Notes:     req.Notes,
		Ref:       req.Ref,
	})
	if err != nil {
		reason := s.writeEngineError(w, r, err)
		s.logEvent(r.Context(), "adjustment_failed", map[string]any{
			"reason":   reason,
			"owner":    req.Owner,
			"owner_id": req.OwnerID,
		})
		return
	}

	s.logEvent(r.Context(), "balance_adjusted", map[string]any{
		"owner":     req.Owner,
		"owner_id":  req.OwnerID,
		"direction": req.Direction,
		"amount":    req.Amount,
		"actor_id":  req.ActorID,
	})
	writeJSON(w, http.StatusCreated, creditResponse{Entry: toEntryResponse(res.Entry), Balance: res.Balance})
}
