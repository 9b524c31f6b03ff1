package api

import (
	"time"

	"github.com/google/uuid"

	"tokens.hh/internal/ledger"
)

type planResponse struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	MonthlyTokens int64     `json:"monthly_tokens"`
}

type companyResponse struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	TokenBalance int64      `json:"token_balance"`
	PlanID       *uuid.UUID `json:"plan_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type userResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type balanceResponse struct {
	Owner   ledger.SubjectKind `json:"owner"`
	ID      uuid.UUID          `json:"id"`
	Balance int64              `json:"balance"`
}

type entryResponse struct {
	ID            uuid.UUID          `json:"id"`
	Owner         ledger.SubjectKind `json:"owner"`
	CompanyID     *uuid.UUID         `json:"company_id,omitempty"`
	UserID        *uuid.UUID         `json:"user_id,omitempty"`
	Direction     ledger.Direction   `json:"direction"`
	Amount        int64              `json:"amount"`
	Reason        ledger.Reason      `json:"reason"`
	Notes         string             `json:"notes,omitempty"`
	Metadata      ledger.Metadata    `json:"metadata,omitempty"`
	BalanceBefore int64              `json:"balance_before"`
	BalanceAfter  int64              `json:"balance_after"`
	TicketID      *uuid.UUID         `json:"ticket_id,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

type ticketResponse struct {
	ID               uuid.UUID           `json:"id"`
	CompanyID        uuid.UUID           `json:"company_id"`
	DesignerID       *uuid.UUID          `json:"designer_id,omitempty"`
	Title            string              `json:"title"`
	JobType          string              `json:"job_type,omitempty"`
	CompanyTokenCost int64               `json:"company_token_cost"`
	DesignerPayout   int64               `json:"designer_payout"`
	Status           ledger.TicketStatus `json:"status"`
	PayoutApplied    bool                `json:"payout_applied"`
	CreatedAt        time.Time           `json:"created_at"`
	CompletedAt      *time.Time          `json:"completed_at,omitempty"`
}

type ticketDebitResponse struct {
	Ticket         ticketResponse `json:"ticket"`
	Entry          entryResponse  `json:"entry"`
	CompanyBalance int64          `json:"company_balance"`
}

type ticketCompletionResponse struct {
	Ticket           ticketResponse `json:"ticket"`
	Entry            *entryResponse `json:"entry,omitempty"`
	DesignerBalance  int64          `json:"designer_balance"`
	AlreadyCompleted bool           `json:"already_completed"`
}

type creditResponse struct {
	Entry   entryResponse `json:"entry"`
	Balance int64         `json:"balance"`
}

type withdrawalResponse struct {
	ID           uuid.UUID               `json:"id"`
	DesignerID   uuid.UUID               `json:"designer_id"`
	AmountTokens int64                   `json:"amount_tokens"`
	Status       ledger.WithdrawalStatus `json:"status"`
	Notes        string                  `json:"notes,omitempty"`
	Metadata     map[string]any          `json:"metadata,omitempty"`
	CreatedAt    time.Time               `json:"created_at"`
	ApprovedAt   *time.Time              `json:"approved_at,omitempty"`
	PaidAt       *time.Time              `json:"paid_at,omitempty"`
}

type withdrawalTransitionResponse struct {
	Withdrawal      withdrawalResponse `json:"withdrawal"`
	Entry           *entryResponse     `json:"entry,omitempty"`
	DesignerBalance *int64             `json:"designer_balance,omitempty"`
}

type summaryRowResponse struct {
	Owner     ledger.SubjectKind `json:"owner"`
	OwnerID   uuid.UUID          `json:"owner_id"`
	Direction ledger.Direction   `json:"direction"`
	Reason    ledger.Reason      `json:"reason"`
	Count     int64              `json:"count"`
	Total     int64              `json:"total"`
}

type auditResponse struct {
	Owner    ledger.SubjectKind `json:"owner"`
	ID       uuid.UUID          `json:"id"`
	Entries  int                `json:"entries"`
	Credits  int64              `json:"credits"`
	Debits   int64              `json:"debits"`
	Computed int64              `json:"computed"`
	Balance  int64              `json:"balance"`
	OK       bool               `json:"ok"`
	Breaks   []string           `json:"breaks,omitempty"`
}

func toPlanResponse(p ledger.Plan) planResponse {
	return planResponse{ID: p.ID, Name: p.Name, MonthlyTokens: p.MonthlyTokens}
}

func toCompanyResponse(c ledger.Company) companyResponse {
	return companyResponse{
		ID:           c.ID,
		Name:         c.Name,
		TokenBalance: c.TokenBalance,
		PlanID:       c.PlanID,
		CreatedAt:    c.CreatedAt,
	}
}

func toUserResponse(d ledger.Designer) userResponse {
	return userResponse{ID: d.ID, Name: d.Name, CreatedAt: d.CreatedAt}
}

func toEntryResponse(e ledger.Entry) entryResponse {
	return entryResponse{
		ID:            e.ID,
		Owner:         e.Subject.Owner,
		CompanyID:     e.Subject.CompanyID,
		UserID:        e.Subject.UserID,
		Direction:     e.Direction,
		Amount:        e.Amount,
		Reason:        e.Reason,
		Notes:         e.Notes,
		Metadata:      e.Metadata,
		BalanceBefore: e.BalanceBefore,
		BalanceAfter:  e.BalanceAfter,
		TicketID:      e.TicketID,
		CreatedAt:     e.CreatedAt,
	}
}

func toEntryResponsePtr(e *ledger.Entry) *entryResponse {
	if e == nil {
		return nil
	}
	r := toEntryResponse(*e)
	return &r
}

func toTicketResponse(t ledger.Ticket) ticketResponse {
	return ticketResponse{
		ID:               t.ID,
		CompanyID:        t.CompanyID,
		DesignerID:       t.DesignerID,
		Title:            t.Title,
		JobType:          t.JobType,
		CompanyTokenCost: t.CompanyTokenCost,
		DesignerPayout:   t.DesignerPayout,
		Status:           t.Status,
		PayoutApplied:    t.PayoutApplied,
		CreatedAt:        t.CreatedAt,
		CompletedAt:      t.CompletedAt,
	}
}

func toWithdrawalResponse(w ledger.Withdrawal) withdrawalResponse {
	return withdrawalResponse{
		ID:           w.ID,
		DesignerID:   w.DesignerID,
		AmountTokens: w.AmountTokens,
		Status:       w.Status,
		Notes:        w.Notes,
		Metadata:     w.Metadata,
		CreatedAt:    w.CreatedAt,
		ApprovedAt:   w.ApprovedAt,
		PaidAt:       w.PaidAt,
	}
}

func toAuditResponse(r ledger.AuditReport) auditResponse {
	return auditResponse{
		Owner:    r.Subject.Owner,
		ID:       r.Subject.OwnerID(),
		Entries:  r.Entries,
		Credits:  r.Credits,
		Debits:   r.Debits,
		Computed: r.Computed,
		Balance:  r.Balance,
		OK:       r.OK(),
		Breaks:   r.Breaks,
	}
}
