package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tokens.hh/internal/ledger"
)

const (
	planColumns       = `id, name, monthly_tokens`
	companyColumns    = `id, name, token_balance, plan_id, created_at`
	designerColumns   = `id, name, created_at`
	ticketColumns     = `id, company_id, designer_id, title, job_type, company_token_cost, designer_payout, status, payout_applied, created_at, completed_at`
	entryColumns      = `id, owner, company_id, user_id, direction, amount, reason, notes, metadata, balance_before, balance_after, ticket_id, created_at`
	withdrawalColumns = `id, designer_id, amount_tokens, status, notes, metadata, created_at, approved_at, paid_at`
)

func scanPlan(row pgx.Row) (ledger.Plan, error) {
	var p ledger.Plan
	err := row.Scan(&p.ID, &p.Name, &p.MonthlyTokens)
	return p, err
}

func scanCompany(row pgx.Row) (ledger.Company, error) {
	var c ledger.Company
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.TokenBalance,
		&c.PlanID,
		&c.CreatedAt,
	)
	return c, err
}

func scanDesigner(row pgx.Row) (ledger.Designer, error) {
	var d ledger.Designer
	err := row.Scan(&d.ID, &d.Name, &d.CreatedAt)
	return d, err
}

func scanTicket(row pgx.Row) (ledger.Ticket, error) {
	var (
		t      ledger.Ticket
		status string
	)
	err := row.Scan(
		&t.ID,
		&t.CompanyID,
		&t.DesignerID,
		&t.Title,
		&t.JobType,
		&t.CompanyTokenCost,
		&t.DesignerPayout,
		&status,
		&t.PayoutApplied,
		&t.CreatedAt,
		&t.CompletedAt,
	)
	t.Status = ledger.TicketStatus(status)
	return t, err
}

func scanEntry(row pgx.Row) (ledger.Entry, error) {
	var (
		e         ledger.Entry
		owner     string
		direction string
		reason    string
		metadata  []byte
	)
	err := row.Scan(
		&e.ID,
		&owner,
		&e.Subject.CompanyID,
		&e.Subject.UserID,
		&direction,
		&e.Amount,
		&reason,
		&e.Notes,
		&metadata,
		&e.BalanceBefore,
		&e.BalanceAfter,
		&e.TicketID,
		&e.CreatedAt,
	)
	if err != nil {
		return ledger.Entry{}, err
	}
	e.Subject.Owner = ledger.SubjectKind(owner)
	e.Direction = ledger.Direction(direction)
	e.Reason = ledger.Reason(reason)
	e.Metadata, err = ledger.DecodeMetadata(e.Reason, metadata)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("entry %s: %w", e.ID, err)
	}
	return e, nil
}

func scanWithdrawal(row pgx.Row) (ledger.Withdrawal, error) {
	var (
		w        ledger.Withdrawal
		status   string
		metadata []byte
	)
	err := row.Scan(
		&w.ID,
		&w.DesignerID,
		&w.AmountTokens,
		&status,
		&w.Notes,
		&metadata,
		&w.CreatedAt,
		&w.ApprovedAt,
		&w.PaidAt,
	)
	if err != nil {
		return ledger.Withdrawal{}, err
	}
	w.Status = ledger.WithdrawalStatus(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &w.Metadata); err != nil {
			return ledger.Withdrawal{}, fmt.Errorf("withdrawal %s metadata: %w", w.ID, err)
		}
	}
	return w, nil
}

func encodeJSON(v map[string]any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func nullableUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return *id
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
