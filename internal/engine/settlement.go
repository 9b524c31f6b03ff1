package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"tokens.hh/internal/ledger"
	"tokens.hh/internal/metrics"
	"tokens.hh/internal/notify"
)

type TicketDebit struct {
	TicketID       uuid.UUID // optional, generated when zero
	CompanyID      uuid.UUID
	DesignerID     *uuid.UUID
	Title          string
	JobType        string
	TokenCost      int64
	DesignerPayout int64
}

type TicketDebitResult struct {
	Ticket  ledger.Ticket
	Entry   ledger.Entry
	Balance int64
}

// DebitTicketCreation records a new ticket and debits its job cost from the
// company in one transaction.
func (e *Engine) DebitTicketCreation(ctx context.Context, in TicketDebit) (TicketDebitResult, error) {
	if in.CompanyID == uuid.Nil {
		return TicketDebitResult{}, &ledger.ValidationError{Field: "company_id", Msg: "required"}
	}
	if in.TokenCost <= 0 {
		return TicketDebitResult{}, &ledger.ValidationError{Field: "token_cost", Msg: "must be positive"}
	}
	if in.DesignerPayout < 0 {
		return TicketDebitResult{}, &ledger.ValidationError{Field: "designer_payout", Msg: "must not be negative"}
	}
	if in.TicketID == uuid.Nil {
		in.TicketID = uuid.New()
	}

	var res TicketDebitResult
	err := e.run(ctx, "ticket_create_debit", func(tx ledger.Tx) error {
		company, err := lockCompanyBalance(ctx, tx, in.CompanyID)
		if err != nil {
			return err
		}
		subject := ledger.CompanySubject(company.ID)
		if company.TokenBalance < in.TokenCost {
			return &ledger.InsufficientBalanceError{
				Subject:   subject,
				Available: company.TokenBalance,
				Requested: in.TokenCost,
			}
		}

		ticket, err := tx.InsertTicket(ctx, ledger.Ticket{
			ID:               in.TicketID,
			CompanyID:        company.ID,
			DesignerID:       in.DesignerID,
			Title:            strings.TrimSpace(in.Title),
			JobType:          strings.TrimSpace(in.JobType),
			CompanyTokenCost: in.TokenCost,
			DesignerPayout:   in.DesignerPayout,
			Status:           ledger.TicketOpen,
		})
		if err != nil {
			return err
		}

		if in.DesignerID != nil {
			subject = subject.WithUser(*in.DesignerID)
		}
		entry, err := e.appendEntry(ctx, tx, ledger.Entry{
			ID:            uuid.New(),
			Subject:       subject,
			Direction:     ledger.Debit,
			Amount:        in.TokenCost,
			Reason:        ledger.ReasonJobRequestCreated,
			Notes:         fmt.Sprintf("Ticket %q created", ticket.Title),
			Metadata:      ledger.JobRequestMetadata{TicketID: ticket.ID, JobType: ticket.JobType},
			BalanceBefore: company.TokenBalance,
			TicketID:      &ticket.ID,
		})
		if err != nil {
			return err
		}
		if err := tx.SetCompanyBalance(ctx, company.ID, entry.BalanceAfter); err != nil {
			return err
		}

		res = TicketDebitResult{Ticket: ticket, Entry: entry, Balance: entry.BalanceAfter}
		return nil
	})
	if err != nil {
		return TicketDebitResult{}, err
	}

	e.logger.InfoContext(ctx, "ticket debited",
		slog.String("ticket_id", res.Ticket.ID.String()),
		slog.String("company_id", in.CompanyID.String()),
		slog.Int64("cost", in.TokenCost),
		slog.Int64("balance", res.Balance),
	)
	e.events.Publish(notify.Event{
		Type:      notify.EventTicketDebited,
		CompanyID: &res.Ticket.CompanyID,
		TicketID:  &res.Ticket.ID,
		EntryID:   &res.Entry.ID,
		Amount:    res.Entry.Amount,
		Balance:   res.Balance,
	})
	return res, nil
}

type TicketCompletion struct {
	TicketID uuid.UUID
	// DesignerID assigns the ticket at completion when it was created
	// unassigned. It must match an existing assignment.
	DesignerID *uuid.UUID
}

type TicketCompletionResult struct {
	Ticket           ledger.Ticket
	Entry            *ledger.Entry
	DesignerBalance  int64
	AlreadyCompleted bool
}

// CompleteTicket credits the assigned designer with the ticket's payout and
// marks the ticket completed. The company was debited at creation and is not
// touched here. A second call for the same ticket returns the prior result
// with AlreadyCompleted set and changes nothing.
func (e *Engine) CompleteTicket(ctx context.Context, in TicketCompletion) (TicketCompletionResult, error) {
	if in.TicketID == uuid.Nil {
		return TicketCompletionResult{}, &ledger.ValidationError{Field: "ticket_id", Msg: "required"}
	}

	var res TicketCompletionResult
	err := e.run(ctx, "ticket_complete", func(tx ledger.Tx) error {
		ticket, err := tx.LockTicket(ctx, in.TicketID)
		if err != nil {
			return err
		}

		prior, found, err := tx.FindTicketPayout(ctx, ticket.ID)
		if err != nil {
			return err
		}
		if found || ticket.PayoutApplied {
			res = TicketCompletionResult{Ticket: ticket, AlreadyCompleted: true}
			owner := ticket.DesignerID
			if found {
				res.Entry = &prior
				owner = prior.Subject.UserID
			}
			if owner != nil {
				bal, err := tx.SumDesignerEntries(ctx, *owner)
				if err != nil {
					return err
				}
				res.DesignerBalance = bal
			}
			return nil
		}

		designerID := ticket.DesignerID
		if in.DesignerID != nil {
			if designerID != nil && *designerID != *in.DesignerID {
				return &ledger.ValidationError{Field: "designer_id", Msg: "ticket is assigned to another designer"}
			}
			designerID = in.DesignerID
		}
		if designerID == nil {
			return &ledger.ValidationError{Field: "designer_id", Msg: "ticket has no assigned designer"}
		}

		balance, err := lockDesignerBalance(ctx, tx, *designerID)
		if err != nil {
			return err
		}

		var entry *ledger.Entry
		if ticket.DesignerPayout > 0 {
			created, err := e.appendEntry(ctx, tx, ledger.Entry{
				ID:            uuid.New(),
				Subject:       ledger.DesignerSubject(*designerID).WithCompany(ticket.CompanyID),
				Direction:     ledger.Credit,
				Amount:        ticket.DesignerPayout,
				Reason:        ledger.ReasonDesignerJobPayout,
				Notes:         fmt.Sprintf("Payout for ticket %q", ticket.Title),
				Metadata:      ledger.PayoutMetadata{TicketID: ticket.ID, CompanyID: ticket.CompanyID},
				BalanceBefore: balance,
				TicketID:      &ticket.ID,
			})
			if err != nil {
				return err
			}
			entry = &created
			balance = created.BalanceAfter
		}

		now := e.now()
		ticket.DesignerID = designerID
		ticket.Status = ledger.TicketCompleted
		ticket.PayoutApplied = true
		ticket.CompletedAt = &now
		if err := tx.UpdateTicket(ctx, ticket); err != nil {
			return err
		}

		res = TicketCompletionResult{Ticket: ticket, Entry: entry, DesignerBalance: balance}
		return nil
	})
	if err != nil {
		return TicketCompletionResult{}, err
	}

	if res.AlreadyCompleted {
		metrics.Settlements.WithLabelValues("ticket_complete", metrics.OutcomeAlreadyProcessed).Inc()
		e.logger.InfoContext(ctx, "ticket already completed",
			slog.String("ticket_id", in.TicketID.String()),
		)
		return res, nil
	}

	e.logger.InfoContext(ctx, "ticket completed",
		slog.String("ticket_id", res.Ticket.ID.String()),
		slog.String("designer_id", res.Ticket.DesignerID.String()),
		slog.Int64("payout", res.Ticket.DesignerPayout),
	)
	ev := notify.Event{
		Type:      notify.EventTicketCompleted,
		CompanyID: &res.Ticket.CompanyID,
		UserID:    res.Ticket.DesignerID,
		TicketID:  &res.Ticket.ID,
		Amount:    res.Ticket.DesignerPayout,
		Balance:   res.DesignerBalance,
	}
	if res.Entry != nil {
		ev.EntryID = &res.Entry.ID
	}
	e.events.Publish(ev)
	return res, nil
}

type SubscriptionCredit struct {
	CompanyID uuid.UUID
	// PlanID switches the company to this plan. When MonthlyTokens is zero
	// the allowance is read from PlanID, or from the company's current plan.
	PlanID            *uuid.UUID
	MonthlyTokens     int64
	FirstActivation   bool
	ProviderEventID   string
	ProviderInvoiceID string
}

type CreditResult struct {
	Entry   ledger.Entry
	Balance int64
}

// CreditSubscription credits a company with its plan allowance. De-duplication
// of provider events is the webhook layer's job; the event id is kept in the
// entry metadata for correlation.
func (e *Engine) CreditSubscription(ctx context.Context, in SubscriptionCredit) (CreditResult, error) {
	if in.CompanyID == uuid.Nil {
		return CreditResult{}, &ledger.ValidationError{Field: "company_id", Msg: "required"}
	}
	if in.MonthlyTokens < 0 {
		return CreditResult{}, &ledger.ValidationError{Field: "monthly_tokens", Msg: "must not be negative"}
	}
	meta := ledger.SubscriptionMetadata{
		Renewal:           !in.FirstActivation,
		PlanID:            in.PlanID,
		ProviderEventID:   strings.TrimSpace(in.ProviderEventID),
		ProviderInvoiceID: strings.TrimSpace(in.ProviderInvoiceID),
	}
	if err := meta.Validate(); err != nil {
		return CreditResult{}, err
	}

	var res CreditResult
	err := e.run(ctx, "subscription_credit", func(tx ledger.Tx) error {
		company, err := lockCompanyBalance(ctx, tx, in.CompanyID)
		if err != nil {
			return err
		}

		planID := in.PlanID
		if planID == nil {
			planID = company.PlanID
		} else if company.PlanID == nil || *company.PlanID != *planID {
			if err := tx.SetCompanyPlan(ctx, company.ID, *planID); err != nil {
				return err
			}
		}

		tokens := in.MonthlyTokens
		if tokens == 0 {
			if planID == nil {
				return &ledger.ValidationError{Field: "monthly_tokens", Msg: "required when the company has no plan"}
			}
			plan, err := tx.GetPlan(ctx, *planID)
			if err != nil {
				return err
			}
			tokens = plan.MonthlyTokens
		}
		meta.PlanID = planID

		notes := "Subscription renewal"
		if in.FirstActivation {
			notes = "Subscription activated"
		}
		entry, err := e.appendEntry(ctx, tx, ledger.Entry{
			ID:            uuid.New(),
			Subject:       ledger.CompanySubject(company.ID),
			Direction:     ledger.Credit,
			Amount:        tokens,
			Reason:        meta.Reason(),
			Notes:         notes,
			Metadata:      meta,
			BalanceBefore: company.TokenBalance,
		})
		if err != nil {
			return err
		}
		if err := tx.SetCompanyBalance(ctx, company.ID, entry.BalanceAfter); err != nil {
			return err
		}

		res = CreditResult{Entry: entry, Balance: entry.BalanceAfter}
		return nil
	})
	if err != nil {
		return CreditResult{}, err
	}

	e.logger.InfoContext(ctx, "subscription credited",
		slog.String("company_id", in.CompanyID.String()),
		slog.String("reason", string(res.Entry.Reason)),
		slog.String("provider_event_id", meta.ProviderEventID),
		slog.Int64("amount", res.Entry.Amount),
		slog.Int64("balance", res.Balance),
	)
	e.events.Publish(notify.Event{
		Type:      notify.EventSubscriptionCredit,
		CompanyID: &in.CompanyID,
		EntryID:   &res.Entry.ID,
		Amount:    res.Entry.Amount,
		Balance:   res.Balance,
	})
	return res, nil
}

type Adjustment struct {
	Owner     ledger.SubjectKind
	OwnerID   uuid.UUID
	Direction ledger.Direction
	Amount    int64
	ActorID   string
	Notes     string
	Ref       string
}

// AdjustBalance lets an administrator grant or claw back tokens. It goes
// through the same ledger path as every other settlement.
func (e *Engine) AdjustBalance(ctx context.Context, in Adjustment) (CreditResult, error) {
	if in.OwnerID == uuid.Nil {
		return CreditResult{}, &ledger.ValidationError{Field: "owner_id", Msg: "required"}
	}
	if !in.Direction.Valid() {
		return CreditResult{}, &ledger.ValidationError{Field: "direction", Msg: "must be CREDIT or DEBIT"}
	}
	if in.Amount <= 0 {
		return CreditResult{}, &ledger.ValidationError{Field: "amount", Msg: "must be positive"}
	}
	meta := ledger.AdjustmentMetadata{ActorID: strings.TrimSpace(in.ActorID), Ref: in.Ref}
	if err := meta.Validate(); err != nil {
		return CreditResult{}, err
	}

	var subject ledger.Subject
	switch in.Owner {
	case ledger.SubjectCompany:
		subject = ledger.CompanySubject(in.OwnerID)
	case ledger.SubjectDesigner:
		subject = ledger.DesignerSubject(in.OwnerID)
	default:
		return CreditResult{}, &ledger.ValidationError{Field: "owner", Msg: "must be company or designer"}
	}

	var res CreditResult
	err := e.run(ctx, "admin_adjustment", func(tx ledger.Tx) error {
		var before int64
		if subject.Owner == ledger.SubjectCompany {
			company, err := lockCompanyBalance(ctx, tx, in.OwnerID)
			if err != nil {
				return err
			}
			before = company.TokenBalance
		} else {
			bal, err := lockDesignerBalance(ctx, tx, in.OwnerID)
			if err != nil {
				return err
			}
			before = bal
		}

		entry, err := e.appendEntry(ctx, tx, ledger.Entry{
			ID:            uuid.New(),
			Subject:       subject,
			Direction:     in.Direction,
			Amount:        in.Amount,
			Reason:        ledger.ReasonAdminAdjustment,
			Notes:         strings.TrimSpace(in.Notes),
			Metadata:      meta,
			BalanceBefore: before,
		})
		if err != nil {
			return err
		}
		if subject.Owner == ledger.SubjectCompany {
			if err := tx.SetCompanyBalance(ctx, in.OwnerID, entry.BalanceAfter); err != nil {
				return err
			}
		}

		res = CreditResult{Entry: entry, Balance: entry.BalanceAfter}
		return nil
	})
	if err != nil {
		return CreditResult{}, err
	}

	e.logger.InfoContext(ctx, "balance adjusted",
		slog.String("subject", subject.String()),
		slog.String("direction", string(in.Direction)),
		slog.Int64("amount", in.Amount),
		slog.String("actor", meta.ActorID),
	)
	ev := notify.Event{
		Type:    notify.EventBalanceAdjusted,
		EntryID: &res.Entry.ID,
		Amount:  res.Entry.Signed(),
		Balance: res.Balance,
	}
	if subject.Owner == ledger.SubjectCompany {
		ev.CompanyID = &in.OwnerID
	} else {
		ev.UserID = &in.OwnerID
	}
	e.events.Publish(ev)
	return res, nil
}
