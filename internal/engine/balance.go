package engine

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"tokens.hh/internal/ledger"
)

// CompanyBalance reads the cached balance on the company row.
func (e *Engine) CompanyBalance(ctx context.Context, companyID uuid.UUID) (int64, error) {
	c, err := e.store.GetCompany(ctx, companyID)
	if err != nil {
		return 0, err
	}
	return c.TokenBalance, nil
}

// DesignerBalance sums the designer's ledger entries on every call.
func (e *Engine) DesignerBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	if _, err := e.store.GetDesigner(ctx, userID); err != nil {
		return 0, err
	}
	return e.store.SumDesignerEntries(ctx, userID)
}

// lockCompanyBalance locks the company row and returns its cached balance.
func lockCompanyBalance(ctx context.Context, tx ledger.Tx, companyID uuid.UUID) (ledger.Company, error) {
	return tx.LockCompany(ctx, companyID)
}

// lockDesignerBalance locks the designer row, then derives the balance from
// the ledger. The lock serializes concurrent withdrawals and payouts for the
// same designer even though there is no balance column to lock.
func lockDesignerBalance(ctx context.Context, tx ledger.Tx, userID uuid.UUID) (int64, error) {
	if _, err := tx.LockDesigner(ctx, userID); err != nil {
		return 0, err
	}
	return tx.SumDesignerEntries(ctx, userID)
}

type NewCompany struct {
	Name   string
	PlanID *uuid.UUID
}

// CreateCompany registers a company with a zero balance. Tokens only ever
// arrive through a settlement.
func (e *Engine) CreateCompany(ctx context.Context, in NewCompany) (ledger.Company, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return ledger.Company{}, &ledger.ValidationError{Field: "name", Msg: "required"}
	}

	var created ledger.Company
	err := e.run(ctx, "create_company", func(tx ledger.Tx) error {
		if in.PlanID != nil {
			if _, err := tx.GetPlan(ctx, *in.PlanID); err != nil {
				return err
			}
		}
		c, err := tx.InsertCompany(ctx, ledger.Company{
			ID:     uuid.New(),
			Name:   name,
			PlanID: in.PlanID,
		})
		if err != nil {
			return err
		}
		created = c
		return nil
	})
	return created, err
}

func (e *Engine) CreateDesigner(ctx context.Context, name string) (ledger.Designer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ledger.Designer{}, &ledger.ValidationError{Field: "name", Msg: "required"}
	}

	var created ledger.Designer
	err := e.run(ctx, "create_designer", func(tx ledger.Tx) error {
		d, err := tx.InsertDesigner(ctx, ledger.Designer{ID: uuid.New(), Name: name})
		if err != nil {
			return err
		}
		created = d
		return nil
	})
	return created, err
}

func (e *Engine) CreatePlan(ctx context.Context, name string, monthlyTokens int64) (ledger.Plan, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ledger.Plan{}, &ledger.ValidationError{Field: "name", Msg: "required"}
	}
	if monthlyTokens <= 0 {
		return ledger.Plan{}, &ledger.ValidationError{Field: "monthly_tokens", Msg: "must be positive"}
	}

	var created ledger.Plan
	err := e.run(ctx, "create_plan", func(tx ledger.Tx) error {
		p, err := tx.InsertPlan(ctx, ledger.Plan{ID: uuid.New(), Name: name, MonthlyTokens: monthlyTokens})
		if err != nil {
			return err
		}
		created = p
		return nil
	})
	return created, err
}

func (e *Engine) GetTicket(ctx context.Context, id uuid.UUID) (ledger.Ticket, error) {
	return e.store.GetTicket(ctx, id)
}

func (e *Engine) GetCompany(ctx context.Context, id uuid.UUID) (ledger.Company, error) {
	return e.store.GetCompany(ctx, id)
}

func (e *Engine) GetDesigner(ctx context.Context, id uuid.UUID) (ledger.Designer, error) {
	return e.store.GetDesigner(ctx, id)
}
