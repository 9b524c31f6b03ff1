package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tokens.hh/internal/ledger"
)

type pgTx struct {
	tx pgx.Tx
}

var _ ledger.Tx = (*pgTx)(nil)

func (t *pgTx) InsertPlan(ctx context.Context, p ledger.Plan) (ledger.Plan, error) {
	created, err := scanPlan(t.tx.QueryRow(ctx, `
        INSERT INTO plans (id, name, monthly_tokens)
        VALUES ($1, $2, $3)
        RETURNING `+planColumns,
		p.ID, p.Name, p.MonthlyTokens,
	))
	return created, rowError(err, ledger.ErrNotFound)
}

func (t *pgTx) GetPlan(ctx context.Context, id uuid.UUID) (ledger.Plan, error) {
	p, err := scanPlan(t.tx.QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id))
	return p, rowError(err, ledger.ErrNotFound)
}

func (t *pgTx) InsertCompany(ctx context.Context, c ledger.Company) (ledger.Company, error) {
	created, err := scanCompany(t.tx.QueryRow(ctx, `
        INSERT INTO companies (id, name, plan_id)
        VALUES ($1, $2, $3)
        RETURNING `+companyColumns,
		c.ID, c.Name, nullableUUID(c.PlanID),
	))
	if isForeignKeyViolation(err) {
		return ledger.Company{}, ledger.ErrNotFound
	}
	return created, rowError(err, ledger.ErrNotFound)
}

func (t *pgTx) LockCompany(ctx context.Context, id uuid.UUID) (ledger.Company, error) {
	return getCompany(ctx, t.tx, id, true)
}

func (t *pgTx) SetCompanyBalance(ctx context.Context, id uuid.UUID, balance int64) error {
	tag, err := t.tx.Exec(ctx, "UPDATE companies SET token_balance = $1 WHERE id = $2", balance, id)
	if err != nil {
		return rowError(err, ledger.ErrSubjectNotFound)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrSubjectNotFound
	}
	return nil
}

func (t *pgTx) SetCompanyPlan(ctx context.Context, id uuid.UUID, planID uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, "UPDATE companies SET plan_id = $1 WHERE id = $2", planID, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ledger.ErrNotFound
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrSubjectNotFound
	}
	return nil
}

func (t *pgTx) InsertDesigner(ctx context.Context, d ledger.Designer) (ledger.Designer, error) {
	created, err := scanDesigner(t.tx.QueryRow(ctx, `
        INSERT INTO users (id, name)
        VALUES ($1, $2)
        RETURNING `+designerColumns,
		d.ID, d.Name,
	))
	return created, rowError(err, ledger.ErrNotFound)
}

func (t *pgTx) LockDesigner(ctx context.Context, id uuid.UUID) (ledger.Designer, error) {
	return getDesigner(ctx, t.tx, id, true)
}

func (t *pgTx) SumDesignerEntries(ctx context.Context, id uuid.UUID) (int64, error) {
	return sumDesignerEntries(ctx, t.tx, id)
}

// AppendEntry inserts one ledger row. The table's CHECK constraints repeat
// the arithmetic checks so a row that slipped past the engine still cannot
// be stored.
func (t *pgTx) AppendEntry(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	if err := ledger.CheckEntry(e); err != nil {
		return ledger.Entry{}, err
	}
	meta, err := ledger.EncodeMetadata(e.Metadata)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("encode metadata: %w", err)
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	created, err := scanEntry(t.tx.QueryRow(ctx, `
        INSERT INTO ledger_entries (
            id, owner, company_id, user_id, direction, amount, reason, notes,
            metadata, balance_before, balance_after, ticket_id
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, $11, $12)
        RETURNING `+entryColumns,
		e.ID,
		string(e.Subject.Owner),
		nullableUUID(e.Subject.CompanyID),
		nullableUUID(e.Subject.UserID),
		string(e.Direction),
		e.Amount,
		string(e.Reason),
		e.Notes,
		string(meta),
		e.BalanceBefore,
		e.BalanceAfter,
		nullableUUID(e.TicketID),
	))
	if err != nil {
		return ledger.Entry{}, entryError(e.Subject, err)
	}
	return created, nil
}

func (t *pgTx) LastEntry(ctx context.Context, s ledger.Subject) (ledger.Entry, bool, error) {
	column := "company_id"
	if s.Owner == ledger.SubjectDesigner {
		column = "user_id"
	}
	e, err := scanEntry(t.tx.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries
        WHERE owner = $1 AND `+column+` = $2
        ORDER BY seq DESC
        LIMIT 1`,
		string(s.Owner), s.OwnerID(),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Entry{}, false, nil
	}
	if err != nil {
		return ledger.Entry{}, false, err
	}
	return e, true, nil
}

// ListEntries reads inside the transaction, so a caller holding the
// subject's row lock sees no in-flight appends for it.
func (t *pgTx) ListEntries(ctx context.Context, f ledger.EntryFilter) ([]ledger.Entry, error) {
	return listEntries(ctx, t.tx, f)
}

func (t *pgTx) FindTicketPayout(ctx context.Context, ticketID uuid.UUID) (ledger.Entry, bool, error) {
	e, err := scanEntry(t.tx.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries
        WHERE ticket_id = $1 AND reason = $2`,
		ticketID, string(ledger.ReasonDesignerJobPayout),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Entry{}, false, nil
	}
	if err != nil {
		return ledger.Entry{}, false, err
	}
	return e, true, nil
}

func (t *pgTx) InsertTicket(ctx context.Context, tk ledger.Ticket) (ledger.Ticket, error) {
	created, err := scanTicket(t.tx.QueryRow(ctx, `
        INSERT INTO tickets (id, company_id, designer_id, title, job_type, company_token_cost, designer_payout, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING `+ticketColumns,
		tk.ID,
		tk.CompanyID,
		nullableUUID(tk.DesignerID),
		tk.Title,
		tk.JobType,
		tk.CompanyTokenCost,
		tk.DesignerPayout,
		string(tk.Status),
	))
	return created, rowError(err, ledger.ErrNotFound)
}

func (t *pgTx) LockTicket(ctx context.Context, id uuid.UUID) (ledger.Ticket, error) {
	return getTicket(ctx, t.tx, id, true)
}

// UpdateTicket refuses to set payout_applied on a row where it is already
// set, so a payout can never be recorded twice for the same ticket.
func (t *pgTx) UpdateTicket(ctx context.Context, tk ledger.Ticket) error {
	tag, err := t.tx.Exec(ctx, `
        UPDATE tickets
        SET designer_id = $2, status = $3, payout_applied = $4, completed_at = $5
        WHERE id = $1 AND NOT (payout_applied AND $4)
    `,
		tk.ID,
		nullableUUID(tk.DesignerID),
		string(tk.Status),
		tk.PayoutApplied,
		nullableTime(tk.CompletedAt),
	)
	if err != nil {
		return rowError(err, ledger.ErrNotFound)
	}
	if tag.RowsAffected() == 0 {
		return &ledger.InvariantViolationError{
			Subject: ledger.CompanySubject(tk.CompanyID),
			Detail:  "ticket " + tk.ID.String() + " payout already applied",
		}
	}
	return nil
}

func (t *pgTx) InsertWithdrawal(ctx context.Context, w ledger.Withdrawal) (ledger.Withdrawal, error) {
	meta, err := encodeJSON(w.Metadata)
	if err != nil {
		return ledger.Withdrawal{}, fmt.Errorf("encode metadata: %w", err)
	}
	created, err := scanWithdrawal(t.tx.QueryRow(ctx, `
        INSERT INTO withdrawals (id, designer_id, amount_tokens, status, notes, metadata, created_at)
        VALUES ($1, $2, $3, $4, $5, $6::jsonb, COALESCE($7, now()))
        RETURNING `+withdrawalColumns,
		w.ID,
		w.DesignerID,
		w.AmountTokens,
		string(w.Status),
		w.Notes,
		meta,
		nullableTime(timePtr(w.CreatedAt)),
	))
	return created, rowError(err, ledger.ErrNotFound)
}

func (t *pgTx) LockWithdrawal(ctx context.Context, id uuid.UUID) (ledger.Withdrawal, error) {
	return getWithdrawal(ctx, t.tx, id, true)
}

// UpdateWithdrawal concatenates the metadata patch onto the stored document,
// so keys written by earlier transitions survive.
func (t *pgTx) UpdateWithdrawal(ctx context.Context, w ledger.Withdrawal) error {
	meta, err := encodeJSON(w.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	tag, err := t.tx.Exec(ctx, `
        UPDATE withdrawals
        SET status = $2, notes = $3, metadata = metadata || $4::jsonb, approved_at = $5, paid_at = $6
        WHERE id = $1
    `,
		w.ID,
		string(w.Status),
		w.Notes,
		meta,
		nullableTime(w.ApprovedAt),
		nullableTime(w.PaidAt),
	)
	if err != nil {
		return rowError(err, ledger.ErrNotFound)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}
