// Package store is the Postgres implementation of ledger.Store.
package store

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tokens.hh/internal/ledger"
)

//go:embed schema.sql
var Schema string

// querier is the subset of pgx shared by the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
}

var _ ledger.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate applies the embedded schema. Every statement is idempotent, so it
// is safe to run on each start.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// WithTx runs fn in a READ COMMITTED transaction. Row locks taken with
// SELECT ... FOR UPDATE inside fn serialize writers on the same subject.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetCompany(ctx context.Context, id uuid.UUID) (ledger.Company, error) {
	return getCompany(ctx, s.pool, id, false)
}

func (s *Store) GetDesigner(ctx context.Context, id uuid.UUID) (ledger.Designer, error) {
	return getDesigner(ctx, s.pool, id, false)
}

func (s *Store) SumDesignerEntries(ctx context.Context, id uuid.UUID) (int64, error) {
	return sumDesignerEntries(ctx, s.pool, id)
}

func (s *Store) GetTicket(ctx context.Context, id uuid.UUID) (ledger.Ticket, error) {
	return getTicket(ctx, s.pool, id, false)
}

func (s *Store) GetWithdrawal(ctx context.Context, id uuid.UUID) (ledger.Withdrawal, error) {
	return getWithdrawal(ctx, s.pool, id, false)
}

func (s *Store) ListWithdrawals(ctx context.Context, f ledger.WithdrawalFilter) ([]ledger.Withdrawal, error) {
	var (
		where []string
		args  []any
	)
	if f.DesignerID != nil {
		args = append(args, *f.DesignerID)
		where = append(where, fmt.Sprintf("designer_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	q := `SELECT ` + withdrawalColumns + ` FROM withdrawals`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ledger.Withdrawal, 0)
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) ListEntries(ctx context.Context, f ledger.EntryFilter) ([]ledger.Entry, error) {
	return listEntries(ctx, s.pool, f)
}

func listEntries(ctx context.Context, q querier, f ledger.EntryFilter) ([]ledger.Entry, error) {
	where, args := entryWhere(f)
	query := `SELECT ` + entryColumns + ` FROM ledger_entries` + where + ` ORDER BY seq`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ledger.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Summarize(ctx context.Context, f ledger.EntryFilter) ([]ledger.SummaryRow, error) {
	where, args := entryWhere(f)
	q := `
        SELECT owner,
               CASE owner WHEN 'company' THEN company_id ELSE user_id END AS owner_id,
               direction, reason, COUNT(*), COALESCE(SUM(amount), 0)
        FROM ledger_entries` + where + `
        GROUP BY 1, 2, 3, 4
        ORDER BY 1, 2, 3, 4`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ledger.SummaryRow, 0)
	for rows.Next() {
		var (
			r                        ledger.SummaryRow
			owner, direction, reason string
		)
		if err := rows.Scan(&owner, &r.OwnerID, &direction, &reason, &r.Count, &r.Total); err != nil {
			return nil, err
		}
		r.Owner = ledger.SubjectKind(owner)
		r.Direction = ledger.Direction(direction)
		r.Reason = ledger.Reason(reason)
		out = append(out, r)
	}
	return out, rows.Err()
}

func entryWhere(f ledger.EntryFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Owner != "" {
		add("owner = $%d", string(f.Owner))
	}
	if f.CompanyID != nil {
		add("company_id = $%d", *f.CompanyID)
	}
	if f.UserID != nil {
		add("user_id = $%d", *f.UserID)
	}
	if f.Direction != "" {
		add("direction = $%d", string(f.Direction))
	}
	if f.Reason != "" {
		add("reason = $%d", string(f.Reason))
	}
	if f.TicketID != nil {
		add("ticket_id = $%d", *f.TicketID)
	}
	if f.Since != nil {
		add("created_at >= $%d", *f.Since)
	}
	if f.Until != nil {
		add("created_at < $%d", *f.Until)
	}
	if len(where) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

func lockClause(lock bool) string {
	if lock {
		return " FOR UPDATE"
	}
	return ""
}

func getCompany(ctx context.Context, q querier, id uuid.UUID, lock bool) (ledger.Company, error) {
	c, err := scanCompany(q.QueryRow(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE id = $1`+lockClause(lock), id))
	return c, rowError(err, ledger.ErrSubjectNotFound)
}

func getDesigner(ctx context.Context, q querier, id uuid.UUID, lock bool) (ledger.Designer, error) {
	d, err := scanDesigner(q.QueryRow(ctx,
		`SELECT `+designerColumns+` FROM users WHERE id = $1`+lockClause(lock), id))
	return d, rowError(err, ledger.ErrSubjectNotFound)
}

func getTicket(ctx context.Context, q querier, id uuid.UUID, lock bool) (ledger.Ticket, error) {
	t, err := scanTicket(q.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = $1`+lockClause(lock), id))
	return t, rowError(err, ledger.ErrNotFound)
}

func getWithdrawal(ctx context.Context, q querier, id uuid.UUID, lock bool) (ledger.Withdrawal, error) {
	w, err := scanWithdrawal(q.QueryRow(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`+lockClause(lock), id))
	return w, rowError(err, ledger.ErrNotFound)
}

func sumDesignerEntries(ctx context.Context, q querier, id uuid.UUID) (int64, error) {
	var sum int64
	err := q.QueryRow(ctx, `
        SELECT COALESCE(SUM(CASE direction WHEN 'CREDIT' THEN amount ELSE -amount END), 0)
        FROM ledger_entries
        WHERE owner = 'designer' AND user_id = $1
    `, id).Scan(&sum)
	return sum, err
}
