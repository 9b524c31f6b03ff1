package engine

import (
	"context"
	"log/slog"

	"tokens.hh/internal/ledger"
)

const maxListLimit = 1000

func (e *Engine) ListEntries(ctx context.Context, f ledger.EntryFilter) ([]ledger.Entry, error) {
	if err := validateFilter(&f); err != nil {
		return nil, err
	}
	return e.store.ListEntries(ctx, f)
}

func (e *Engine) Summarize(ctx context.Context, f ledger.EntryFilter) ([]ledger.SummaryRow, error) {
	if err := validateFilter(&f); err != nil {
		return nil, err
	}
	return e.store.Summarize(ctx, f)
}

func validateFilter(f *ledger.EntryFilter) error {
	if f.Direction != "" && !f.Direction.Valid() {
		return &ledger.ValidationError{Field: "direction", Msg: "must be CREDIT or DEBIT"}
	}
	if f.Reason != "" && !f.Reason.Valid() {
		return &ledger.ValidationError{Field: "reason", Msg: "unknown reason code " + string(f.Reason)}
	}
	if f.Owner != "" && f.Owner != ledger.SubjectCompany && f.Owner != ledger.SubjectDesigner {
		return &ledger.ValidationError{Field: "owner", Msg: "must be company or designer"}
	}
	if f.Limit < 0 || f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	return nil
}

// Audit replays a subject's full ledger and compares it to the balance the
// rest of the system would report. The balance and the entries are read in
// one transaction under the subject's row lock, so a settlement committing
// meanwhile cannot make a consistent ledger look broken. Any break is logged
// as an invariant violation.
func (e *Engine) Audit(ctx context.Context, subject ledger.Subject) (ledger.AuditReport, error) {
	if subject.Owner != ledger.SubjectCompany && subject.Owner != ledger.SubjectDesigner {
		return ledger.AuditReport{}, &ledger.ValidationError{Field: "owner", Msg: "must be company or designer"}
	}

	var report ledger.AuditReport
	err := e.store.WithTx(ctx, func(tx ledger.Tx) error {
		var balance int64
		if subject.Owner == ledger.SubjectCompany {
			c, err := lockCompanyBalance(ctx, tx, subject.OwnerID())
			if err != nil {
				return err
			}
			balance = c.TokenBalance
		} else {
			b, err := lockDesignerBalance(ctx, tx, subject.OwnerID())
			if err != nil {
				return err
			}
			balance = b
		}

		entries, err := tx.ListEntries(ctx, ledger.OwnedBy(subject))
		if err != nil {
			return err
		}
		report = ledger.VerifyChain(subject, entries, balance)
		return nil
	})
	if err != nil {
		return ledger.AuditReport{}, err
	}

	if !report.OK() {
		e.logger.ErrorContext(ctx, "ledger audit failed",
			slog.String("subject", subject.String()),
			slog.Any("breaks", report.Breaks),
		)
	}
	return report, nil
}
