package engine

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tokens.hh/internal/ledger"
	"tokens.hh/internal/metrics"
	"tokens.hh/internal/notify"
)

// Tokens are debited once per withdrawal, at approval. Marking a withdrawal
// paid records the external cash movement and never touches the ledger.
var transitions = map[ledger.WithdrawalStatus][]ledger.WithdrawalStatus{
	ledger.WithdrawalPending:  {ledger.WithdrawalApproved, ledger.WithdrawalRejected},
	ledger.WithdrawalApproved: {ledger.WithdrawalPaid},
}

func CanTransition(from, to ledger.WithdrawalStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type WithdrawalRequest struct {
	DesignerID   uuid.UUID
	AmountTokens int64
	Notes        string
}

type WithdrawalResult struct {
	Withdrawal      ledger.Withdrawal
	Entry           *ledger.Entry
	DesignerBalance int64
}

// RequestWithdrawal files a PENDING withdrawal. The balance check here only
// produces a friendly refusal; approval re-checks under lock.
func (e *Engine) RequestWithdrawal(ctx context.Context, in WithdrawalRequest) (WithdrawalResult, error) {
	if in.DesignerID == uuid.Nil {
		return WithdrawalResult{}, &ledger.ValidationError{Field: "designer_id", Msg: "required"}
	}
	if in.AmountTokens <= 0 {
		return WithdrawalResult{}, &ledger.ValidationError{Field: "amount_tokens", Msg: "must be positive"}
	}
	if in.AmountTokens < e.minWithdrawal {
		return WithdrawalResult{}, &ledger.BelowMinimumError{Minimum: e.minWithdrawal, Requested: in.AmountTokens}
	}

	var res WithdrawalResult
	err := e.run(ctx, "withdrawal_request", func(tx ledger.Tx) error {
		balance, err := lockDesignerBalance(ctx, tx, in.DesignerID)
		if err != nil {
			return err
		}
		if balance < in.AmountTokens {
			return &ledger.InsufficientBalanceError{
				Subject:   ledger.DesignerSubject(in.DesignerID),
				Available: balance,
				Requested: in.AmountTokens,
			}
		}

		w, err := tx.InsertWithdrawal(ctx, ledger.Withdrawal{
			ID:           uuid.New(),
			DesignerID:   in.DesignerID,
			AmountTokens: in.AmountTokens,
			Status:       ledger.WithdrawalPending,
			Notes:        strings.TrimSpace(in.Notes),
			Metadata: map[string]any{
				ledger.MetaPayoutValue: e.PayoutValue(in.AmountTokens).StringFixed(2),
			},
			CreatedAt: e.now(),
		})
		if err != nil {
			return err
		}
		res = WithdrawalResult{Withdrawal: w, DesignerBalance: balance}
		return nil
	})
	if err != nil {
		return WithdrawalResult{}, err
	}

	e.logger.InfoContext(ctx, "withdrawal requested",
		slog.String("withdrawal_id", res.Withdrawal.ID.String()),
		slog.String("designer_id", in.DesignerID.String()),
		slog.Int64("amount", in.AmountTokens),
	)
	e.events.Publish(notify.Event{
		Type:         notify.EventWithdrawalRequested,
		UserID:       &in.DesignerID,
		WithdrawalID: &res.Withdrawal.ID,
		Amount:       in.AmountTokens,
		Balance:      res.DesignerBalance,
	})
	return res, nil
}

// PayoutValue converts tokens to their cash value at the configured rate.
func (e *Engine) PayoutValue(tokens int64) decimal.Decimal {
	return decimal.NewFromInt(tokens).Mul(e.payoutRate)
}

// ApproveWithdrawal moves a PENDING withdrawal to APPROVED and debits the
// designer. The balance is re-read under the designer lock because it may
// have changed since the request was filed.
func (e *Engine) ApproveWithdrawal(ctx context.Context, id uuid.UUID, actor string) (WithdrawalResult, error) {
	actor, err := requireActor(actor)
	if err != nil {
		return WithdrawalResult{}, err
	}

	var res WithdrawalResult
	err = e.transition(ctx, id, ledger.WithdrawalApproved, func(tx ledger.Tx, w *ledger.Withdrawal) error {
		balance, err := lockDesignerBalance(ctx, tx, w.DesignerID)
		if err != nil {
			return err
		}
		subject := ledger.DesignerSubject(w.DesignerID)
		if balance < w.AmountTokens {
			return &ledger.InsufficientBalanceError{Subject: subject, Available: balance, Requested: w.AmountTokens}
		}

		entry, err := e.appendEntry(ctx, tx, ledger.Entry{
			ID:            uuid.New(),
			Subject:       subject,
			Direction:     ledger.Debit,
			Amount:        w.AmountTokens,
			Reason:        ledger.ReasonWithdraw,
			Notes:         "Withdrawal approved by " + actor,
			Metadata:      ledger.WithdrawalMetadata{WithdrawalID: w.ID, ActorID: actor},
			BalanceBefore: balance,
		})
		if err != nil {
			return err
		}

		now := e.now()
		w.ApprovedAt = &now
		w.MergeMetadata(map[string]any{
			ledger.MetaLedgerEntryID: entry.ID.String(),
			ledger.MetaApprovedBy:    actor,
		})
		res.Entry = &entry
		res.DesignerBalance = entry.BalanceAfter
		return nil
	}, &res)
	if err != nil {
		return WithdrawalResult{}, err
	}

	e.events.Publish(notify.Event{
		Type:         notify.EventWithdrawalApproved,
		UserID:       &res.Withdrawal.DesignerID,
		WithdrawalID: &res.Withdrawal.ID,
		EntryID:      &res.Entry.ID,
		Amount:       res.Withdrawal.AmountTokens,
		Balance:      res.DesignerBalance,
	})
	return res, nil
}

// RejectWithdrawal moves a PENDING withdrawal to REJECTED. No tokens move.
func (e *Engine) RejectWithdrawal(ctx context.Context, id uuid.UUID, actor, reason string) (WithdrawalResult, error) {
	actor, err := requireActor(actor)
	if err != nil {
		return WithdrawalResult{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return WithdrawalResult{}, &ledger.ValidationError{Field: "reason", Msg: "required"}
	}

	var res WithdrawalResult
	err = e.transition(ctx, id, ledger.WithdrawalRejected, func(_ ledger.Tx, w *ledger.Withdrawal) error {
		w.ApprovedAt = nil
		w.MergeMetadata(map[string]any{
			ledger.MetaRejectionReason: reason,
			ledger.MetaRejectedBy:      actor,
		})
		return nil
	}, &res)
	if err != nil {
		return WithdrawalResult{}, err
	}

	e.events.Publish(notify.Event{
		Type:         notify.EventWithdrawalRejected,
		UserID:       &res.Withdrawal.DesignerID,
		WithdrawalID: &res.Withdrawal.ID,
		Amount:       res.Withdrawal.AmountTokens,
	})
	return res, nil
}

// MarkWithdrawalPaid records that the cash left. The tokens were already
// debited at approval, so the ledger is only consulted to confirm that
// debit exists.
func (e *Engine) MarkWithdrawalPaid(ctx context.Context, id uuid.UUID, actor, reference string) (WithdrawalResult, error) {
	actor, err := requireActor(actor)
	if err != nil {
		return WithdrawalResult{}, err
	}

	var res WithdrawalResult
	err = e.transition(ctx, id, ledger.WithdrawalPaid, func(_ ledger.Tx, w *ledger.Withdrawal) error {
		if s, _ := w.Metadata[ledger.MetaLedgerEntryID].(string); s == "" {
			return &ledger.InvariantViolationError{
				Subject: ledger.DesignerSubject(w.DesignerID),
				Detail:  "approved withdrawal " + w.ID.String() + " has no debit entry",
			}
		}
		now := e.now()
		w.PaidAt = &now
		patch := map[string]any{ledger.MetaPaidBy: actor}
		if ref := strings.TrimSpace(reference); ref != "" {
			patch[ledger.MetaPayoutReference] = ref
		}
		w.MergeMetadata(patch)
		return nil
	}, &res)
	if err != nil {
		return WithdrawalResult{}, err
	}

	e.events.Publish(notify.Event{
		Type:         notify.EventWithdrawalPaid,
		UserID:       &res.Withdrawal.DesignerID,
		WithdrawalID: &res.Withdrawal.ID,
		Amount:       res.Withdrawal.AmountTokens,
	})
	return res, nil
}

// requireActor returns the trimmed admin identity recorded in notes and
// metadata for every transition.
func requireActor(actor string) (string, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return "", &ledger.ValidationError{Field: "actor_id", Msg: "required"}
	}
	return actor, nil
}

// transition locks the withdrawal, rejects illegal moves with the current
// status, lets apply mutate it and persists the result in one transaction.
func (e *Engine) transition(ctx context.Context, id uuid.UUID, to ledger.WithdrawalStatus, apply func(ledger.Tx, *ledger.Withdrawal) error, res *WithdrawalResult) error {
	if id == uuid.Nil {
		return &ledger.ValidationError{Field: "withdrawal_id", Msg: "required"}
	}

	var from ledger.WithdrawalStatus
	err := e.run(ctx, "withdrawal_"+strings.ToLower(string(to)), func(tx ledger.Tx) error {
		w, err := tx.LockWithdrawal(ctx, id)
		if err != nil {
			return err
		}
		from = w.Status
		if !CanTransition(w.Status, to) {
			return &ledger.InvalidTransitionError{WithdrawalID: w.ID, From: w.Status, To: to}
		}
		if err := apply(tx, &w); err != nil {
			return err
		}
		w.Status = to
		if err := tx.UpdateWithdrawal(ctx, w); err != nil {
			return err
		}
		res.Withdrawal = w
		return nil
	})
	if err != nil {
		return err
	}

	metrics.WithdrawalTransitions.WithLabelValues(string(from), string(to)).Inc()
	e.logger.InfoContext(ctx, "withdrawal transitioned",
		slog.String("withdrawal_id", id.String()),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
	return nil
}

func (e *Engine) GetWithdrawal(ctx context.Context, id uuid.UUID) (ledger.Withdrawal, error) {
	return e.store.GetWithdrawal(ctx, id)
}

func (e *Engine) ListWithdrawals(ctx context.Context, f ledger.WithdrawalFilter) ([]ledger.Withdrawal, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, &ledger.ValidationError{Field: "status", Msg: "unknown status " + string(f.Status)}
	}
	return e.store.ListWithdrawals(ctx, f)
}
