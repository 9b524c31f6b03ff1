// Package engine implements the token settlement operations and the
// withdrawal state machine on top of a transactional ledger.Store.
//
// Every mutating call opens exactly one transaction, re-reads the balance it
// depends on under a row lock, appends ledger entries with before/after
// snapshots and updates the company balance cache in that same transaction.
// Side effects (notifications) are published only after commit.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"tokens.hh/internal/ledger"
	"tokens.hh/internal/metrics"
	"tokens.hh/internal/notify"
)

const DefaultMinWithdrawal int64 = 20

// Publisher receives post-commit events. notify.Dispatcher satisfies it.
type Publisher interface {
	Publish(e notify.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(notify.Event) {}

type Engine struct {
	store         ledger.Store
	logger        *slog.Logger
	events        Publisher
	minWithdrawal int64
	payoutRate    decimal.Decimal
	now           func() time.Time
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithPublisher(p Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.events = p
		}
	}
}

// WithMinWithdrawal sets the smallest withdrawal a designer may request.
func WithMinWithdrawal(tokens int64) Option {
	return func(e *Engine) {
		if tokens > 0 {
			e.minWithdrawal = tokens
		}
	}
}

// WithPayoutRate sets the cash value of one token, recorded on each
// withdrawal when it is requested.
func WithPayoutRate(rate decimal.Decimal) Option {
	return func(e *Engine) {
		if rate.IsPositive() {
			e.payoutRate = rate
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func New(store ledger.Store, opts ...Option) *Engine {
	e := &Engine{
		store:         store,
		logger:        slog.Default(),
		events:        nopPublisher{},
		minWithdrawal: DefaultMinWithdrawal,
		payoutRate:    decimal.NewFromInt(1),
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) MinWithdrawal() int64 {
	return e.minWithdrawal
}

func (e *Engine) PayoutRate() decimal.Decimal {
	return e.payoutRate
}

// appendTracker remembers the entries appended through it so token volume is
// counted only once the transaction has committed.
type appendTracker struct {
	ledger.Tx
	appended []ledger.Entry
}

func (t *appendTracker) AppendEntry(ctx context.Context, entry ledger.Entry) (ledger.Entry, error) {
	created, err := t.Tx.AppendEntry(ctx, entry)
	if err != nil {
		return ledger.Entry{}, err
	}
	t.appended = append(t.appended, created)
	return created, nil
}

// run executes fn in one store transaction and records its outcome. An
// invariant violation is logged at error level with the operation name and
// counted; the caller still receives it so the edge can answer generically.
func (e *Engine) run(ctx context.Context, op string, fn func(ledger.Tx) error) error {
	start := time.Now()
	var tracker *appendTracker
	err := e.store.WithTx(ctx, func(tx ledger.Tx) error {
		tracker = &appendTracker{Tx: tx}
		return fn(tracker)
	})
	metrics.SettlementDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.Settlements.WithLabelValues(op, metrics.OutcomeOK).Inc()
		if tracker != nil {
			for _, entry := range tracker.appended {
				metrics.TokensMoved.WithLabelValues(string(entry.Reason), string(entry.Direction)).Add(float64(entry.Amount))
			}
		}
	case errors.Is(err, ledger.ErrInvariantViolation):
		metrics.Settlements.WithLabelValues(op, metrics.OutcomeError).Inc()
		metrics.InvariantViolations.Inc()
		e.logger.ErrorContext(ctx, "ledger invariant violation, transaction aborted",
			slog.String("operation", op),
			slog.Any("error", err),
		)
	case ledger.IsClientError(err) || errors.Is(err, ledger.ErrSubjectNotFound) ||
		errors.Is(err, ledger.ErrNotFound) || errors.Is(err, ledger.ErrAlreadyExists):
		metrics.Settlements.WithLabelValues(op, metrics.OutcomeRejected).Inc()
	default:
		metrics.Settlements.WithLabelValues(op, metrics.OutcomeError).Inc()
		e.logger.ErrorContext(ctx, "settlement failed",
			slog.String("operation", op),
			slog.Any("error", err),
		)
	}
	return err
}

// appendEntry builds the entry for a movement from before, checks it, and
// verifies before against the subject's last snapshot so a drifted cache
// aborts the transaction instead of extending a broken chain.
func (e *Engine) appendEntry(ctx context.Context, tx ledger.Tx, entry ledger.Entry) (ledger.Entry, error) {
	if entry.Direction == ledger.Credit && entry.Amount > math.MaxInt64-entry.BalanceBefore {
		return ledger.Entry{}, &ledger.ValidationError{Field: "amount", Msg: "would overflow balance"}
	}
	entry.BalanceAfter = entry.Direction.Apply(entry.BalanceBefore, entry.Amount)
	if entry.Direction == ledger.Debit && entry.BalanceAfter < 0 {
		return ledger.Entry{}, &ledger.InsufficientBalanceError{
			Subject:   entry.Subject,
			Available: entry.BalanceBefore,
			Requested: entry.Amount,
		}
	}
	if err := ledger.CheckEntry(entry); err != nil {
		return ledger.Entry{}, err
	}

	last, ok, err := tx.LastEntry(ctx, entry.Subject)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("load last entry: %w", err)
	}
	var prev int64
	if ok {
		prev = last.BalanceAfter
	}
	if prev != entry.BalanceBefore {
		return ledger.Entry{}, &ledger.InvariantViolationError{
			Subject: entry.Subject,
			Detail:  fmt.Sprintf("balance %d does not match last ledger snapshot %d", entry.BalanceBefore, prev),
		}
	}

	return tx.AppendEntry(ctx, entry)
}
