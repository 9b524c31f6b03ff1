// Package notify delivers best-effort side effects after a settlement has
// committed. Nothing here can roll back a financial transaction.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tokens.hh/internal/metrics"
)

type EventType string

const (
	EventTicketDebited       EventType = "ticket.debited"
	EventTicketCompleted     EventType = "ticket.completed"
	EventSubscriptionCredit  EventType = "subscription.credited"
	EventBalanceAdjusted     EventType = "balance.adjusted"
	EventWithdrawalRequested EventType = "withdrawal.requested"
	EventWithdrawalApproved  EventType = "withdrawal.approved"
	EventWithdrawalRejected  EventType = "withdrawal.rejected"
	EventWithdrawalPaid      EventType = "withdrawal.paid"
)

type Event struct {
	ID           uuid.UUID  `json:"id"`
	Type         EventType  `json:"type"`
	CompanyID    *uuid.UUID `json:"company_id,omitempty"`
	UserID       *uuid.UUID `json:"user_id,omitempty"`
	TicketID     *uuid.UUID `json:"ticket_id,omitempty"`
	WithdrawalID *uuid.UUID `json:"withdrawal_id,omitempty"`
	EntryID      *uuid.UUID `json:"entry_id,omitempty"`
	Amount       int64      `json:"amount"`
	Balance      int64      `json:"balance"`
	OccurredAt   time.Time  `json:"occurred_at"`
}

// Notifier sends one event to its destination.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }

// LogNotifier writes events to a structured logger. Useful when no queue is
// configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, e Event) error {
	n.Logger.InfoContext(ctx, "notification",
		slog.String("type", string(e.Type)),
		slog.String("event_id", e.ID.String()),
		slog.Int64("amount", e.Amount),
		slog.Int64("balance", e.Balance),
	)
	return nil
}

// Dispatcher queues events and delivers them from a single worker. Publish
// never blocks; a full queue drops the event.
type Dispatcher struct {
	notifier Notifier
	logger   *slog.Logger
	timeout  time.Duration
	queue    chan Event

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(n Notifier, logger *slog.Logger, buffer int) *Dispatcher {
	if n == nil {
		n = Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = 256
	}
	d := &Dispatcher{
		notifier: n,
		logger:   logger,
		timeout:  5 * time.Second,
		queue:    make(chan Event, buffer),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) Publish(e Event) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		metrics.NotificationsDropped.Inc()
		return
	}
	select {
	case d.queue <- e:
	default:
		metrics.NotificationsDropped.Inc()
		d.logger.Warn("notification queue full, dropping event",
			slog.String("type", string(e.Type)),
			slog.String("event_id", e.ID.String()),
		)
	}
}

// Close stops accepting events and waits for queued ones to be delivered
// or for ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for e := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.notifier.Notify(ctx, e); err != nil {
			metrics.NotificationsDropped.Inc()
			d.logger.Error("notification failed",
				slog.String("type", string(e.Type)),
				slog.String("event_id", e.ID.String()),
				slog.Any("error", err),
			)
		}
		cancel()
	}
}
