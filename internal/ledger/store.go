package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the transactional backing store. Every settlement and every
// withdrawal transition runs inside exactly one WithTx call; if fn returns
// an error nothing it wrote is persisted.
type Store interface {
	WithTx(ctx context.Context, fn func(Tx) error) error
	Reader
}

// Tx is the set of operations available inside a transaction. Lock* reads
// hold the row until the transaction ends, which serializes concurrent
// settlements on the same subject. There is no update or delete for entries.
type Tx interface {
	InsertPlan(ctx context.Context, p Plan) (Plan, error)
	GetPlan(ctx context.Context, id uuid.UUID) (Plan, error)

	InsertCompany(ctx context.Context, c Company) (Company, error)
	LockCompany(ctx context.Context, id uuid.UUID) (Company, error)
	SetCompanyBalance(ctx context.Context, id uuid.UUID, balance int64) error
	SetCompanyPlan(ctx context.Context, id uuid.UUID, planID uuid.UUID) error

	InsertDesigner(ctx context.Context, d Designer) (Designer, error)
	LockDesigner(ctx context.Context, id uuid.UUID) (Designer, error)
	SumDesignerEntries(ctx context.Context, id uuid.UUID) (int64, error)

	AppendEntry(ctx context.Context, e Entry) (Entry, error)
	LastEntry(ctx context.Context, s Subject) (Entry, bool, error)
	FindTicketPayout(ctx context.Context, ticketID uuid.UUID) (Entry, bool, error)
	ListEntries(ctx context.Context, f EntryFilter) ([]Entry, error)

	InsertTicket(ctx context.Context, t Ticket) (Ticket, error)
	LockTicket(ctx context.Context, id uuid.UUID) (Ticket, error)
	UpdateTicket(ctx context.Context, t Ticket) error

	InsertWithdrawal(ctx context.Context, w Withdrawal) (Withdrawal, error)
	LockWithdrawal(ctx context.Context, id uuid.UUID) (Withdrawal, error)
	UpdateWithdrawal(ctx context.Context, w Withdrawal) error
}

// Reader serves read-only lookups and reporting outside settlement.
type Reader interface {
	GetCompany(ctx context.Context, id uuid.UUID) (Company, error)
	GetDesigner(ctx context.Context, id uuid.UUID) (Designer, error)
	SumDesignerEntries(ctx context.Context, id uuid.UUID) (int64, error)
	GetTicket(ctx context.Context, id uuid.UUID) (Ticket, error)
	GetWithdrawal(ctx context.Context, id uuid.UUID) (Withdrawal, error)
	ListWithdrawals(ctx context.Context, f WithdrawalFilter) ([]Withdrawal, error)
	ListEntries(ctx context.Context, f EntryFilter) ([]Entry, error)
	Summarize(ctx context.Context, f EntryFilter) ([]SummaryRow, error)
}

type EntryFilter struct {
	Owner     SubjectKind
	CompanyID *uuid.UUID
	UserID    *uuid.UUID
	Direction Direction
	Reason    Reason
	TicketID  *uuid.UUID
	Since     *time.Time
	Until     *time.Time
	Limit     int
}

// Match reports whether e passes the filter. Stores that cannot push a
// filter down to their query engine use it directly.
func (f EntryFilter) Match(e Entry) bool {
	if f.Owner != "" && e.Subject.Owner != f.Owner {
		return false
	}
	if f.CompanyID != nil && (e.Subject.CompanyID == nil || *e.Subject.CompanyID != *f.CompanyID) {
		return false
	}
	if f.UserID != nil && (e.Subject.UserID == nil || *e.Subject.UserID != *f.UserID) {
		return false
	}
	if f.Direction != "" && e.Direction != f.Direction {
		return false
	}
	if f.Reason != "" && e.Reason != f.Reason {
		return false
	}
	if f.TicketID != nil && (e.TicketID == nil || *e.TicketID != *f.TicketID) {
		return false
	}
	if f.Since != nil && e.CreatedAt.Before(*f.Since) {
		return false
	}
	if f.Until != nil && !e.CreatedAt.Before(*f.Until) {
		return false
	}
	return true
}

// OwnedBy narrows a filter to the entries that move s's balance.
func OwnedBy(s Subject) EntryFilter {
	f := EntryFilter{Owner: s.Owner}
	id := s.OwnerID()
	if s.Owner == SubjectCompany {
		f.CompanyID = &id
	} else {
		f.UserID = &id
	}
	return f
}

type SummaryRow struct {
	Owner     SubjectKind
	OwnerID   uuid.UUID
	Direction Direction
	Reason    Reason
	Count     int64
	Total     int64
}

type WithdrawalFilter struct {
	DesignerID *uuid.UUID
	Status     WithdrawalStatus
	Limit      int
}
