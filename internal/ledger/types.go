package ledger

import (
	"time"

	"github.com/google/uuid"
)

type Direction string

const (
	Credit Direction = "CREDIT"
	Debit  Direction = "DEBIT"
)

func (d Direction) Valid() bool {
	return d == Credit || d == Debit
}

// Apply returns the balance that results from moving amount in direction d.
func (d Direction) Apply(balance, amount int64) int64 {
	if d == Debit {
		return balance - amount
	}
	return balance + amount
}

type Reason string

const (
	ReasonJobRequestCreated         Reason = "JOB_REQUEST_CREATED"
	ReasonDesignerJobPayout         Reason = "DESIGNER_JOB_PAYOUT"
	ReasonSubscriptionInitialCredit Reason = "SUBSCRIPTION_INITIAL_CREDIT"
	ReasonSubscriptionRenewal       Reason = "SUBSCRIPTION_RENEWAL"
	ReasonWithdraw                  Reason = "WITHDRAW"
	ReasonWithdrawalPaid            Reason = "WITHDRAWAL_PAID"
	ReasonAdminAdjustment           Reason = "ADMIN_ADJUSTMENT"
)

var reasons = map[Reason]struct{}{
	ReasonJobRequestCreated:         {},
	ReasonDesignerJobPayout:         {},
	ReasonSubscriptionInitialCredit: {},
	ReasonSubscriptionRenewal:       {},
	ReasonWithdraw:                  {},
	ReasonWithdrawalPaid:            {},
	ReasonAdminAdjustment:           {},
}

func (r Reason) Valid() bool {
	_, ok := reasons[r]
	return ok
}

func ParseReason(s string) (Reason, error) {
	r := Reason(s)
	if !r.Valid() {
		return "", &ValidationError{Field: "reason", Msg: "unknown reason code " + s}
	}
	return r, nil
}

type SubjectKind string

const (
	SubjectCompany  SubjectKind = "company"
	SubjectDesigner SubjectKind = "designer"
)

// Subject names the balance owner of an entry. The other id may be stamped
// for cross reference without owning the movement.
type Subject struct {
	Owner     SubjectKind
	CompanyID *uuid.UUID
	UserID    *uuid.UUID
}

func CompanySubject(companyID uuid.UUID) Subject {
	return Subject{Owner: SubjectCompany, CompanyID: &companyID}
}

func DesignerSubject(userID uuid.UUID) Subject {
	return Subject{Owner: SubjectDesigner, UserID: &userID}
}

// WithCompany stamps a company for cross reference on a designer subject.
func (s Subject) WithCompany(companyID uuid.UUID) Subject {
	s.CompanyID = &companyID
	return s
}

// WithUser stamps a designer for cross reference on a company subject.
func (s Subject) WithUser(userID uuid.UUID) Subject {
	s.UserID = &userID
	return s
}

// OwnerID returns the id of the balance owner, or uuid.Nil if the subject
// is malformed.
func (s Subject) OwnerID() uuid.UUID {
	switch s.Owner {
	case SubjectCompany:
		if s.CompanyID != nil {
			return *s.CompanyID
		}
	case SubjectDesigner:
		if s.UserID != nil {
			return *s.UserID
		}
	}
	return uuid.Nil
}

func (s Subject) String() string {
	return string(s.Owner) + ":" + s.OwnerID().String()
}

// Entry is one immutable, signed token movement.
type Entry struct {
	ID            uuid.UUID
	Subject       Subject
	Direction     Direction
	Amount        int64
	Reason        Reason
	Notes         string
	Metadata      Metadata
	BalanceBefore int64
	BalanceAfter  int64
	TicketID      *uuid.UUID
	CreatedAt     time.Time
}

// Signed returns the amount with the direction applied.
func (e Entry) Signed() int64 {
	if e.Direction == Debit {
		return -e.Amount
	}
	return e.Amount
}

type Company struct {
	ID           uuid.UUID
	Name         string
	TokenBalance int64
	PlanID       *uuid.UUID
	CreatedAt    time.Time
}

type Plan struct {
	ID            uuid.UUID
	Name          string
	MonthlyTokens int64
}

type Designer struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

type TicketStatus string

const (
	TicketOpen      TicketStatus = "OPEN"
	TicketCompleted TicketStatus = "COMPLETED"
)

type Ticket struct {
	ID               uuid.UUID
	CompanyID        uuid.UUID
	DesignerID       *uuid.UUID
	Title            string
	JobType          string
	CompanyTokenCost int64
	DesignerPayout   int64
	Status           TicketStatus
	PayoutApplied    bool
	CreatedAt        time.Time
	CompletedAt      *time.Time
}

type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "PENDING"
	WithdrawalApproved WithdrawalStatus = "APPROVED"
	WithdrawalRejected WithdrawalStatus = "REJECTED"
	WithdrawalPaid     WithdrawalStatus = "PAID"
)

func (s WithdrawalStatus) Valid() bool {
	switch s {
	case WithdrawalPending, WithdrawalApproved, WithdrawalRejected, WithdrawalPaid:
		return true
	}
	return false
}

// Terminal reports whether no further transition leaves s.
func (s WithdrawalStatus) Terminal() bool {
	return s == WithdrawalRejected || s == WithdrawalPaid
}

// Withdrawal metadata keys written by the state machine.
const (
	MetaLedgerEntryID   = "ledgerEntryId"
	MetaRejectionReason = "rejectionReason"
	MetaApprovedBy      = "approvedBy"
	MetaRejectedBy      = "rejectedBy"
	MetaPaidBy          = "paidBy"
	MetaPayoutValue     = "payoutValue"
	MetaPayoutReference = "payoutReference"
)

type Withdrawal struct {
	ID           uuid.UUID
	DesignerID   uuid.UUID
	AmountTokens int64
	Status       WithdrawalStatus
	Notes        string
	Metadata     map[string]any
	CreatedAt    time.Time
	ApprovedAt   *time.Time
	PaidAt       *time.Time
}

// MergeMetadata folds patch into the withdrawal's metadata without dropping
// keys written by earlier transitions.
func (w *Withdrawal) MergeMetadata(patch map[string]any) {
	if w.Metadata == nil {
		w.Metadata = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		w.Metadata[k] = v
	}
}
