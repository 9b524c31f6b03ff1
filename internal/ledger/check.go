package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// CheckEntry asserts everything an entry must satisfy before it is
// persisted. Arithmetic failures are invariant violations, not validation
// errors: the caller computed the snapshot, so a mismatch is a bug.
func CheckEntry(e Entry) error {
	if e.Amount <= 0 {
		return &ValidationError{Field: "amount", Msg: "must be positive"}
	}
	if !e.Direction.Valid() {
		return &ValidationError{Field: "direction", Msg: fmt.Sprintf("unknown direction %q", e.Direction)}
	}
	if !e.Reason.Valid() {
		return &ValidationError{Field: "reason", Msg: fmt.Sprintf("unknown reason code %q", e.Reason)}
	}
	if e.Subject.OwnerID() == uuid.Nil {
		return &ValidationError{Field: "subject", Msg: "owner id required"}
	}
	if e.Metadata != nil {
		if e.Metadata.Reason() != e.Reason {
			return &ValidationError{Field: "metadata", Msg: fmt.Sprintf("%s payload on %s entry", e.Metadata.Reason(), e.Reason)}
		}
		if err := e.Metadata.Validate(); err != nil {
			return err
		}
	}
	if want := e.Direction.Apply(e.BalanceBefore, e.Amount); e.BalanceAfter != want {
		return &InvariantViolationError{
			Subject: e.Subject,
			Detail:  fmt.Sprintf("%s %d from %d must end at %d, got %d", e.Direction, e.Amount, e.BalanceBefore, want, e.BalanceAfter),
		}
	}
	if e.BalanceAfter < 0 {
		return &InvariantViolationError{
			Subject: e.Subject,
			Detail:  fmt.Sprintf("balance would become negative (%d)", e.BalanceAfter),
		}
	}
	return nil
}

type AuditReport struct {
	Subject  Subject
	Entries  int
	Credits  int64
	Debits   int64
	Computed int64
	Balance  int64
	Breaks   []string
}

func (r AuditReport) OK() bool {
	return len(r.Breaks) == 0
}

// VerifyChain replays a subject's entries in ledger order. It reports every
// entry whose arithmetic fails, every link whose balanceBefore differs from
// the previous balanceAfter, and a final mismatch against balance.
func VerifyChain(subject Subject, entries []Entry, balance int64) AuditReport {
	report := AuditReport{Subject: subject, Entries: len(entries), Balance: balance}

	var prev int64
	for i, e := range entries {
		switch e.Direction {
		case Credit:
			report.Credits += e.Amount
		case Debit:
			report.Debits += e.Amount
		}
		if e.BalanceBefore != prev {
			report.Breaks = append(report.Breaks,
				fmt.Sprintf("entry %d (%s): balanceBefore %d, previous balanceAfter %d", i, e.ID, e.BalanceBefore, prev))
		}
		if want := e.Direction.Apply(e.BalanceBefore, e.Amount); e.BalanceAfter != want {
			report.Breaks = append(report.Breaks,
				fmt.Sprintf("entry %d (%s): balanceAfter %d, expected %d", i, e.ID, e.BalanceAfter, want))
		}
		prev = e.BalanceAfter
	}

	report.Computed = report.Credits - report.Debits
	if report.Computed != balance {
		report.Breaks = append(report.Breaks,
			fmt.Sprintf("ledger sums to %d, balance is %d", report.Computed, balance))
	}
	return report
}
