package ledger

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEntry() Entry {
	ticketID := uuid.New()
	return Entry{
		ID:            uuid.New(),
		Subject:       CompanySubject(uuid.New()),
		Direction:     Debit,
		Amount:        30,
		Reason:        ReasonJobRequestCreated,
		Metadata:      JobRequestMetadata{TicketID: ticketID},
		BalanceBefore: 50,
		BalanceAfter:  20,
		TicketID:      &ticketID,
	}
}

func TestCheckEntry(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Entry)
		invariant bool
		field     string
	}{
		{name: "zero amount", mutate: func(e *Entry) { e.Amount = 0 }, field: "amount"},
		{name: "negative amount", mutate: func(e *Entry) { e.Amount = -5 }, field: "amount"},
		{name: "unknown direction", mutate: func(e *Entry) { e.Direction = "SIDEWAYS" }, field: "direction"},
		{name: "unknown reason", mutate: func(e *Entry) { e.Reason = "BONUS" }, field: "reason"},
		{name: "missing owner", mutate: func(e *Entry) { e.Subject = Subject{Owner: SubjectCompany} }, field: "subject"},
		{
			name: "metadata for another reason",
			mutate: func(e *Entry) {
				e.Metadata = AdjustmentMetadata{ActorID: "admin"}
			},
			field: "metadata",
		},
		{
			name:   "invalid metadata",
			mutate: func(e *Entry) { e.Metadata = JobRequestMetadata{} },
			field:  "metadata.ticketId",
		},
		{name: "wrong after", mutate: func(e *Entry) { e.BalanceAfter = 25 }, invariant: true},
		{
			name: "negative after",
			mutate: func(e *Entry) {
				e.BalanceBefore = 10
				e.BalanceAfter = -20
			},
			invariant: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validEntry()
			tt.mutate(&e)

			err := CheckEntry(e)
			require.Error(t, err)
			if tt.invariant {
				assert.ErrorIs(t, err, ErrInvariantViolation)
				assert.False(t, IsClientError(err))
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestCheckEntryAccepts(t *testing.T) {
	require.NoError(t, CheckEntry(validEntry()))

	e := validEntry()
	e.Metadata = nil
	require.NoError(t, CheckEntry(e))

	credit := Entry{
		Subject:       DesignerSubject(uuid.New()),
		Direction:     Credit,
		Amount:        4,
		Reason:        ReasonAdminAdjustment,
		Metadata:      AdjustmentMetadata{ActorID: "admin"},
		BalanceBefore: 0,
		BalanceAfter:  4,
	}
	require.NoError(t, CheckEntry(credit))
}

func chain(subject Subject, moves ...int64) []Entry {
	var (
		out     []Entry
		balance int64
	)
	for _, m := range moves {
		e := Entry{ID: uuid.New(), Subject: subject, Reason: ReasonAdminAdjustment, BalanceBefore: balance}
		if m < 0 {
			e.Direction, e.Amount = Debit, -m
		} else {
			e.Direction, e.Amount = Credit, m
		}
		e.BalanceAfter = e.Direction.Apply(balance, e.Amount)
		balance = e.BalanceAfter
		out = append(out, e)
	}
	return out
}

func TestVerifyChain(t *testing.T) {
	subject := DesignerSubject(uuid.New())

	t.Run("intact", func(t *testing.T) {
		entries := chain(subject, 100, -40, 15)
		report := VerifyChain(subject, entries, 75)
		assert.True(t, report.OK(), report.Breaks)
		assert.Equal(t, 3, report.Entries)
		assert.Equal(t, int64(115), report.Credits)
		assert.Equal(t, int64(40), report.Debits)
		assert.Equal(t, int64(75), report.Computed)
	})

	t.Run("empty", func(t *testing.T) {
		report := VerifyChain(subject, nil, 0)
		assert.True(t, report.OK())
	})

	t.Run("broken link", func(t *testing.T) {
		entries := chain(subject, 100, -40, 15)
		entries[2].BalanceBefore = 70
		entries[2].BalanceAfter = 85
		report := VerifyChain(subject, entries, 85)
		require.False(t, report.OK())
		assert.Contains(t, report.Breaks[0], "entry 2")
	})

	t.Run("bad arithmetic", func(t *testing.T) {
		entries := chain(subject, 100)
		entries[0].BalanceAfter = 90
		report := VerifyChain(subject, entries, 90)
		assert.False(t, report.OK())
	})

	t.Run("balance drift", func(t *testing.T) {
		entries := chain(subject, 100, -40)
		report := VerifyChain(subject, entries, 80)
		require.Len(t, report.Breaks, 1)
		assert.Contains(t, report.Breaks[0], "ledger sums to 60")
	})
}

func TestDirectionApply(t *testing.T) {
	assert.Equal(t, int64(20), Debit.Apply(50, 30))
	assert.Equal(t, int64(80), Credit.Apply(50, 30))
	assert.Equal(t, int64(-30), Entry{Direction: Debit, Amount: 30}.Signed())
}

func TestOwnedBy(t *testing.T) {
	companyID := uuid.New()
	userID := uuid.New()

	payout := Entry{Subject: DesignerSubject(userID).WithCompany(companyID)}
	debit := Entry{Subject: CompanySubject(companyID).WithUser(userID)}

	company := OwnedBy(CompanySubject(companyID))
	assert.True(t, company.Match(debit))
	assert.False(t, company.Match(payout))

	designer := OwnedBy(DesignerSubject(userID))
	assert.True(t, designer.Match(payout))
	assert.False(t, designer.Match(debit))
}
