// Package memory provides an in-memory ledger.Store for tests and local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tokens.hh/internal/ledger"
)

// Store keeps all state in maps guarded by one mutex. WithTx holds the
// write lock for the whole callback, so transactions are fully serialized,
// and restores a snapshot if the callback fails.
type Store struct {
	mu  sync.RWMutex
	st  state
	now func() time.Time
}

type state struct {
	plans       map[uuid.UUID]ledger.Plan
	companies   map[uuid.UUID]ledger.Company
	designers   map[uuid.UUID]ledger.Designer
	tickets     map[uuid.UUID]ledger.Ticket
	withdrawals map[uuid.UUID]ledger.Withdrawal
	entries     []ledger.Entry
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		st: state{
			plans:       make(map[uuid.UUID]ledger.Plan),
			companies:   make(map[uuid.UUID]ledger.Company),
			designers:   make(map[uuid.UUID]ledger.Designer),
			tickets:     make(map[uuid.UUID]ledger.Ticket),
			withdrawals: make(map[uuid.UUID]ledger.Withdrawal),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) WithTx(ctx context.Context, fn func(ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := s.st.clone()
	if err := fn(&tx{s: s}); err != nil {
		s.st = saved
		return err
	}
	if err := ctx.Err(); err != nil {
		s.st = saved
		return err
	}
	return nil
}

func (st state) clone() state {
	out := state{
		plans:       make(map[uuid.UUID]ledger.Plan, len(st.plans)),
		companies:   make(map[uuid.UUID]ledger.Company, len(st.companies)),
		designers:   make(map[uuid.UUID]ledger.Designer, len(st.designers)),
		tickets:     make(map[uuid.UUID]ledger.Ticket, len(st.tickets)),
		withdrawals: make(map[uuid.UUID]ledger.Withdrawal, len(st.withdrawals)),
		entries:     make([]ledger.Entry, len(st.entries)),
	}
	for k, v := range st.plans {
		out.plans[k] = v
	}
	for k, v := range st.companies {
		out.companies[k] = v
	}
	for k, v := range st.designers {
		out.designers[k] = v
	}
	for k, v := range st.tickets {
		out.tickets[k] = v
	}
	for k, v := range st.withdrawals {
		out.withdrawals[k] = cloneWithdrawal(v)
	}
	copy(out.entries, st.entries)
	return out
}

func cloneWithdrawal(w ledger.Withdrawal) ledger.Withdrawal {
	if w.Metadata != nil {
		m := make(map[string]any, len(w.Metadata))
		for k, v := range w.Metadata {
			m[k] = v
		}
		w.Metadata = m
	}
	return w
}

func (s *Store) GetCompany(_ context.Context, id uuid.UUID) (ledger.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.st.companies[id]
	if !ok {
		return ledger.Company{}, ledger.ErrSubjectNotFound
	}
	return c, nil
}

func (s *Store) GetDesigner(_ context.Context, id uuid.UUID) (ledger.Designer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.st.designers[id]
	if !ok {
		return ledger.Designer{}, ledger.ErrSubjectNotFound
	}
	return d, nil
}

func (s *Store) SumDesignerEntries(_ context.Context, id uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.sumDesigner(id), nil
}

func (s *Store) GetTicket(_ context.Context, id uuid.UUID) (ledger.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.st.tickets[id]
	if !ok {
		return ledger.Ticket{}, ledger.ErrNotFound
	}
	return t, nil
}

func (s *Store) GetWithdrawal(_ context.Context, id uuid.UUID) (ledger.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.st.withdrawals[id]
	if !ok {
		return ledger.Withdrawal{}, ledger.ErrNotFound
	}
	return cloneWithdrawal(w), nil
}

func (s *Store) ListWithdrawals(_ context.Context, f ledger.WithdrawalFilter) ([]ledger.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ledger.Withdrawal, 0)
	for _, w := range s.st.withdrawals {
		if f.DesignerID != nil && w.DesignerID != *f.DesignerID {
			continue
		}
		if f.Status != "" && w.Status != f.Status {
			continue
		}
		out = append(out, cloneWithdrawal(w))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) ListEntries(_ context.Context, f ledger.EntryFilter) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listEntries(f), nil
}

func (st state) listEntries(f ledger.EntryFilter) []ledger.Entry {
	out := make([]ledger.Entry, 0)
	for _, e := range st.entries {
		if !f.Match(e) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

func (s *Store) Summarize(_ context.Context, f ledger.EntryFilter) ([]ledger.SummaryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type key struct {
		owner     ledger.SubjectKind
		id        uuid.UUID
		direction ledger.Direction
		reason    ledger.Reason
	}
	rows := make(map[key]*ledger.SummaryRow)
	var order []key
	for _, e := range s.st.entries {
		if !f.Match(e) {
			continue
		}
		k := key{e.Subject.Owner, e.Subject.OwnerID(), e.Direction, e.Reason}
		r, ok := rows[k]
		if !ok {
			r = &ledger.SummaryRow{Owner: k.owner, OwnerID: k.id, Direction: k.direction, Reason: k.reason}
			rows[k] = r
			order = append(order, k)
		}
		r.Count++
		r.Total += e.Amount
	}

	out := make([]ledger.SummaryRow, 0, len(order))
	for _, k := range order {
		out = append(out, *rows[k])
	}
	return out, nil
}

func (st state) sumDesigner(id uuid.UUID) int64 {
	var sum int64
	for _, e := range st.entries {
		if e.Subject.Owner == ledger.SubjectDesigner && e.Subject.UserID != nil && *e.Subject.UserID == id {
			sum += e.Signed()
		}
	}
	return sum
}

type tx struct {
	s *Store
}

var _ ledger.Tx = (*tx)(nil)

func (t *tx) InsertPlan(_ context.Context, p ledger.Plan) (ledger.Plan, error) {
	if _, ok := t.s.st.plans[p.ID]; ok {
		return ledger.Plan{}, ledger.ErrAlreadyExists
	}
	t.s.st.plans[p.ID] = p
	return p, nil
}

func (t *tx) GetPlan(_ context.Context, id uuid.UUID) (ledger.Plan, error) {
	p, ok := t.s.st.plans[id]
	if !ok {
		return ledger.Plan{}, ledger.ErrNotFound
	}
	return p, nil
}

func (t *tx) InsertCompany(_ context.Context, c ledger.Company) (ledger.Company, error) {
	if _, ok := t.s.st.companies[c.ID]; ok {
		return ledger.Company{}, ledger.ErrAlreadyExists
	}
	c.TokenBalance = 0
	c.CreatedAt = t.s.now()
	t.s.st.companies[c.ID] = c
	return c, nil
}

func (t *tx) LockCompany(_ context.Context, id uuid.UUID) (ledger.Company, error) {
	c, ok := t.s.st.companies[id]
	if !ok {
		return ledger.Company{}, ledger.ErrSubjectNotFound
	}
	return c, nil
}

func (t *tx) SetCompanyBalance(_ context.Context, id uuid.UUID, balance int64) error {
	c, ok := t.s.st.companies[id]
	if !ok {
		return ledger.ErrSubjectNotFound
	}
	c.TokenBalance = balance
	t.s.st.companies[id] = c
	return nil
}

func (t *tx) SetCompanyPlan(_ context.Context, id uuid.UUID, planID uuid.UUID) error {
	c, ok := t.s.st.companies[id]
	if !ok {
		return ledger.ErrSubjectNotFound
	}
	if _, ok := t.s.st.plans[planID]; !ok {
		return ledger.ErrNotFound
	}
	c.PlanID = &planID
	t.s.st.companies[id] = c
	return nil
}

func (t *tx) InsertDesigner(_ context.Context, d ledger.Designer) (ledger.Designer, error) {
	if _, ok := t.s.st.designers[d.ID]; ok {
		return ledger.Designer{}, ledger.ErrAlreadyExists
	}
	d.CreatedAt = t.s.now()
	t.s.st.designers[d.ID] = d
	return d, nil
}

func (t *tx) LockDesigner(_ context.Context, id uuid.UUID) (ledger.Designer, error) {
	d, ok := t.s.st.designers[id]
	if !ok {
		return ledger.Designer{}, ledger.ErrSubjectNotFound
	}
	return d, nil
}

func (t *tx) SumDesignerEntries(_ context.Context, id uuid.UUID) (int64, error) {
	return t.s.st.sumDesigner(id), nil
}

func (t *tx) AppendEntry(_ context.Context, e ledger.Entry) (ledger.Entry, error) {
	if err := ledger.CheckEntry(e); err != nil {
		return ledger.Entry{}, err
	}
	switch e.Subject.Owner {
	case ledger.SubjectCompany:
		if _, ok := t.s.st.companies[e.Subject.OwnerID()]; !ok {
			return ledger.Entry{}, ledger.ErrSubjectNotFound
		}
	case ledger.SubjectDesigner:
		if _, ok := t.s.st.designers[e.Subject.OwnerID()]; !ok {
			return ledger.Entry{}, ledger.ErrSubjectNotFound
		}
	}
	if e.Reason == ledger.ReasonDesignerJobPayout && e.TicketID != nil {
		if _, found, _ := t.FindTicketPayout(context.Background(), *e.TicketID); found {
			return ledger.Entry{}, &ledger.InvariantViolationError{Subject: e.Subject, Detail: "ticket payout already recorded"}
		}
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = t.s.now()
	t.s.st.entries = append(t.s.st.entries, e)
	return e, nil
}

func (t *tx) LastEntry(_ context.Context, s ledger.Subject) (ledger.Entry, bool, error) {
	owner := s.OwnerID()
	for i := len(t.s.st.entries) - 1; i >= 0; i-- {
		e := t.s.st.entries[i]
		if e.Subject.Owner == s.Owner && e.Subject.OwnerID() == owner {
			return e, true, nil
		}
	}
	return ledger.Entry{}, false, nil
}

func (t *tx) ListEntries(_ context.Context, f ledger.EntryFilter) ([]ledger.Entry, error) {
	return t.s.st.listEntries(f), nil
}

func (t *tx) FindTicketPayout(_ context.Context, ticketID uuid.UUID) (ledger.Entry, bool, error) {
	for _, e := range t.s.st.entries {
		if e.Reason == ledger.ReasonDesignerJobPayout && e.TicketID != nil && *e.TicketID == ticketID {
			return e, true, nil
		}
	}
	return ledger.Entry{}, false, nil
}

func (t *tx) InsertTicket(_ context.Context, tk ledger.Ticket) (ledger.Ticket, error) {
	if _, ok := t.s.st.tickets[tk.ID]; ok {
		return ledger.Ticket{}, ledger.ErrAlreadyExists
	}
	if _, ok := t.s.st.companies[tk.CompanyID]; !ok {
		return ledger.Ticket{}, ledger.ErrSubjectNotFound
	}
	if tk.DesignerID != nil {
		if _, ok := t.s.st.designers[*tk.DesignerID]; !ok {
			return ledger.Ticket{}, ledger.ErrSubjectNotFound
		}
	}
	tk.CreatedAt = t.s.now()
	t.s.st.tickets[tk.ID] = tk
	return tk, nil
}

func (t *tx) LockTicket(_ context.Context, id uuid.UUID) (ledger.Ticket, error) {
	tk, ok := t.s.st.tickets[id]
	if !ok {
		return ledger.Ticket{}, ledger.ErrNotFound
	}
	return tk, nil
}

func (t *tx) UpdateTicket(_ context.Context, tk ledger.Ticket) error {
	prev, ok := t.s.st.tickets[tk.ID]
	if !ok {
		return ledger.ErrNotFound
	}
	if prev.PayoutApplied && tk.PayoutApplied {
		return &ledger.InvariantViolationError{Subject: ledger.CompanySubject(tk.CompanyID), Detail: "ticket payout already applied"}
	}
	t.s.st.tickets[tk.ID] = tk
	return nil
}

func (t *tx) InsertWithdrawal(_ context.Context, w ledger.Withdrawal) (ledger.Withdrawal, error) {
	if _, ok := t.s.st.withdrawals[w.ID]; ok {
		return ledger.Withdrawal{}, ledger.ErrAlreadyExists
	}
	if _, ok := t.s.st.designers[w.DesignerID]; !ok {
		return ledger.Withdrawal{}, ledger.ErrSubjectNotFound
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = t.s.now()
	}
	t.s.st.withdrawals[w.ID] = cloneWithdrawal(w)
	return w, nil
}

func (t *tx) LockWithdrawal(_ context.Context, id uuid.UUID) (ledger.Withdrawal, error) {
	w, ok := t.s.st.withdrawals[id]
	if !ok {
		return ledger.Withdrawal{}, ledger.ErrNotFound
	}
	return cloneWithdrawal(w), nil
}

// UpdateWithdrawal merges metadata into the stored document, matching the
// jsonb concatenation the Postgres store uses.
func (t *tx) UpdateWithdrawal(_ context.Context, w ledger.Withdrawal) error {
	prev, ok := t.s.st.withdrawals[w.ID]
	if !ok {
		return ledger.ErrNotFound
	}
	merged := cloneWithdrawal(prev)
	merged.MergeMetadata(w.Metadata)
	merged.Status = w.Status
	merged.Notes = w.Notes
	merged.ApprovedAt = w.ApprovedAt
	merged.PaidAt = w.PaidAt
	t.s.st.withdrawals[w.ID] = merged
	return nil
}
