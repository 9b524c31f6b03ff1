package api

import (
	"net/http"
	"net/url"

	"tokens.hh/internal/ledger"
)

func entryFilterFromQuery(q url.Values) (ledger.EntryFilter, error) {
	f := ledger.EntryFilter{
		Owner:     ledger.SubjectKind(q.Get("owner")),
		Direction: ledger.Direction(q.Get("direction")),
	}
	if v := q.Get("reason"); v != "" {
		reason, err := ledger.ParseReason(v)
		if err != nil {
			return ledger.EntryFilter{}, err
		}
		f.Reason = reason
	}

	var err error
	if f.CompanyID, err = queryUUID(q, "company_id"); err != nil {
		return ledger.EntryFilter{}, err
	}
	if f.UserID, err = queryUUID(q, "user_id"); err != nil {
		return ledger.EntryFilter{}, err
	}
	if f.TicketID, err = queryUUID(q, "ticket_id"); err != nil {
		return ledger.EntryFilter{}, err
	}
	if f.Since, err = queryTime(q, "since"); err != nil {
		return ledger.EntryFilter{}, err
	}
	if f.Until, err = queryTime(q, "until"); err != nil {
		return ledger.EntryFilter{}, err
	}
	return f, nil
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := entryFilterFromQuery(q)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if f.Limit, err = queryLimit(q, 100); err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	entries, err := s.engine.ListEntries(r.Context(), f)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	f, err := entryFilterFromQuery(r.URL.Query())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	rows, err := s.engine.Summarize(r.Context(), f)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	out := make([]summaryRowResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, summaryRowResponse{
			Owner:     row.Owner,
			OwnerID:   row.OwnerID,
			Direction: row.Direction,
			Reason:    row.Reason,
			Count:     row.Count,
			Total:     row.Total,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": out})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, err := queryUUID(q, "id")
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if id == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Field: "id", Message: "required"})
		return
	}

	var subject ledger.Subject
	switch ledger.SubjectKind(q.Get("owner")) {
	case ledger.SubjectCompany:
		subject = ledger.CompanySubject(*id)
	case ledger.SubjectDesigner:
		subject = ledger.DesignerSubject(*id)
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Field: "owner", Message: "must be company or designer"})
		return
	}

	report, err := s.engine.Audit(r.Context(), subject)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.logEvent(r.Context(), "ledger_audited", map[string]any{
		"subject": subject.String(),
		"ok":      report.OK(),
		"entries": report.Entries,
	})
	writeJSON(w, http.StatusOK, toAuditResponse(report))
}
