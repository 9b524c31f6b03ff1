package api_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
)

type ticketResponse struct {
	ID            uuid.UUID  `json:"id"`
	CompanyID     uuid.UUID  `json:"company_id"`
	DesignerID    *uuid.UUID `json:"designer_id"`
	Status        string     `json:"status"`
	PayoutApplied bool       `json:"payout_applied"`
}

type ticketDebitResponse struct {
	Ticket         ticketResponse `json:"ticket"`
	Entry          entryResponse  `json:"entry"`
	CompanyBalance int64          `json:"company_balance"`
}

type ticketCompletionResponse struct {
	Ticket           ticketResponse `json:"ticket"`
	Entry            *entryResponse `json:"entry"`
	DesignerBalance  int64          `json:"designer_balance"`
	AlreadyCompleted bool           `json:"already_completed"`
}

func seedCompany(t *testing.T, env *testEnv, tokens int64) uuid.UUID {
	t.Helper()

	var company idResponse
	env.expect(t, http.MethodPost, "/v1/companies", `{"name":"Acme"}`, http.StatusCreated, &company)
	if tokens > 0 {
		body := fmt.Sprintf(`{"company_id":%q,"monthly_tokens":%d,"first_activation":true,"provider_event_id":"evt_seed"}`, company.ID, tokens)
		env.expect(t, http.MethodPost, "/v1/subscriptions/credit", body, http.StatusCreated, nil)
	}
	return company.ID
}

func companyBalance(t *testing.T, env *testEnv, id uuid.UUID) int64 {
	t.Helper()
	var got balanceResponse
	env.expect(t, http.MethodGet, "/v1/companies/"+id.String()+"/balance", "", http.StatusOK, &got)
	return got.Balance
}

func TestCreateTicketDebitsCompany(t *testing.T) {
	env := setupTest(t)
	defer env.close()

	companyID := seedCompany(t, env, 50)

	var got ticketDebitResponse
	body := fmt.Sprintf(`{"company_id":%q,"title":"Logo","job_type":"logo","token_cost":30}`, companyID)
	env.expect(t, http.MethodPost, "/v1/tickets", body, http.StatusCreated, &got)

	if got.CompanyBalance != 20 {
		t.Fatalf("expected balance 20, got %d", got.CompanyBalance)
	}
	if got.Entry.Reason != "JOB_REQUEST_CREATED" || got.Entry.BalanceBefore != 50 || got.Entry.BalanceAfter != 20 {
		t.Fatalf("unexpected entry: %+v", got.Entry)
	}
	if got.Ticket.Status != "OPEN" || got.Ticket.CompanyID != companyID {
		t.Fatalf("unexpected ticket: %+v", got.Ticket)
	}

	var fetched ticketResponse
	env.expect(t, http.MethodGet, "/v1/tickets/"+got.Ticket.ID.String(), "", http.StatusOK, &fetched)
	if fetched.ID != got.Ticket.ID {
		t.Fatalf("unexpected ticket: %+v", fetched)
	}
}

func TestCreateTicketInsufficientBalance(t *testing.T) {
	env := setupTest(t)
	defer env.close()

	companyID := seedCompany(t, env, 20)

	var got errorResponse
	body := fmt.Sprintf(`{"company_id":%q,"title":"Brochure","token_cost":25}`, companyID)
	env.expect(t, http.MethodPost, "/v1/tickets", body, http.StatusConflict, &got)

	if got.Error != "insufficient_balance" || *got.Available != 20 || *got.Requested != 25 {
		t.Fatalf("unexpected error: %+v", got)
	}
	if balance := companyBalance(t, env, companyID); balance != 20 {
		t.Fatalf("expected balance 20, got %d", balance)
	}

	var entries struct {
		Entries []entryResponse `json:"entries"`
	}
	env.expect(t, http.MethodGet, "/v1/ledger?company_id="+companyID.String()+"&direction=DEBIT", "", http.StatusOK, &entries)
	if len(entries.Entries) != 0 {
		t.Fatalf("expected no debit entries, got %d", len(entries.Entries))
	}
}

func TestCreateTicketDuplicateID(t *testing.T) {
	env := setupTest(t)
	defer env.close()

	companyID := seedCompany(t, env, 100)
	ticketID := uuid.New()
	body := fmt.Sprintf(`{"id":%q,"company_id":%q,"title":"Logo","token_cost":10}`, ticketID, companyID)

	env.expect(t, http.MethodPost, "/v1/tickets", body, http.StatusCreated, nil)
	env.expect(t, http.MethodPost, "/v1/tickets", body, http.StatusConflict, nil)

	if balance := companyBalance(t, env, companyID); balance != 90 {
		t.Fatalf("expected a single debit, balance %d", balance)
	}
}

func TestCompleteTicketIsIdempotent(t *testing.T) {
	env := setupTest(t)
	defer env.close()

	companyID := seedCompany(t, env, 50)
	designerID := seedDesigner(t, env, 0)

	var debit ticketDebitResponse
	body := fmt.Sprintf(`{"company_id":%q,"designer_id":%q,"title":"Logo","token_cost":10,"designer_payout":4}`, companyID, designerID)
	env.expect(t, http.MethodPost, "/v1/tickets", body, http.StatusCreated, &debit)

	path := "/v1/tickets/" + debit.Ticket.ID.String() + "/complete"

	var first ticketCompletionResponse
	env.expect(t, http.MethodPost, path, "", http.StatusOK, &first)
	if first.AlreadyCompleted || first.DesignerBalance != 4 || first.Entry == nil {
		t.Fatalf("unexpected completion: %+v", first)
	}
	if first.Entry.Reason != "DESIGNER_JOB_PAYOUT" || first.Entry.Owner != "designer" {
		t.Fatalf("unexpected entry: %+v", first.Entry)
	}

	var second ticketCompletionResponse
	env.expect(t, http.MethodPost, path, `{}`, http.StatusOK, &second)
	if !second.AlreadyCompleted || second.Entry == nil || second.Entry.ID != first.Entry.ID {
		t.Fatalf("unexpected repeat completion: %+v", second)
	}

	if balance := designerBalance(t, env, designerID); balance != 4 {
		t.Fatalf("expected designer balance 4, got %d", balance)
	}
	if balance := companyBalance(t, env, companyID); balance != 40 {
		t.Fatalf("expected company balance 40, got %d", balance)
	}
}

func TestCompleteUnassignedTicket(t *testing.T) {
	env := setupTest(t)
	defer env.close()

	companyID := seedCompany(t, env, 50)
	designerID := seedDesigner(t, env, 0)

	var debit ticketDebitResponse
	body := fmt.Sprintf(`{"company_id":%q,"title":"Logo","token_cost":10,"designer_payout":6}`, companyID)
	env.expect(t, http.MethodPost, "/v1/tickets", body, http.StatusCreated, &debit)
	path := "/v1/tickets/" + debit.Ticket.ID.String() + "/complete"

	var missing errorResponse
	env.expect(t, http.MethodPost, path, "", http.StatusBadRequest, &missing)
	if missing.Field != "designer_id" {
		t.Fatalf("expected designer_id error, got %+v", missing)
	}

	var done ticketCompletionResponse
	env.expect(t, http.MethodPost, path, fmt.Sprintf(`{"designer_id":%q}`, designerID), http.StatusOK, &done)
	if done.Ticket.DesignerID == nil || *done.Ticket.DesignerID != designerID || done.DesignerBalance != 6 {
		t.Fatalf("unexpected completion: %+v", done)
	}

	env.expect(t, http.MethodPost, "/v1/tickets/"+uuid.NewString()+"/complete", "", http.StatusNotFound, nil)
}

func TestCreditSubscriptionValidation(t *testing.T) {
	env := setupTest(t)
	defer env.close()

	companyID := seedCompany(t, env, 0)

	var got errorResponse
	body := fmt.Sprintf(`{"company_id":%q,"monthly_tokens":100}`, companyID)
	env.expect(t, http.MethodPost, "/v1/subscriptions/credit", body, http.StatusBadRequest, &got)
	if got.Field != "metadata.providerEventId" {
		t.Fatalf("expected provider event error, got %+v", got)
	}

	body = fmt.Sprintf(`{"company_id":%q,"provider_event_id":"evt_2"}`, companyID)
	env.expect(t, http.MethodPost, "/v1/subscriptions/credit", body, http.StatusBadRequest, nil)

	var renewal struct {
		Entry   entryResponse `json:"entry"`
		Balance int64         `json:"balance"`
	}
	body = fmt.Sprintf(`{"company_id":%q,"monthly_tokens":100,"provider_event_id":"evt_3","provider_invoice_id":"in_3"}`, companyID)
	env.expect(t, http.MethodPost, "/v1/subscriptions/credit", body, http.StatusCreated, &renewal)
	if renewal.Entry.Reason != "SUBSCRIPTION_RENEWAL" || renewal.Balance != 100 {
		t.Fatalf("unexpected credit: %+v", renewal)
	}
}

func TestAdjustmentCannotOverdraw(t *testing.T) {
	env := setupTest(t)
	defer env.close()

	companyID := seedCompany(t, env, 10)

	body := fmt.Sprintf(`{"owner":"company","owner_id":%q,"direction":"DEBIT","amount":11,"actor_id":"admin"}`, companyID)
	env.expect(t, http.MethodPost, "/v1/adjustments", body, http.StatusConflict, nil)

	body = fmt.Sprintf(`{"owner":"company","owner_id":%q,"direction":"DEBIT","amount":10}`, companyID)
	env.expect(t, http.MethodPost, "/v1/adjustments", body, http.StatusBadRequest, nil)

	body = fmt.Sprintf(`{"owner":"team","owner_id":%q,"direction":"DEBIT","amount":10,"actor_id":"admin"}`, companyID)
	env.expect(t, http.MethodPost, "/v1/adjustments", body, http.StatusBadRequest, nil)

	body = fmt.Sprintf(`{"owner":"company","owner_id":%q,"direction":"DEBIT","amount":10,"actor_id":"admin","notes":"refund reversal"}`, companyID)
	env.expect(t, http.MethodPost, "/v1/adjustments", body, http.StatusCreated, nil)

	if balance := companyBalance(t, env, companyID); balance != 0 {
		t.Fatalf("expected balance 0, got %d", balance)
	}
}
