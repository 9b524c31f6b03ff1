package api_test

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"tokens.hh/internal/api"
	"tokens.hh/internal/engine"
	"tokens.hh/internal/store/memory"
)

type testEnv struct {
	server    *httptest.Server
	client    *http.Client
	authToken string
}

func setupTest(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	eng := engine.New(memory.New(), engine.WithLogger(logger))

	authToken := "test-token"
	srv := api.NewServer(eng, authToken, logger)
	ts := httptest.NewServer(srv.Routes())

	return &testEnv{
		server:    ts,
		client:    &http.Client{Timeout: 3 * time.Second},
		authToken: authToken,
	}
}

func (e *testEnv) close() {
	e.server.Close()
}

func (e *testEnv) doRequest(t *testing.T, method, path, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.authToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

// expect performs a request, checks the status and decodes the body into out
// when out is non-nil.
func (e *testEnv) expect(t *testing.T, method, path, body string, status int, out any) {
	t.Helper()

	resp := e.doRequest(t, method, path, body)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if resp.StatusCode != status {
		t.Fatalf("%s %s: expected %d, got %d: %s", method, path, status, resp.StatusCode, raw)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("decode response: %v: %s", err, raw)
		}
	}
}

type idResponse struct {
	ID uuid.UUID `json:"id"`
}

type balanceResponse struct {
	Balance int64 `json:"balance"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Field     string `json:"field"`
	Status    string `json:"status"`
	Available *int64 `json:"available"`
	Requested *int64 `json:"requested"`
	Minimum   *int64 `json:"minimum"`
}

type entryResponse struct {
	ID            uuid.UUID `json:"id"`
	Owner         string    `json:"owner"`
	Direction     string    `json:"direction"`
	Amount        int64     `json:"amount"`
	Reason        string    `json:"reason"`
	BalanceBefore int64     `json:"balance_before"`
	BalanceAfter  int64     `json:"balance_after"`
}

type withdrawalResponse struct {
	ID           uuid.UUID      `json:"id"`
	DesignerID   uuid.UUID      `json:"designer_id"`
	AmountTokens int64          `json:"amount_tokens"`
	Status       string         `json:"status"`
	Metadata     map[string]any `json:"metadata"`
	ApprovedAt   *time.Time     `json:"approved_at"`
	PaidAt       *time.Time     `json:"paid_at"`
}

type transitionResponse struct {
	Withdrawal      withdrawalResponse `json:"withdrawal"`
	Entry           *entryResponse     `json:"entry"`
	DesignerBalance *int64             `json:"designer_balance"`
}

func seedDesigner(t *testing.T, env *testEnv, tokens int64) uuid.UUID {
	t.Helper()

	var user idResponse
	env.expect(t, http.MethodPost, "/v1/users", `{"name":"Dana"}`, http.StatusCreated, &user)
	if tokens > 0 {
		body := fmt.Sprintf(`{"owner":"designer","owner_id":%q,"direction":"CREDIT","amount":%d,"actor_id":"admin"}`, user.ID, tokens)
		env.expect(t, http.MethodPost, "/v1/adjustments", body, http.StatusCreated, nil)
	}
	return user.ID
}

func designerBalance(t *testing.T, env *testEnv, id uuid.UUID) int64 {
	t.Helper()
	var got balanceResponse
	env.expect(t, http.MethodGet, "/v1/users/"+id.String()+"/balance", "", http.StatusOK, &got)
	return got.Balance
}

func requestWithdrawal(t *testing.T, env *testEnv, designerID uuid.UUID, amount int64) withdrawalResponse {
	t.Helper()
	var w withdrawalResponse
	body := fmt.Sprintf(`{"designer_id":%q,"amount_tokens":%d}`, designerID, amount)
	env.expect(t, http.MethodPost, "/v1/withdrawals", body, http.StatusCreated, &w)
	return w
}

func TestCreateWithdrawalSuccess(t *testing.T) {
	env := setupTest(t)
	defer env.close()

	designerID := seedDesigner(t, env, 100)
	got := requestWithdrawal(t, env, designerID, 40)

	if got.Status != "PENDING" || got.AmountTokens != 40 || got.DesignerID != designerID {
		t.Fatalf("unexpected withdrawal: %+v", got)
	}
	if got.Metadata["payoutValue"] != "40.00" {
		t.Fatalf("expected payoutValue 40.00, got %v", got.Metadata["payoutValue"])
	}
	if balance := designerBalance(t, env, designerID); balance != 100 {
		t.Fatalf("expected balance 100 while pending, got %d", balance)
	}
}

func TestCreateWithdrawalInsufficientBalance(t *testing.T) {
	env := setupTest(t)
	defer env.close()

	designerID := seedDesigner(t, env, 30)

	var got errorResponse
	body := fmt.Sprintf(`{"designer_id":%q,"amount_tokens":50}`, designerID)
	env.expect(t, http.MethodPost, "/v1/withdrawals", body, http.StatusConflict, &got)

	if got.Error != "insufficient_balance" {
		t.Fatalf("expected insufficient_balance, got %q", got.Error)
	}
	if got.Available == nil || *got.Available != 30 || got.Requested == nil || *got.Requested != 50 {
		t.Fatalf("unexpected amounts: %+v", got)
	}
}

func TestCreateWithdrawalBelowMinimum(t *testing.T) {
	env := setupTest(t)
	defer env.close()

	designerID := seedDesigner(t, env, 100)

	var got errorResponse
	body := fmt.Sprintf(`{"designer_id":%q,"amount_tokens":5}`, designerID)
	env.expect(t, http.MethodPost, "/v1/withdrawals", body, http.StatusConflict, &got)

	if got.Error != "below_minimum" || got.Minimum == nil || *got.Minimum != engine.DefaultMinWithdrawal {
		t.Fatalf("unexpected error: %+v", got)
	}
}

func TestCreateWithdrawalValidation(t *testing.T) {
	env := setupTest(t)
	defer env.close()

	designerID := seedDesigner(t, env, 100)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed", `{"designer_id":`, http.StatusBadRequest},
		{"unknown field", fmt.Sprintf(`{"designer_id":%q,"amount_tokens":30,"currency":"USD"}`, designerID), http.StatusBadRequest},
		{"trailing data", fmt.Sprintf(`{"designer_id":%q,"amount_tokens":30} {}`, designerID), http.StatusBadRequest},
		{"zero amount", fmt.Sprintf(`{"designer_id":%q,"amount_tokens":0}`, designerID), http.StatusBadRequest},
		{"unknown designer", fmt.Sprintf(`{"designer_id":%q,"amount_tokens":30}`, uuid.New()), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.expect(t, http.MethodPost, "/v1/withdrawals", tt.body, tt.status, nil)
		})
	}
}

func TestWithdrawalApproveAndPay(t *testing.T) {
	env := setupTest(t)
	defer env.close()

	designerID := seedDesigner(t, env, 100)
	w := requestWithdrawal(t, env, designerID, 40)

	var approved transitionResponse
	env.expect(t, http.MethodPost, "/v1/withdrawals/"+w.ID.String()+"/approve", `{"actor_id":"admin-1"}`, http.StatusOK, &approved)

	if approved.Withdrawal.Status != "APPROVED" || approved.Withdrawal.ApprovedAt == nil {
		t.Fatalf("unexpected withdrawal: %+v", approved.Withdrawal)
	}
	if approved.Entry == nil || approved.Entry.Reason != "WITHDRAW" || approved.Entry.Direction != "DEBIT" {
		t.Fatalf("expected WITHDRAW debit, got %+v", approved.Entry)
	}
	if approved.DesignerBalance == nil || *approved.DesignerBalance != 60 {
		t.Fatalf("expected designer balance 60, got %v", approved.DesignerBalance)
	}

	var paid transitionResponse
	env.expect(t, http.MethodPost, "/v1/withdrawals/"+w.ID.String()+"/pay", `{"actor_id":"admin-2","reference":"wire-7"}`, http.StatusOK, &paid)

	if paid.Withdrawal.Status != "PAID" || paid.Withdrawal.PaidAt == nil {
		t.Fatalf("unexpected withdrawal: %+v", paid.Withdrawal)
	}
	if paid.Entry != nil {
		t.Fatalf("paying must not write a ledger entry, got %+v", paid.Entry)
	}
	if balance := designerBalance(t, env, designerID); balance != 60 {
		t.Fatalf("expected balance 60, got %d", balance)
	}

	var fetched withdrawalResponse
	env.expect(t, http.MethodGet, "/v1/withdrawals/"+w.ID.String(), "", http.StatusOK, &fetched)
	if fetched.Metadata["payoutReference"] != "wire-7" || fetched.Metadata["approvedBy"] != "admin-1" {
		t.Fatalf("unexpected metadata: %v", fetched.Metadata)
	}
}

func TestWithdrawalInvalidTransition(t *testing.T) {
	env := setupTest(t)
	defer env.close()

	designerID := seedDesigner(t, env, 100)
	w := requestWithdrawal(t, env, designerID, 40)
	path := "/v1/withdrawals/" + w.ID.String()

	env.expect(t, http.MethodPost, path+"/approve", `{"actor_id":"admin"}`, http.StatusOK, nil)

	var got errorResponse
	env.expect(t, http.MethodPost, path+"/approve", `{"actor_id":"admin"}`, http.StatusConflict, &got)
	if got.Error != "invalid_transition" || got.Status != "APPROVED" {
		t.Fatalf("unexpected error: %+v", got)
	}

	env.expect(t, http.MethodPost, path+"/reject", `{"actor_id":"admin","reason":"late"}`, http.StatusConflict, nil)

	if balance := designerBalance(t, env, designerID); balance != 60 {
		t.Fatalf("expected a single debit, balance %d", balance)
	}
}

func TestWithdrawalReject(t *testing.T) {
	env := setupTest(t)
	defer env.close()

	designerID := seedDesigner(t, env, 100)
	w := requestWithdrawal(t, env, designerID, 40)
	path := "/v1/withdrawals/" + w.ID.String()

	var missing errorResponse
	env.expect(t, http.MethodPost, path+"/reject", `{"actor_id":"admin"}`, http.StatusBadRequest, &missing)
	if missing.Field != "reason" {
		t.Fatalf("expected reason field error, got %+v", missing)
	}

	env.expect(t, http.MethodPost, path+"/reject", `{"reason":"no bank details"}`, http.StatusBadRequest, nil)

	var rejected transitionResponse
	env.expect(t, http.MethodPost, path+"/reject", `{"actor_id":"admin","reason":"no bank details"}`, http.StatusOK, &rejected)
	if rejected.Withdrawal.Status != "REJECTED" || rejected.Withdrawal.Metadata["rejectionReason"] != "no bank details" {
		t.Fatalf("unexpected withdrawal: %+v", rejected.Withdrawal)
	}
	if rejected.DesignerBalance != nil {
		t.Fatalf("rejection must not report a balance change")
	}

	env.expect(t, http.MethodPost, path+"/pay", `{"actor_id":"admin"}`, http.StatusConflict, nil)
	if balance := designerBalance(t, env, designerID); balance != 100 {
		t.Fatalf("expected balance 100, got %d", balance)
	}
}

func TestWithdrawalNotFound(t *testing.T) {
	env := setupTest(t)
	defer env.close()

	env.expect(t, http.MethodGet, "/v1/withdrawals/"+uuid.NewString(), "", http.StatusNotFound, nil)
	env.expect(t, http.MethodPost, "/v1/withdrawals/"+uuid.NewString()+"/approve", `{"actor_id":"admin"}`, http.StatusNotFound, nil)
	env.expect(t, http.MethodGet, "/v1/withdrawals/not-a-uuid", "", http.StatusBadRequest, nil)
}

func TestListWithdrawals(t *testing.T) {
	env := setupTest(t)
	defer env.close()

	designerID := seedDesigner(t, env, 200)
	other := seedDesigner(t, env, 200)
	first := requestWithdrawal(t, env, designerID, 30)
	requestWithdrawal(t, env, designerID, 40)
	requestWithdrawal(t, env, other, 50)

	env.expect(t, http.MethodPost, "/v1/withdrawals/"+first.ID.String()+"/approve", `{"actor_id":"admin"}`, http.StatusOK, nil)

	var list struct {
		Withdrawals []withdrawalResponse `json:"withdrawals"`
	}
	env.expect(t, http.MethodGet, "/v1/withdrawals?designer_id="+designerID.String(), "", http.StatusOK, &list)
	if len(list.Withdrawals) != 2 {
		t.Fatalf("expected 2 withdrawals, got %d", len(list.Withdrawals))
	}

	env.expect(t, http.MethodGet, "/v1/withdrawals?status=PENDING", "", http.StatusOK, &list)
	if len(list.Withdrawals) != 2 {
		t.Fatalf("expected 2 pending withdrawals, got %d", len(list.Withdrawals))
	}

	env.expect(t, http.MethodGet, "/v1/withdrawals?status=PENDING&limit=1", "", http.StatusOK, &list)
	if len(list.Withdrawals) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(list.Withdrawals))
	}

	env.expect(t, http.MethodGet, "/v1/withdrawals?status=LOST", "", http.StatusBadRequest, nil)
	env.expect(t, http.MethodGet, "/v1/withdrawals?limit=0", "", http.StatusBadRequest, nil)
}
