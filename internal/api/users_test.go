package api_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
)

type companyResponse struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	TokenBalance int64      `json:"token_balance"`
	PlanID       *uuid.UUID `json:"plan_id"`
}

func TestCreateUserSuccess(t *testing.T) {
	env := setupTest(t)
	defer env.close()

	var got struct {
		ID   uuid.UUID `json:"id"`
		Name string    `json:"name"`
	}
	env.expect(t, http.MethodPost, "/v1/users", `{"name":" Dana "}`, http.StatusCreated, &got)

	if got.ID == uuid.Nil || got.Name != "Dana" {
		t.Fatalf("unexpected response: %+v", got)
	}
	if balance := designerBalance(t, env, got.ID); balance != 0 {
		t.Fatalf("expected balance 0, got %d", balance)
	}
}

func TestCreateUserValidation(t *testing.T) {
	env := setupTest(t)
	defer env.close()

	var got errorResponse
	env.expect(t, http.MethodPost, "/v1/users", `{"name":""}`, http.StatusBadRequest, &got)
	if got.Error != "invalid_request" || got.Field != "name" {
		t.Fatalf("unexpected error: %+v", got)
	}

	env.expect(t, http.MethodPost, "/v1/users", `{"id":1,"balance":1000}`, http.StatusBadRequest, nil)
}

func TestUnknownUserBalance(t *testing.T) {
	env := setupTest(t)
	defer env.close()

	var got errorResponse
	env.expect(t, http.MethodGet, "/v1/users/"+uuid.NewString()+"/balance", "", http.StatusNotFound, &got)
	if got.Error != "subject_not_found" {
		t.Fatalf("expected subject_not_found, got %q", got.Error)
	}
}

func TestCreateCompanyWithPlan(t *testing.T) {
	env := setupTest(t)
	defer env.close()

	var plan idResponse
	env.expect(t, http.MethodPost, "/v1/plans", `{"name":"Pro","monthly_tokens":120}`, http.StatusCreated, &plan)

	var company companyResponse
	body := fmt.Sprintf(`{"name":"Acme","plan_id":%q}`, plan.ID)
	env.expect(t, http.MethodPost, "/v1/companies", body, http.StatusCreated, &company)
	if company.TokenBalance != 0 || company.PlanID == nil || *company.PlanID != plan.ID {
		t.Fatalf("unexpected company: %+v", company)
	}

	credit := fmt.Sprintf(`{"company_id":%q,"first_activation":true,"provider_event_id":"evt_1"}`, company.ID)
	env.expect(t, http.MethodPost, "/v1/subscriptions/credit", credit, http.StatusCreated, nil)

	var fetched companyResponse
	env.expect(t, http.MethodGet, "/v1/companies/"+company.ID.String(), "", http.StatusOK, &fetched)
	if fetched.TokenBalance != 120 {
		t.Fatalf("expected balance 120, got %d", fetched.TokenBalance)
	}

	var balance balanceResponse
	env.expect(t, http.MethodGet, "/v1/companies/"+company.ID.String()+"/balance", "", http.StatusOK, &balance)
	if balance.Balance != 120 {
		t.Fatalf("expected balance 120, got %d", balance.Balance)
	}

	unknownPlan := fmt.Sprintf(`{"name":"Acme","plan_id":%q}`, uuid.New())
	env.expect(t, http.MethodPost, "/v1/companies", unknownPlan, http.StatusNotFound, nil)
}

func TestAuthRequired(t *testing.T) {
	env := setupTest(t)
	defer env.close()

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong token", "Bearer nope"},
		{"wrong scheme", "Basic test-token"},
		{"no token", "Bearer "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, env.server.URL+"/v1/withdrawals", nil)
			if err != nil {
				t.Fatalf("new request: %v", err)
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := env.client.Do(req)
			if err != nil {
				t.Fatalf("do request: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("expected %d, got %d", http.StatusUnauthorized, resp.StatusCode)
			}
		})
	}
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	env := setupTest(t)
	defer env.close()

	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := env.client.Get(env.server.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}

func TestInvalidPathID(t *testing.T) {
	env := setupTest(t)
	defer env.close()

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/v1/withdrawals/not-found", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+env.authToken)

	resp, err := env.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var got errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest || got.Error != "invalid_id" {
		t.Fatalf("unexpected response %d %+v", resp.StatusCode, got)
	}
}

func TestUnknownRoute(t *testing.T) {
	env := setupTest(t)
	defer env.close()

	var got errorResponse
	env.expect(t, http.MethodGet, "/v1/nothing-here", "", http.StatusNotFound, &got)
	if got.Error != "not_found" {
		t.Fatalf("expected not_found, got %q", got.Error)
	}
}
