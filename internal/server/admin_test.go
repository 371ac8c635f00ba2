package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"clearinghouse/internal/clearing"
	"clearinghouse/internal/observability"
	"clearinghouse/internal/server"
	"clearinghouse/internal/vault"
)

func newAdminMux(t *testing.T) (*http.ServeMux, *clearing.Engine) {
	t.Helper()

	bank := vault.NewBank()
	engine, err := clearing.New(clearing.Config{
		Params:    clearing.DefaultRiskParams(),
		Vault:     bank,
		Insurance: bank,
		FeePool:   bank,
		Logger:    observability.NewLoggerWithLevel("test", zerolog.Disabled),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	mux := http.NewServeMux()
	server.NewAdminAPI(engine).Register(mux)
	return mux, engine
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestGetParams(t *testing.T) {
	mux, _ := newAdminMux(t)

	rec := doRequest(t, mux, http.MethodGet, "/v1/params", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["init_margin_ratio"] != "0.1" {
		t.Errorf("init_margin_ratio = %q, want 0.1", body["init_margin_ratio"])
	}
	if body["maintenance_margin_ratio"] != "0.0625" {
		t.Errorf("maintenance_margin_ratio = %q, want 0.0625", body["maintenance_margin_ratio"])
	}
}

func TestPutParamsPartialUpdate(t *testing.T) {
	mux, engine := newAdminMux(t)

	rec := doRequest(t, mux, http.MethodPut, "/v1/params", `{"maintenance_margin_ratio":"0.05"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}

	p := engine.Params()
	if p.MaintenanceMarginRatio.String() != "0.05" {
		t.Errorf("maintenance ratio = %s, want 0.05", p.MaintenanceMarginRatio)
	}
	// The untouched ratios keep their values.
	if p.InitMarginRatio.String() != "0.1" {
		t.Errorf("init ratio = %s, want 0.1", p.InitMarginRatio)
	}
}

func TestPutParamsRejectsInvalidRatio(t *testing.T) {
	mux, engine := newAdminMux(t)

	// Maintenance above initial fails validation.
	rec := doRequest(t, mux, http.MethodPut, "/v1/params", `{"maintenance_margin_ratio":"0.5"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: %s", rec.Code, rec.Body)
	}
	if got := engine.Params().MaintenanceMarginRatio; got.String() != "0.0625" {
		t.Errorf("maintenance ratio = %s, want unchanged 0.0625", got)
	}

	rec = doRequest(t, mux, http.MethodPut, "/v1/params", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", rec.Code)
	}
}

func TestBlockHeightRoundTrip(t *testing.T) {
	mux, engine := newAdminMux(t)

	rec := doRequest(t, mux, http.MethodPut, "/v1/block-height", `{"block_height":42}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if got := engine.BlockHeight(); got != 42 {
		t.Errorf("engine block height = %d, want 42", got)
	}

	rec = doRequest(t, mux, http.MethodGet, "/v1/block-height", "")
	var body map[string]uint64
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["block_height"] != 42 {
		t.Errorf("block_height = %d, want 42", body["block_height"])
	}
}

func TestGetPrepaidBadDebt(t *testing.T) {
	mux, _ := newAdminMux(t)

	rec := doRequest(t, mux, http.MethodGet, "/v1/prepaid-bad-debt/USDC", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["prepaid_bad_debt"] != "0" {
		t.Errorf("prepaid_bad_debt = %q, want 0", body["prepaid_bad_debt"])
	}
}
