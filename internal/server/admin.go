package server

import (
	"encoding/json"
	"net/http"

	"clearinghouse/internal/clearing"
	"clearinghouse/internal/num"
)

// AdminAPI is the engine's out-of-band operational surface: risk parameter
// governance, block-height advancement, and solvency inspection. Trading
// operations need a live AMM handle and stay in-process.
type AdminAPI struct {
	engine *clearing.Engine
}

func NewAdminAPI(engine *clearing.Engine) *AdminAPI {
	return &AdminAPI{engine: engine}
}

// Register mounts the admin routes on mux.
func (a *AdminAPI) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/params", a.getParams)
	mux.HandleFunc("PUT /v1/params", a.putParams)
	mux.HandleFunc("GET /v1/block-height", a.getBlockHeight)
	mux.HandleFunc("PUT /v1/block-height", a.putBlockHeight)
	mux.HandleFunc("GET /v1/prepaid-bad-debt/{token}", a.getPrepaidBadDebt)
	mux.HandleFunc("GET /v1/funding/{market}", a.getFunding)
}

type paramsBody struct {
	InitMarginRatio        *num.UDec `json:"init_margin_ratio,omitempty"`
	MaintenanceMarginRatio *num.UDec `json:"maintenance_margin_ratio,omitempty"`
	LiquidationFeeRatio    *num.UDec `json:"liquidation_fee_ratio,omitempty"`
}

func (a *AdminAPI) getParams(w http.ResponseWriter, r *http.Request) {
	p := a.engine.Params()
	writeJSON(w, http.StatusOK, paramsBody{
		InitMarginRatio:        &p.InitMarginRatio,
		MaintenanceMarginRatio: &p.MaintenanceMarginRatio,
		LiquidationFeeRatio:    &p.LiquidationFeeRatio,
	})
}

func (a *AdminAPI) putParams(w http.ResponseWriter, r *http.Request) {
	var body paramsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if body.InitMarginRatio != nil {
		if err := a.engine.SetInitMarginRatio(*body.InitMarginRatio); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
	}
	if body.MaintenanceMarginRatio != nil {
		if err := a.engine.SetMaintenanceMarginRatio(*body.MaintenanceMarginRatio); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
	}
	if body.LiquidationFeeRatio != nil {
		if err := a.engine.SetLiquidationFeeRatio(*body.LiquidationFeeRatio); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
	}
	a.getParams(w, r)
}

func (a *AdminAPI) getBlockHeight(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]uint64{"block_height": a.engine.BlockHeight()})
}

func (a *AdminAPI) putBlockHeight(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BlockHeight uint64 `json:"block_height"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a.engine.SetBlockHeight(body.BlockHeight)
	writeJSON(w, http.StatusOK, map[string]uint64{"block_height": a.engine.BlockHeight()})
}

func (a *AdminAPI) getPrepaidBadDebt(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	writeJSON(w, http.StatusOK, map[string]num.UDec{
		"prepaid_bad_debt": a.engine.GetPrepaidBadDebt(token),
	})
}

func (a *AdminAPI) getFunding(w http.ResponseWriter, r *http.Request) {
	market := r.PathValue("market")
	writeJSON(w, http.StatusOK, map[string]num.Dec{
		"latest_premium_fraction": a.engine.LatestPremiumFraction(market),
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
