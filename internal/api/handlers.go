package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"treasury-valuation/internal/address"
	"treasury-valuation/internal/domain"
	"treasury-valuation/internal/pipeline"
	"treasury-valuation/internal/reporting"
	"treasury-valuation/internal/storage"
)

type reportRequest struct {
	StakeAddress string `json:"stake_address"`
	CutoffDate   string `json:"cutoff_date"`
	Format       string `json:"format"` // "json" (default) or "csv"
}

type reportResponse struct {
	StakeAddress     string          `json:"stake_address"`
	PaymentAddresses []string        `json:"payment_addresses"`
	PriceSource      string          `json:"price_source"`
	ADAUSDRate       string          `json:"ada_usd_rate"`
	Records          []recordPayload `json:"records"`
}

type recordPayload struct {
	StakeAddress   string          `json:"stake_address"`
	PaymentAddress string          `json:"payment_address"`
	TxHash         string          `json:"tx_hash"`
	TxTime         string          `json:"tx_time"`
	BlockHeight    int64           `json:"block_height"`
	AmountADA      string          `json:"amount_ada"`
	FeeADA         string          `json:"fee_ada"`
	TxType         string          `json:"tx_type"`
	OutputADA      string          `json:"output_ada"`
	AmountUSD      string          `json:"amount_usd"`
	TotalOutputADA string          `json:"total_output_ada"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreateReport runs the pipeline for one stake address and returns
// the computed records, as JSON or as the simple CSV export.
func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := address.ValidateStakeAddress(req.StakeAddress); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cutoff, err := address.ParseDate(req.CutoffDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	query := domain.StakeQuery{StakeAddress: req.StakeAddress, CutoffDate: cutoff}
	result, err := s.runner.Run(r.Context(), query)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrNoPaymentAddresses):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, storage.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Printf("report for %s failed: %v", req.StakeAddress, err)
			writeError(w, http.StatusBadGateway, "pipeline run failed")
		}
		return
	}

	if req.Format == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(reporting.RenderSimpleCSV(result.Records)))
		return
	}

	resp := reportResponse{
		StakeAddress:     result.Query.StakeAddress,
		PaymentAddresses: result.PaymentAddresses,
		PriceSource:      result.Quote.Source,
		ADAUSDRate:       result.Quote.USDPerADA.String(),
		Records:          toPayload(result.Records),
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListRecords returns persisted records, optionally filtered by
// stake address.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotImplemented, "record persistence is disabled")
		return
	}

	var (
		records []domain.ValuationRecord
		err     error
	)
	if stake := r.URL.Query().Get("stake_address"); stake != "" {
		if vErr := address.ValidateStakeAddress(stake); vErr != nil {
			writeError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		records, err = s.store.RecordsByStake(r.Context(), stake)
	} else {
		records, err = s.store.AllRecords(r.Context())
	}
	if err != nil {
		s.logger.Printf("list records: %v", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": toPayload(records),
		"count":   len(records),
	})
}

func toPayload(records []domain.ValuationRecord) []recordPayload {
	out := make([]recordPayload, len(records))
	for i, r := range records {
		out[i] = recordPayload{
			StakeAddress:   r.StakeAddress,
			PaymentAddress: r.PaymentAddress,
			TxHash:         r.TxHash,
			TxTime:         r.TxTime,
			BlockHeight:    r.BlockHeight,
			AmountADA:      r.AmountADA.String(),
			FeeADA:         r.FeeADA.String(),
			TxType:         r.TxType,
			OutputADA:      r.OutputADA.String(),
			AmountUSD:      r.AmountUSD.String(),
			TotalOutputADA: r.TotalOutputADA.String(),
			Metadata:       r.Metadata,
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
