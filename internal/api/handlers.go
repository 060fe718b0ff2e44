package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"reservations/internal/domain/inventory"
	"reservations/internal/domain/reservation"
	"reservations/internal/processor"
	"reservations/internal/usecase"

	"github.com/go-chi/chi/v5"
)

type Handlers struct {
	service     string
	getStockUC  *usecase.GetStock
	listStockUC *usecase.ListStock
	getLedgerUC *usecase.GetLedger
	getQueuesUC *usecase.GetQueues
	faults      *processor.Faults
}

func NewHandlers(
	service string,
	getStockUC *usecase.GetStock,
	listStockUC *usecase.ListStock,
	getLedgerUC *usecase.GetLedger,
	getQueuesUC *usecase.GetQueues,
	faults *processor.Faults,
) *Handlers {
	return &Handlers{
		service:     service,
		getStockUC:  getStockUC,
		listStockUC: listStockUC,
		getLedgerUC: getLedgerUC,
		getQueuesUC: getQueuesUC,
		faults:      faults,
	}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": h.service})
}

func (h *Handlers) ListStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.listStockUC.Execute(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if items == nil {
		items = []*inventory.Stock{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handlers) GetStock(w http.ResponseWriter, r *http.Request) {
	item := chi.URLParam(r, "item")
	if item == "" {
		http.Error(w, "missing item", http.StatusBadRequest)
		return
	}

	s, err := h.getStockUC.Execute(r.Context(), item)
	if errors.Is(err, inventory.ErrItemNotFound) {
		writeError(w, r, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	writeJSON(w, http.StatusOK, s)
}

func (h *Handlers) LedgerSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.getLedgerUC.Summary(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handlers) GetLedgerRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "eventID")
	if id == "" {
		http.Error(w, "missing event id", http.StatusBadRequest)
		return
	}

	rec, err := h.getLedgerUC.Record(r.Context(), id)
	if errors.Is(err, reservation.ErrRecordNotFound) {
		writeError(w, r, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handlers) GetQueues(w http.ResponseWriter, r *http.Request) {
	d, err := h.getQueuesUC.Execute(r.Context())
	if err != nil {
		writeError(w, r, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type faultConfig struct {
	Delay       float64 `json:"delay"`
	FailureRate float64 `json:"failure_rate"`
}

func toFaultConfig(c processor.FaultConfig) faultConfig {
	return faultConfig{Delay: c.Delay.Seconds(), FailureRate: c.FailureRate}
}

func (h *Handlers) GetFaults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toFaultConfig(h.faults.Config()))
}

// Configure updates only the fields present in the body. Delay is in seconds.
func (h *Handlers) Configure(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delay       *float64 `json:"delay"`
		FailureRate *float64 `json:"failure_rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	cfg := h.faults.Config()
	if req.Delay != nil {
		cfg.Delay = time.Duration(*req.Delay * float64(time.Second))
	}
	if req.FailureRate != nil {
		cfg.FailureRate = *req.FailureRate
	}

	if err := h.faults.Set(cfg); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	slog.Info("fault config updated", "delay", cfg.Delay, "failure_rate", cfg.FailureRate)
	writeJSON(w, http.StatusOK, map[string]any{"status": "configured", "config": toFaultConfig(cfg)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
