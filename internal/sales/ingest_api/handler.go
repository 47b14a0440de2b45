package ingest_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
	"ms-boxoffice/internal/sales/ingest"
	"ms-boxoffice/internal/utils"
)

const maxBodyBytes = 1 << 20

type SaleIngester interface {
	Ingest(ctx context.Context, payload map[string]interface{}) ([]models.SaleRecord, error)
}

type Handler struct {
	Ingester SaleIngester
	Logger   *logger.Logger
}

func NewHandler(ingester SaleIngester, log *logger.Logger) *Handler {
	return &Handler{Ingester: ingester, Logger: log}
}

// RegisterRoutes mounts the webhook for every method; ReceiveSale answers
// anything but POST itself.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.HandleFunc("/webhook/sales", h.ReceiveSale)
}

// ReceiveSale validates one sale notification and stores it.
func (h *Handler) ReceiveSale(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		err := &ingest.UnsupportedMethodError{Method: r.Method}
		h.Logger.Warn("WEBHOOK", fmt.Sprintf("Rejected %s request", r.Method))
		h.respondError(w, http.StatusMethodNotAllowed, err.Error())
		return
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()

	var payload map[string]interface{}
	if err := dec.Decode(&payload); err != nil {
		perr := &ingest.PayloadError{Err: err}
		h.Logger.Error("WEBHOOK", fmt.Sprintf("Error processing request: %v", perr))
		h.respondError(w, http.StatusBadRequest, perr.Error())
		return
	}
	if b, err := json.Marshal(payload); err == nil {
		h.Logger.Debug("WEBHOOK", "Received body: "+string(b))
	}

	rows, err := h.Ingester.Ingest(r.Context(), payload)
	if err != nil {
		var (
			missing  *ingest.MissingFieldError
			invalid  *ingest.InvalidFieldError
			writeErr *ingest.StoreWriteError
		)
		switch {
		case errors.As(err, &missing), errors.As(err, &invalid):
			h.respondError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &writeErr):
			h.respondError(w, http.StatusInternalServerError, writeErr.Error())
		default:
			h.Logger.Error("WEBHOOK", fmt.Sprintf("Error processing request: %v", err))
			h.respondError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	h.Logger.Info("WEBHOOK", fmt.Sprintf("Insertion successful, returning %d row(s)", len(rows)))
	if err := utils.WriteJSON(w, http.StatusOK, rows); err != nil {
		h.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to encode response: %v", err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	if err := utils.WriteError(w, status, message); err != nil {
		h.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to encode error response: %v", err))
	}
}
