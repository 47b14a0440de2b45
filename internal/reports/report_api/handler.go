package report_api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/reports"
	"ms-boxoffice/internal/utils"
)

// ReportService renders the reporting views.
type ReportService interface {
	EventDates(ctx context.Context) ([]reports.EventDate, error)
	SalesSummary(ctx context.Context, date string) (*reports.SummaryReport, error)
	HourlySales(ctx context.Context) (*reports.HourlyReport, error)
	TicketBreakdown(ctx context.Context) (*reports.DistributionReport, error)
	RecentSales(ctx context.Context, n int) ([]reports.RecentSale, error)
	Dashboard(ctx context.Context) *reports.DashboardReport
}

// Handler serves the reporting HTTP endpoints
type Handler struct {
	Service ReportService
	Logger  *logger.Logger
}

func NewHandler(service ReportService, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

// RegisterRoutes mounts the report routes on r. Callers add any auth
// middleware to r first.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/reports", func(r chi.Router) {
		r.Get("/dates", h.GetDates)
		r.Get("/summary", h.GetSummary)
		r.Get("/hourly", h.GetHourly)
		r.Get("/distribution", h.GetDistribution)
		r.Get("/recent", h.GetRecent)
		r.Get("/dashboard", h.GetDashboard)
	})
}

func (h *Handler) GetDates(w http.ResponseWriter, r *http.Request) {
	dates, err := h.Service.EventDates(r.Context())
	if err != nil {
		h.fail(w, "dates", err)
		return
	}
	h.respond(w, dates)
}

func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date != "" {
		if _, err := reports.ParseDate(date); err != nil {
			h.badRequest(w, err)
			return
		}
	}

	report, err := h.Service.SalesSummary(r.Context(), date)
	if err != nil {
		h.fail(w, "summary", err)
		return
	}
	h.respond(w, report)
}

func (h *Handler) GetHourly(w http.ResponseWriter, r *http.Request) {
	report, err := h.Service.HourlySales(r.Context())
	if err != nil {
		h.fail(w, "hourly", err)
		return
	}
	h.respond(w, report)
}

func (h *Handler) GetDistribution(w http.ResponseWriter, r *http.Request) {
	report, err := h.Service.TicketBreakdown(r.Context())
	if err != nil {
		h.fail(w, "distribution", err)
		return
	}
	h.respond(w, report)
}

func (h *Handler) GetRecent(w http.ResponseWriter, r *http.Request) {
	n := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > reports.MaxRecentLimit {
			h.badRequest(w, reports.ErrInvalidLimit)
			return
		}
		n = v
	}

	sales, err := h.Service.RecentSales(r.Context(), n)
	if err != nil {
		h.fail(w, "recent", err)
		return
	}
	h.respond(w, sales)
}

// GetDashboard always answers 200; failed views are reported inside the body.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	report := h.Service.Dashboard(r.Context())
	for view, msg := range report.Errors {
		h.Logger.Warn("REPORTS", fmt.Sprintf("Dashboard view %s failed: %s", view, msg))
	}
	h.respond(w, report)
}

func (h *Handler) respond(w http.ResponseWriter, data interface{}) {
	if err := utils.WriteJSON(w, http.StatusOK, data); err != nil {
		h.Logger.Error("REPORTS", fmt.Sprintf("Failed to encode response: %v", err))
	}
}

func (h *Handler) badRequest(w http.ResponseWriter, err error) {
	if werr := utils.WriteError(w, http.StatusBadRequest, err.Error()); werr != nil {
		h.Logger.Error("REPORTS", fmt.Sprintf("Failed to encode error response: %v", werr))
	}
}

func (h *Handler) fail(w http.ResponseWriter, view string, err error) {
	status, msg := http.StatusInternalServerError, "Failed to fetch data"
	var readErr *reports.StoreReadError
	switch {
	case errors.As(err, &readErr):
		msg = readErr.Message
	case errors.Is(err, reports.ErrInvalidDate), errors.Is(err, reports.ErrInvalidLimit):
		status, msg = http.StatusBadRequest, err.Error()
	}

	h.Logger.Error("REPORTS", fmt.Sprintf("%s view failed: %v", view, err))
	if werr := utils.WriteError(w, status, msg); werr != nil {
		h.Logger.Error("REPORTS", fmt.Sprintf("Failed to encode error response: %v", werr))
	}
}
