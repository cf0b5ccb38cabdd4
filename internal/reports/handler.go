package reports

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/meridian-pos/meridian-stock/internal/platform/httpx"
)

// CSVWriter renders one report as CSV. The handler delegates to the export
// package so the encoding stays out of the HTTP layer.
type CSVWriter struct {
	MovementSummary func(w io.Writer, summaries []MovementTypeSummary) error
	Valuation       func(w io.Writer, report ValuationReport) error
}

// Handler wires HTTP endpoints for the report facade.
type Handler struct {
	logger  *slog.Logger
	service *Service
	csv     CSVWriter
}

// NewHandler constructs the report handler.
func NewHandler(logger *slog.Logger, service *Service, csv CSVWriter) *Handler {
	return &Handler{logger: logger, service: service, csv: csv}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/movements", h.movementSummary)
	r.Get("/purchases", h.purchaseSummary)
	r.Get("/workflows", h.workflowCounts)
	r.Get("/valuation", h.valuation)
}

func (h *Handler) movementSummary(w http.ResponseWriter, r *http.Request) {
	params, err := movementParamsFromQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	summaries, err := h.service.MovementSummary(r.Context(), params)
	if err != nil {
		h.logger.Error("movement summary", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if r.URL.Query().Get("format") == "csv" && h.csv.MovementSummary != nil {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="movement-summary.csv"`)
		if err := h.csv.MovementSummary(w, summaries); err != nil {
			h.logger.Error("movement summary csv", slog.Any("error", err))
		}
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": summaries})
}

func (h *Handler) purchaseSummary(w http.ResponseWriter, r *http.Request) {
	params, err := purchaseParamsFromQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	summaries, err := h.service.PurchaseSummary(r.Context(), params)
	if err != nil {
		h.logger.Error("purchase summary", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": summaries})
}

func (h *Handler) workflowCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.service.WorkflowCounts(r.Context())
	if err != nil {
		h.logger.Error("workflow counts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, counts)
}

func (h *Handler) valuation(w http.ResponseWriter, r *http.Request) {
	var locationID uuid.UUID
	if raw := r.URL.Query().Get("location_id"); raw != "" {
		var err error
		if locationID, err = uuid.Parse(raw); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid location id")
			return
		}
	}
	report, err := h.service.Valuation(r.Context(), locationID)
	if err != nil {
		h.logger.Error("valuation", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if r.URL.Query().Get("format") == "csv" && h.csv.Valuation != nil {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="valuation.csv"`)
		if err := h.csv.Valuation(w, report); err != nil {
			h.logger.Error("valuation csv", slog.Any("error", err))
		}
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func movementParamsFromQuery(r *http.Request) (MovementParams, error) {
	q := r.URL.Query()
	var params MovementParams
	var err error
	if raw := q.Get("location_id"); raw != "" {
		if params.LocationID, err = uuid.Parse(raw); err != nil {
			return MovementParams{}, err
		}
	}
	if raw := q.Get("stock_id"); raw != "" {
		if params.StockID, err = uuid.Parse(raw); err != nil {
			return MovementParams{}, err
		}
	}
	if raw := q.Get("from"); raw != "" {
		if params.From, err = time.Parse(time.RFC3339, raw); err != nil {
			return MovementParams{}, err
		}
	}
	if raw := q.Get("to"); raw != "" {
		if params.To, err = time.Parse(time.RFC3339, raw); err != nil {
			return MovementParams{}, err
		}
	}
	return params, nil
}

func purchaseParamsFromQuery(r *http.Request) (PurchaseParams, error) {
	q := r.URL.Query()
	var params PurchaseParams
	var err error
	if raw := q.Get("supplier_id"); raw != "" {
		if params.SupplierID, err = uuid.Parse(raw); err != nil {
			return PurchaseParams{}, err
		}
	}
	if raw := q.Get("from"); raw != "" {
		if params.From, err = time.Parse(time.RFC3339, raw); err != nil {
			return PurchaseParams{}, err
		}
	}
	if raw := q.Get("to"); raw != "" {
		if params.To, err = time.Parse(time.RFC3339, raw); err != nil {
			return PurchaseParams{}, err
		}
	}
	return params, nil
}
