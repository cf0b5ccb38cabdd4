package ledger

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-stock/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the ledger module. The ledger itself is
// read-only over HTTP except for order-item consumption; all other writes
// arrive through workflow approvals.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	csv       MovementCSVFunc
}

// MovementCSVFunc renders a movement listing as CSV. Injected so the handler
// does not depend on the export package.
type MovementCSVFunc func(w io.Writer, records []MovementRecord) error

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service, csv MovementCSVFunc) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), csv: csv}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/movements", h.listMovements)
	r.Get("/balances/{locationID}/{variantID}", h.getBalance)
	r.Get("/balances/{locationID}/{variantID}/verify", h.verifyBalance)
	r.Post("/consumptions", h.consumeOrderItems)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	records, err := h.service.Movements(r.Context(), filter)
	if err != nil {
		h.logger.Error("list movements", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if r.URL.Query().Get("format") == "csv" && h.csv != nil {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="stock-card.csv"`)
		if err := h.csv(w, records); err != nil {
			h.logger.Error("write movements csv", slog.Any("error", err))
		}
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": records})
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	locationID, variantID, ok := h.balanceKey(w, r)
	if !ok {
		return
	}
	balance, err := h.service.GetBalance(r.Context(), locationID, variantID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balance)
}

func (h *Handler) verifyBalance(w http.ResponseWriter, r *http.Request) {
	locationID, variantID, ok := h.balanceKey(w, r)
	if !ok {
		return
	}
	drift, err := h.service.Verify(r.Context(), locationID, variantID)
	if err != nil {
		h.logger.Error("verify balance", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, drift)
}

type consumptionLineRequest struct {
	StockID    string `json:"stockId" validate:"required,uuid"`
	VariantID  string `json:"variantId" validate:"required"`
	LocationID string `json:"locationId" validate:"required"`
	Quantity   string `json:"quantity" validate:"required"`
	OrderItem  string `json:"orderItemId" validate:"required"`
	StaffID    string `json:"staffId" validate:"required"`
}

type consumeRequest struct {
	Lines []consumptionLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) consumeOrderItems(w http.ResponseWriter, r *http.Request) {
	var req consumeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	lines := make([]ConsumptionLine, 0, len(req.Lines))
	for _, raw := range req.Lines {
		line, err := raw.parse()
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		lines = append(lines, line)
	}
	records, err := h.service.ConsumeOrderItems(r.Context(), lines)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"items": records})
}

func (raw consumptionLineRequest) parse() (ConsumptionLine, error) {
	var (
		line ConsumptionLine
		err  error
	)
	if line.StockID, err = uuid.Parse(raw.StockID); err != nil {
		return ConsumptionLine{}, err
	}
	if line.VariantID, err = uuid.Parse(raw.VariantID); err != nil {
		return ConsumptionLine{}, err
	}
	if line.LocationID, err = uuid.Parse(raw.LocationID); err != nil {
		return ConsumptionLine{}, err
	}
	if line.OrderItem, err = uuid.Parse(raw.OrderItem); err != nil {
		return ConsumptionLine{}, err
	}
	if line.StaffID, err = uuid.Parse(raw.StaffID); err != nil {
		return ConsumptionLine{}, err
	}
	if line.Quantity, err = decimal.NewFromString(raw.Quantity); err != nil {
		return ConsumptionLine{}, err
	}
	return line, nil
}

func (h *Handler) balanceKey(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	locationID, err := uuid.Parse(chi.URLParam(r, "locationID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid location id")
		return uuid.Nil, uuid.Nil, false
	}
	variantID, err := uuid.Parse(chi.URLParam(r, "variantID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid variant id")
		return uuid.Nil, uuid.Nil, false
	}
	return locationID, variantID, true
}

func filterFromQuery(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	var filter Filter
	var err error
	if raw := q.Get("location_id"); raw != "" {
		if filter.LocationID, err = uuid.Parse(raw); err != nil {
			return Filter{}, err
		}
	}
	if raw := q.Get("variant_id"); raw != "" {
		if filter.VariantID, err = uuid.Parse(raw); err != nil {
			return Filter{}, err
		}
	}
	if raw := q.Get("stock_id"); raw != "" {
		if filter.StockID, err = uuid.Parse(raw); err != nil {
			return Filter{}, err
		}
	}
	if raw := q.Get("from"); raw != "" {
		if filter.From, err = time.Parse(time.RFC3339, raw); err != nil {
			return Filter{}, err
		}
	}
	if raw := q.Get("to"); raw != "" {
		if filter.To, err = time.Parse(time.RFC3339, raw); err != nil {
			return Filter{}, err
		}
	}
	for _, t := range q["type"] {
		filter.Types = append(filter.Types, MovementType(t))
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	return filter, nil
}
