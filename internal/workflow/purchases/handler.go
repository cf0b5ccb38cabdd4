package purchases

import (
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

// Handler wires HTTP endpoints for the purchase workflow.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the purchase handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers purchase routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Post("/{id}/confirm-delivery", h.confirmDelivery)
	r.Post("/{id}/payments", h.recordPayment)
}

type lineRequest struct {
	StockID   string `json:"stockId" validate:"required,uuid"`
	VariantID string `json:"variantId" validate:"required,uuid"`
	Quantity  string `json:"quantity" validate:"required"`
	UnitCost  string `json:"unitCost" validate:"required"`
}

type createRequest struct {
	SupplierID   string        `json:"supplierId" validate:"required,uuid"`
	LocationID   string        `json:"locationId" validate:"required,uuid"`
	Lines        []lineRequest `json:"lines" validate:"required,min=1,dive"`
	DeliveryDate string        `json:"deliveryDate"`
	Notes        string        `json:"notes" validate:"max=500"`
	CreatedBy    string        `json:"createdBy" validate:"required,uuid"`
}

type actorRequest struct {
	ActorID string `json:"actorId" validate:"required,uuid"`
}

type paymentRequest struct {
	Amount  string `json:"amount" validate:"required"`
	ActorID string `json:"actorId" validate:"required,uuid"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input, err := req.parse()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	purchase, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.logger.Error("create purchase", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, purchase)
}

func (h *Handler) confirmDelivery(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid purchase id")
		return
	}
	var req actorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor, err := uuid.Parse(req.ActorID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid actor id")
		return
	}
	purchase, err := h.service.ConfirmDelivery(r.Context(), id, actor)
	if err != nil {
		h.logger.Error("confirm delivery", slog.String("id", id.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, purchase)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid purchase id")
		return
	}
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid payment amount")
		return
	}
	actor, err := uuid.Parse(req.ActorID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid actor id")
		return
	}
	purchase, err := h.service.RecordPayment(r.Context(), id, amount, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, purchase)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid purchase id")
		return
	}
	purchase, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, purchase)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, err := purchaseFilterFromQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	purchases, page, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list purchases", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": purchases, "pagination": page})
}

func (req createRequest) parse() (CreateInput, error) {
	var (
		input CreateInput
		err   error
	)
	if input.SupplierID, err = uuid.Parse(req.SupplierID); err != nil {
		return CreateInput{}, err
	}
	if input.LocationID, err = uuid.Parse(req.LocationID); err != nil {
		return CreateInput{}, err
	}
	if input.CreatedBy, err = uuid.Parse(req.CreatedBy); err != nil {
		return CreateInput{}, err
	}
	if req.DeliveryDate != "" {
		if input.DeliveryDate, err = time.Parse(time.RFC3339, req.DeliveryDate); err != nil {
			return CreateInput{}, err
		}
	}
	input.Lines = make([]LineInput, 0, len(req.Lines))
	for _, raw := range req.Lines {
		var line LineInput
		if line.StockID, err = uuid.Parse(raw.StockID); err != nil {
			return CreateInput{}, err
		}
		if line.VariantID, err = uuid.Parse(raw.VariantID); err != nil {
			return CreateInput{}, err
		}
		if line.Quantity, err = decimal.NewFromString(raw.Quantity); err != nil {
			return CreateInput{}, err
		}
		if line.UnitCost, err = decimal.NewFromString(raw.UnitCost); err != nil {
			return CreateInput{}, err
		}
		input.Lines = append(input.Lines, line)
	}
	input.Notes = req.Notes
	return input, nil
}

func purchaseFilterFromQuery(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	var filter Filter
	var err error
	filter.Status = Status(q.Get("status"))
	filter.PaymentStatus = PaymentStatus(q.Get("payment_status"))
	if raw := q.Get("supplier_id"); raw != "" {
		if filter.SupplierID, err = uuid.Parse(raw); err != nil {
			return Filter{}, err
		}
	}
	if raw := q.Get("location_id"); raw != "" {
		if filter.LocationID, err = uuid.Parse(raw); err != nil {
			return Filter{}, err
		}
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("limit"))
	return filter, nil
}
