package requests

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-stock/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the stock request workflow.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the request handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers request routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/cancel", h.cancel)
}

type createRequest struct {
	WarehouseID string `json:"warehouseId" validate:"required,uuid"`
	LocationID  string `json:"locationId" validate:"required,uuid"`
	StockID     string `json:"stockId" validate:"required,uuid"`
	VariantID   string `json:"variantId" validate:"required,uuid"`
	Quantity    string `json:"quantity" validate:"required"`
	Value       string `json:"value" validate:"required"`
	RequestedBy string `json:"requestedBy" validate:"required,uuid"`
	Note        string `json:"note" validate:"max=500"`
}

type actorRequest struct {
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
	request, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.logger.Error("create stock request", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, request)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.actorAction(w, r)
	if !ok {
		return
	}
	request, err := h.service.Approve(r.Context(), id, actor)
	if err != nil {
		h.logger.Error("approve stock request", slog.String("id", id.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, request)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.actorAction(w, r)
	if !ok {
		return
	}
	request, err := h.service.Cancel(r.Context(), id, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, request)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request id")
		return
	}
	request, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, request)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, err := requestFilterFromQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	items, page, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list stock requests", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "pagination": page})
}

func (h *Handler) actorAction(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request id")
		return uuid.Nil, uuid.Nil, false
	}
	var req actorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return uuid.Nil, uuid.Nil, false
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return uuid.Nil, uuid.Nil, false
	}
	actor, err := uuid.Parse(req.ActorID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid actor id")
		return uuid.Nil, uuid.Nil, false
	}
	return id, actor, true
}

func (req createRequest) parse() (CreateInput, error) {
	var (
		input CreateInput
		err   error
	)
	if input.WarehouseID, err = uuid.Parse(req.WarehouseID); err != nil {
		return CreateInput{}, err
	}
	if input.LocationID, err = uuid.Parse(req.LocationID); err != nil {
		return CreateInput{}, err
	}
	if input.StockID, err = uuid.Parse(req.StockID); err != nil {
		return CreateInput{}, err
	}
	if input.VariantID, err = uuid.Parse(req.VariantID); err != nil {
		return CreateInput{}, err
	}
	if input.RequestedBy, err = uuid.Parse(req.RequestedBy); err != nil {
		return CreateInput{}, err
	}
	if input.Quantity, err = decimal.NewFromString(req.Quantity); err != nil {
		return CreateInput{}, err
	}
	if input.Value, err = decimal.NewFromString(req.Value); err != nil {
		return CreateInput{}, err
	}
	input.Note = req.Note
	return input, nil
}

func requestFilterFromQuery(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	var filter Filter
	var err error
	filter.Status = Status(q.Get("status"))
	if raw := q.Get("warehouse_id"); raw != "" {
		if filter.WarehouseID, err = uuid.Parse(raw); err != nil {
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
