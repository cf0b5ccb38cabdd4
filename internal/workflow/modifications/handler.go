package modifications

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

// Handler wires HTTP endpoints for stock modifications.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the modification handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers modification routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
}

type createRequest struct {
	LocationID string `json:"locationId" validate:"required,uuid"`
	StockID    string `json:"stockId" validate:"required,uuid"`
	VariantID  string `json:"variantId" validate:"required,uuid"`
	Quantity   string `json:"quantity" validate:"required"`
	Value      string `json:"value"`
	Reason     string `json:"reason" validate:"required,oneof=DAMAGE LOSS CORRECTION EXPIRY THEFT"`
	Note       string `json:"note" validate:"max=500"`
	CreatedBy  string `json:"createdBy" validate:"required,uuid"`
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
	modification, record, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.logger.Error("create modification", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"modification": modification, "movement": record})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid modification id")
		return
	}
	modification, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, modification)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, err := modificationFilterFromQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	items, page, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list modifications", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "pagination": page})
}

func (req createRequest) parse() (CreateInput, error) {
	var (
		input CreateInput
		err   error
	)
	if input.LocationID, err = uuid.Parse(req.LocationID); err != nil {
		return CreateInput{}, err
	}
	if input.StockID, err = uuid.Parse(req.StockID); err != nil {
		return CreateInput{}, err
	}
	if input.VariantID, err = uuid.Parse(req.VariantID); err != nil {
		return CreateInput{}, err
	}
	if input.CreatedBy, err = uuid.Parse(req.CreatedBy); err != nil {
		return CreateInput{}, err
	}
	if input.Quantity, err = decimal.NewFromString(req.Quantity); err != nil {
		return CreateInput{}, err
	}
	if req.Value != "" {
		if input.Value, err = decimal.NewFromString(req.Value); err != nil {
			return CreateInput{}, err
		}
	}
	input.Reason = Reason(req.Reason)
	input.Note = req.Note
	return input, nil
}

func modificationFilterFromQuery(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	var filter Filter
	var err error
	filter.Reason = Reason(q.Get("reason"))
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
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("limit"))
	return filter, nil
}
