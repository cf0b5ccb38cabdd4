package registry

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridian-pos/meridian-stock/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the registry module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the registry handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers registry routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/stocks", h.createStock)
	r.Get("/stocks", h.listStocks)
	r.Get("/stocks/{id}", h.getStock)
	r.Post("/stocks/{id}/variants", h.createVariant)
	r.Get("/stocks/{id}/variants", h.listVariants)
	r.Put("/variants/{id}/name", h.renameVariant)
	r.Post("/locations", h.createLocation)
	r.Get("/locations", h.listLocations)
	r.Post("/suppliers", h.createSupplier)
	r.Get("/suppliers", h.listSuppliers)
	r.Post("/staff", h.createStaff)
}

type createStockRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Category string `json:"category" validate:"max=120"`
}

type createVariantRequest struct {
	Name string `json:"name" validate:"required,max=120"`
	Unit string `json:"unit" validate:"required,max=32"`
}

type renameVariantRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

type createLocationRequest struct {
	Name string `json:"name" validate:"required,max=120"`
	Kind string `json:"kind" validate:"required,oneof=SHOP WAREHOUSE"`
}

type createSupplierRequest struct {
	Name    string `json:"name" validate:"required,max=120"`
	Contact string `json:"contact" validate:"max=240"`
}

type createStaffRequest struct {
	Name string `json:"name" validate:"required,max=120"`
	Role string `json:"role" validate:"required,max=64"`
}

func (h *Handler) decodeValid(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return err
	}
	return h.validator.Struct(target)
}

func (h *Handler) createStock(w http.ResponseWriter, r *http.Request) {
	var req createStockRequest
	if err := h.decodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	stock, err := h.service.CreateStock(r.Context(), req.Name, req.Category)
	if err != nil {
		h.logger.Error("create stock", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, stock)
}

func (h *Handler) getStock(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid stock id")
		return
	}
	stock, err := h.service.GetStock(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stock)
}

func (h *Handler) listStocks(w http.ResponseWriter, r *http.Request) {
	stocks, page, err := h.service.ListStocks(r.Context(), listFilterFromQuery(r))
	if err != nil {
		h.logger.Error("list stocks", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": stocks, "pagination": page})
}

func (h *Handler) createVariant(w http.ResponseWriter, r *http.Request) {
	stockID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid stock id")
		return
	}
	var req createVariantRequest
	if err := h.decodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	variant, err := h.service.CreateVariant(r.Context(), stockID, req.Name, req.Unit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, variant)
}

func (h *Handler) listVariants(w http.ResponseWriter, r *http.Request) {
	stockID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid stock id")
		return
	}
	variants, page, err := h.service.ListVariants(r.Context(), stockID, listFilterFromQuery(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": variants, "pagination": page})
}

func (h *Handler) renameVariant(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid variant id")
		return
	}
	var req renameVariantRequest
	if err := h.decodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	variant, err := h.service.RenameVariant(r.Context(), id, req.Name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, variant)
}

func (h *Handler) createLocation(w http.ResponseWriter, r *http.Request) {
	var req createLocationRequest
	if err := h.decodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	location, err := h.service.CreateLocation(r.Context(), req.Name, LocationKind(req.Kind))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, location)
}

func (h *Handler) listLocations(w http.ResponseWriter, r *http.Request) {
	locations, page, err := h.service.ListLocations(r.Context(), listFilterFromQuery(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": locations, "pagination": page})
}

func (h *Handler) createSupplier(w http.ResponseWriter, r *http.Request) {
	var req createSupplierRequest
	if err := h.decodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	supplier, err := h.service.CreateSupplier(r.Context(), req.Name, req.Contact)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, supplier)
}

func (h *Handler) listSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, page, err := h.service.ListSuppliers(r.Context(), listFilterFromQuery(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": suppliers, "pagination": page})
}

func (h *Handler) createStaff(w http.ResponseWriter, r *http.Request) {
	var req createStaffRequest
	if err := h.decodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	staff, err := h.service.CreateStaff(r.Context(), req.Name, req.Role)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, staff)
}

func listFilterFromQuery(r *http.Request) ListFilter {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("limit"))
	return ListFilter{Search: q.Get("search"), Page: page, PerPage: perPage}
}
