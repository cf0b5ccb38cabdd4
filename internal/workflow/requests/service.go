package requests

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-stock/internal/ledger"
	"github.com/meridian-pos/meridian-stock/internal/shared"
)

// RepositoryPort abstracts request persistence.
type RepositoryPort interface {
	Insert(ctx context.Context, request StockRequest) error
	Get(ctx context.Context, id uuid.UUID) (StockRequest, error)
	// UpdateStatus transitions id from one status to another; it reports
	// shared.ErrInvalidStateTransition when the row is no longer in from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, actorID uuid.UUID, at time.Time) error
	List(ctx context.Context, filter Filter) ([]StockRequest, int, error)
}

// LedgerPort is the slice of the ledger service requests need. The post
// hook runs inside the append transaction so the status flip and the
// two legs commit together.
type LedgerPort interface {
	AppendAllThen(ctx context.Context, drafts []ledger.Draft, post func(context.Context) error) ([]ledger.MovementRecord, error)
}

// WarehousePort verifies that the source location is a warehouse.
type WarehousePort interface {
	EnsureWarehouse(ctx context.Context, locationID uuid.UUID) error
}

// IdempotencyPort guards against double emission of ledger entries.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key string, module shared.WorkflowModule) error
	Delete(ctx context.Context, key string) error
}

// ApprovalPort records approval history.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the stock request workflow.
type Service struct {
	repo        RepositoryPort
	ledger      LedgerPort
	warehouses  WarehousePort
	idempotency IdempotencyPort
	approvals   ApprovalPort
	audit       AuditPort
	now         func() time.Time
}

// NewService constructs the request service.
func NewService(repo RepositoryPort, ledgerPort LedgerPort, warehouses WarehousePort, idem IdempotencyPort, approvals ApprovalPort, audit AuditPort) *Service {
	return &Service{
		repo:        repo,
		ledger:      ledgerPort,
		warehouses:  warehouses,
		idempotency: idem,
		approvals:   approvals,
		audit:       audit,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput describes a new stock request.
type CreateInput struct {
	WarehouseID uuid.UUID
	LocationID  uuid.UUID
	StockID     uuid.UUID
	VariantID   uuid.UUID
	Quantity    decimal.Decimal
	Value       decimal.Decimal
	RequestedBy uuid.UUID
	Note        string
}

// Create registers a PENDING request. The warehouse kind is checked here so
// a request against a shop never reaches the ledger.
func (s *Service) Create(ctx context.Context, input CreateInput) (StockRequest, error) {
	if input.WarehouseID == uuid.Nil || input.LocationID == uuid.Nil {
		return StockRequest{}, fmt.Errorf("%w: warehouse and destination required", shared.ErrValidation)
	}
	if input.WarehouseID == input.LocationID {
		return StockRequest{}, fmt.Errorf("%w: warehouse and destination must differ", shared.ErrValidation)
	}
	if input.StockID == uuid.Nil || input.VariantID == uuid.Nil {
		return StockRequest{}, fmt.Errorf("%w: stock and variant required", shared.ErrValidation)
	}
	if input.Quantity.Sign() <= 0 {
		return StockRequest{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	if input.Value.Sign() < 0 {
		return StockRequest{}, fmt.Errorf("%w: value must not be negative", shared.ErrValidation)
	}
	if input.RequestedBy == uuid.Nil {
		return StockRequest{}, fmt.Errorf("%w: requesting staff required", shared.ErrValidation)
	}
	if s.warehouses != nil {
		if err := s.warehouses.EnsureWarehouse(ctx, input.WarehouseID); err != nil {
			return StockRequest{}, err
		}
	}
	request := StockRequest{
		ID:          uuid.New(),
		WarehouseID: input.WarehouseID,
		LocationID:  input.LocationID,
		StockID:     input.StockID,
		VariantID:   input.VariantID,
		Quantity:    input.Quantity,
		Value:       input.Value,
		RequestedBy: input.RequestedBy,
		Status:      StatusPending,
		Note:        input.Note,
		CreatedAt:   s.now(),
	}
	if err := s.repo.Insert(ctx, request); err != nil {
		return StockRequest{}, err
	}
	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  "STOCK_REQUEST",
			RefID:   request.ID,
			ActorID: request.RequestedBy,
			Action:  shared.ApprovalSubmit,
			Note:    request.Note,
		})
	}
	s.recordAudit(ctx, "STOCK_REQUEST_CREATE", request.ID, request.RequestedBy, map[string]any{
		"warehouse": request.WarehouseID.String(),
		"location":  request.LocationID.String(),
		"quantity":  request.Quantity.String(),
	})
	return request, nil
}

// Approve fulfils a PENDING request: the warehouse leg and the destination
// leg land atomically, then the request flips to APPROVED.
func (s *Service) Approve(ctx context.Context, id, approver uuid.UUID) (StockRequest, error) {
	request, err := s.repo.Get(ctx, id)
	if err != nil {
		return StockRequest{}, err
	}
	if request.Status != StatusPending {
		return StockRequest{}, fmt.Errorf("%w: request %s is %s", shared.ErrInvalidStateTransition, id, request.Status)
	}
	if approver == uuid.Nil {
		return StockRequest{}, fmt.Errorf("%w: approver required", shared.ErrValidation)
	}

	idemKey := shared.ApprovalKey(shared.ModuleRequests, "approve", id)
	claimed := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, shared.ModuleRequests); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return StockRequest{}, fmt.Errorf("%w: request %s approval already processed", shared.ErrInvalidStateTransition, id)
			}
			return StockRequest{}, err
		}
		claimed = true
	}

	// The status flip rides the append transaction: both legs and the
	// APPROVED row commit together or not at all.
	now := s.now()
	_, err = s.ledger.AppendAllThen(ctx, requestDrafts(request, approver, now), func(txCtx context.Context) error {
		return s.repo.UpdateStatus(txCtx, id, StatusPending, StatusApproved, approver, now)
	})
	if err != nil {
		if claimed {
			_ = s.idempotency.Delete(ctx, idemKey)
		}
		return StockRequest{}, err
	}
	request.Status = StatusApproved
	request.ApprovedBy = approver
	request.ApprovedAt = now

	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  "STOCK_REQUEST",
			RefID:   id,
			ActorID: approver,
			Action:  shared.ApprovalApprove,
		})
	}
	s.recordAudit(ctx, "STOCK_REQUEST_APPROVE", id, approver, map[string]any{"quantity": request.Quantity.String()})
	return request, nil
}

// Cancel transitions a PENDING request to CANCELLED.
func (s *Service) Cancel(ctx context.Context, id, actor uuid.UUID) (StockRequest, error) {
	request, err := s.repo.Get(ctx, id)
	if err != nil {
		return StockRequest{}, err
	}
	if request.Status != StatusPending {
		return StockRequest{}, fmt.Errorf("%w: request %s is %s", shared.ErrInvalidStateTransition, id, request.Status)
	}
	now := s.now()
	if err := s.repo.UpdateStatus(ctx, id, StatusPending, StatusCancelled, actor, now); err != nil {
		return StockRequest{}, err
	}
	request.Status = StatusCancelled
	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  "STOCK_REQUEST",
			RefID:   id,
			ActorID: actor,
			Action:  shared.ApprovalCancel,
		})
	}
	s.recordAudit(ctx, "STOCK_REQUEST_CANCEL", id, actor, nil)
	return request, nil
}

// Get returns one request.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (StockRequest, error) {
	return s.repo.Get(ctx, id)
}

// List returns requests matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]StockRequest, shared.Pagination, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func (s *Service) recordAudit(ctx context.Context, action string, id, actor uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.String(),
		Action:   action,
		Entity:   shared.AuditEntityRequest,
		EntityID: id.String(),
		Meta:     meta,
	})
}

func requestDrafts(request StockRequest, approver uuid.UUID, at time.Time) []ledger.Draft {
	return []ledger.Draft{
		{
			StockID:    request.StockID,
			VariantID:  request.VariantID,
			LocationID: request.WarehouseID,
			Type:       ledger.MovementTransferOut,
			Quantity:   request.Quantity.Neg(),
			Value:      request.Value.Neg(),
			RefKind:    ledger.RefStockRequest,
			RefID:      request.ID,
			StaffID:    approver,
			Note:       request.Note,
			OccurredAt: at,
		},
		{
			StockID:    request.StockID,
			VariantID:  request.VariantID,
			LocationID: request.LocationID,
			Type:       ledger.MovementTransferIn,
			Quantity:   request.Quantity,
			Value:      request.Value,
			RefKind:    ledger.RefStockRequest,
			RefID:      request.ID,
			StaffID:    approver,
			Note:       request.Note,
			OccurredAt: at,
		},
	}
}
