package transfers

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

// RepositoryPort abstracts transfer persistence.
type RepositoryPort interface {
	Insert(ctx context.Context, transfer Transfer) error
	Get(ctx context.Context, id uuid.UUID) (Transfer, error)
	// UpdateStatus transitions id from one status to another; it reports
	// shared.ErrInvalidStateTransition when the row is no longer in from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, actorID uuid.UUID, at time.Time) error
	List(ctx context.Context, filter Filter) ([]Transfer, int, error)
}

// LedgerPort is the slice of the ledger service transfers need. The
// post hook runs inside the append transaction so the status flip and
// the two legs commit together.
type LedgerPort interface {
	AppendAllThen(ctx context.Context, drafts []ledger.Draft, post func(context.Context) error) ([]ledger.MovementRecord, error)
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

// Service orchestrates the transfer workflow.
type Service struct {
	repo        RepositoryPort
	ledger      LedgerPort
	policy      ApproverPolicy
	idempotency IdempotencyPort
	approvals   ApprovalPort
	audit       AuditPort
	now         func() time.Time
}

// NewService constructs the transfer service.
func NewService(repo RepositoryPort, ledgerPort LedgerPort, policy ApproverPolicy, idem IdempotencyPort, approvals ApprovalPort, audit AuditPort) *Service {
	if policy == nil {
		policy = DistinctActorsPolicy()
	}
	return &Service{
		repo:        repo,
		ledger:      ledgerPort,
		policy:      policy,
		idempotency: idem,
		approvals:   approvals,
		audit:       audit,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput describes a new transfer request.
type CreateInput struct {
	FromLocationID uuid.UUID
	ToLocationID   uuid.UUID
	StockID        uuid.UUID
	VariantID      uuid.UUID
	Quantity       decimal.Decimal
	Value          decimal.Decimal
	RequestedBy    uuid.UUID
	Note           string
}

// Create registers a PENDING transfer. No stock is reserved; balances are
// only checked at approval time.
func (s *Service) Create(ctx context.Context, input CreateInput) (Transfer, error) {
	if input.FromLocationID == uuid.Nil || input.ToLocationID == uuid.Nil {
		return Transfer{}, fmt.Errorf("%w: source and destination locations required", shared.ErrValidation)
	}
	if input.FromLocationID == input.ToLocationID {
		return Transfer{}, fmt.Errorf("%w: source and destination locations must differ", shared.ErrValidation)
	}
	if input.StockID == uuid.Nil || input.VariantID == uuid.Nil {
		return Transfer{}, fmt.Errorf("%w: stock and variant required", shared.ErrValidation)
	}
	if input.Quantity.Sign() <= 0 {
		return Transfer{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	if input.Value.Sign() < 0 {
		return Transfer{}, fmt.Errorf("%w: value must not be negative", shared.ErrValidation)
	}
	if input.RequestedBy == uuid.Nil {
		return Transfer{}, fmt.Errorf("%w: requesting staff required", shared.ErrValidation)
	}
	transfer := Transfer{
		ID:             uuid.New(),
		FromLocationID: input.FromLocationID,
		ToLocationID:   input.ToLocationID,
		StockID:        input.StockID,
		VariantID:      input.VariantID,
		Quantity:       input.Quantity,
		Value:          input.Value,
		RequestedBy:    input.RequestedBy,
		Status:         StatusPending,
		Note:           input.Note,
		CreatedAt:      s.now(),
	}
	if err := s.repo.Insert(ctx, transfer); err != nil {
		return Transfer{}, err
	}
	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  "TRANSFER",
			RefID:   transfer.ID,
			ActorID: transfer.RequestedBy,
			Action:  shared.ApprovalSubmit,
			Note:    transfer.Note,
		})
	}
	s.recordAudit(ctx, "TRANSFER_CREATE", transfer.ID, transfer.RequestedBy, map[string]any{
		"from":     transfer.FromLocationID.String(),
		"to":       transfer.ToLocationID.String(),
		"quantity": transfer.Quantity.String(),
	})
	return transfer, nil
}

// Approve transitions a PENDING transfer to APPROVED, emitting the two
// ledger legs atomically. The transfer stays PENDING when either leg fails.
func (s *Service) Approve(ctx context.Context, id, approver uuid.UUID) (Transfer, error) {
	transfer, err := s.repo.Get(ctx, id)
	if err != nil {
		return Transfer{}, err
	}
	if transfer.Status != StatusPending {
		return Transfer{}, fmt.Errorf("%w: transfer %s is %s", shared.ErrInvalidStateTransition, id, transfer.Status)
	}
	if err := s.policy.Authorize(transfer.RequestedBy, approver); err != nil {
		return Transfer{}, err
	}

	idemKey := shared.ApprovalKey(shared.ModuleTransfers, "approve", id)
	claimed := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, shared.ModuleTransfers); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Transfer{}, fmt.Errorf("%w: transfer %s approval already processed", shared.ErrInvalidStateTransition, id)
			}
			return Transfer{}, err
		}
		claimed = true
	}

	// The status flip rides the append transaction: both legs and the
	// APPROVED row commit together or not at all.
	now := s.now()
	_, err = s.ledger.AppendAllThen(ctx, transferDrafts(transfer, approver, now), func(txCtx context.Context) error {
		return s.repo.UpdateStatus(txCtx, id, StatusPending, StatusApproved, approver, now)
	})
	if err != nil {
		if claimed {
			_ = s.idempotency.Delete(ctx, idemKey)
		}
		return Transfer{}, err
	}
	transfer.Status = StatusApproved
	transfer.ApprovedBy = approver
	transfer.ApprovedAt = now

	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  "TRANSFER",
			RefID:   id,
			ActorID: approver,
			Action:  shared.ApprovalApprove,
		})
	}
	s.recordAudit(ctx, "TRANSFER_APPROVE", id, approver, map[string]any{"quantity": transfer.Quantity.String()})
	return transfer, nil
}

// Cancel transitions a PENDING transfer to CANCELLED. Approved transfers
// cannot be cancelled; corrections go through stock modifications.
func (s *Service) Cancel(ctx context.Context, id, actor uuid.UUID) (Transfer, error) {
	transfer, err := s.repo.Get(ctx, id)
	if err != nil {
		return Transfer{}, err
	}
	if transfer.Status != StatusPending {
		return Transfer{}, fmt.Errorf("%w: transfer %s is %s", shared.ErrInvalidStateTransition, id, transfer.Status)
	}
	now := s.now()
	if err := s.repo.UpdateStatus(ctx, id, StatusPending, StatusCancelled, actor, now); err != nil {
		return Transfer{}, err
	}
	transfer.Status = StatusCancelled
	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  "TRANSFER",
			RefID:   id,
			ActorID: actor,
			Action:  shared.ApprovalCancel,
		})
	}
	s.recordAudit(ctx, "TRANSFER_CANCEL", id, actor, nil)
	return transfer, nil
}

// Get returns one transfer.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Transfer, error) {
	return s.repo.Get(ctx, id)
}

// List returns transfers matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]Transfer, shared.Pagination, error) {
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
		Entity:   shared.AuditEntityTransfer,
		EntityID: id.String(),
		Meta:     meta,
	})
}

func transferDrafts(transfer Transfer, approver uuid.UUID, at time.Time) []ledger.Draft {
	return []ledger.Draft{
		{
			StockID:    transfer.StockID,
			VariantID:  transfer.VariantID,
			LocationID: transfer.FromLocationID,
			Type:       ledger.MovementTransferOut,
			Quantity:   transfer.Quantity.Neg(),
			Value:      transfer.Value.Neg(),
			RefKind:    ledger.RefTransfer,
			RefID:      transfer.ID,
			StaffID:    approver,
			Note:       transfer.Note,
			OccurredAt: at,
		},
		{
			StockID:    transfer.StockID,
			VariantID:  transfer.VariantID,
			LocationID: transfer.ToLocationID,
			Type:       ledger.MovementTransferIn,
			Quantity:   transfer.Quantity,
			Value:      transfer.Value,
			RefKind:    ledger.RefTransfer,
			RefID:      transfer.ID,
			StaffID:    approver,
			Note:       transfer.Note,
			OccurredAt: at,
		},
	}
}
