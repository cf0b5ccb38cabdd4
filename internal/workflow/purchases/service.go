package purchases

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

// RepositoryPort abstracts purchase persistence.
type RepositoryPort interface {
	Insert(ctx context.Context, purchase Purchase) error
	Get(ctx context.Context, id uuid.UUID) (Purchase, error)
	// MarkReceived flips a DRAFT purchase to RECEIVED; it reports
	// shared.ErrInvalidStateTransition when the row is no longer DRAFT.
	MarkReceived(ctx context.Context, id uuid.UUID, actorID uuid.UUID, at time.Time) error
	UpdatePayment(ctx context.Context, id uuid.UUID, paid decimal.Decimal, status PaymentStatus) error
	List(ctx context.Context, filter Filter) ([]Purchase, int, error)
}

// LedgerPort is the slice of the ledger service purchases need. The
// post hook runs inside the append transaction so the RECEIVED flip and
// the intake entries commit together.
type LedgerPort interface {
	AppendAllThen(ctx context.Context, drafts []ledger.Draft, post func(context.Context) error) ([]ledger.MovementRecord, error)
}

// IdempotencyPort guards against double emission of intake entries.
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

// Service orchestrates the intake purchase workflow.
type Service struct {
	repo        RepositoryPort
	ledger      LedgerPort
	idempotency IdempotencyPort
	approvals   ApprovalPort
	audit       AuditPort
	now         func() time.Time
}

// NewService constructs the purchase service.
func NewService(repo RepositoryPort, ledgerPort LedgerPort, idem IdempotencyPort, approvals ApprovalPort, audit AuditPort) *Service {
	return &Service{
		repo:        repo,
		ledger:      ledgerPort,
		idempotency: idem,
		approvals:   approvals,
		audit:       audit,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// LineInput is one ordered line on a new purchase.
type LineInput struct {
	StockID   uuid.UUID
	VariantID uuid.UUID
	Quantity  decimal.Decimal
	UnitCost  decimal.Decimal
}

// CreateInput describes a new purchase order.
type CreateInput struct {
	SupplierID   uuid.UUID
	LocationID   uuid.UUID
	Lines        []LineInput
	DeliveryDate time.Time
	Notes        string
	CreatedBy    uuid.UUID
}

// Create registers a DRAFT purchase. The total cost is the sum of the line
// totals; no stock moves until delivery is confirmed.
func (s *Service) Create(ctx context.Context, input CreateInput) (Purchase, error) {
	if input.SupplierID == uuid.Nil {
		return Purchase{}, fmt.Errorf("%w: supplier required", shared.ErrValidation)
	}
	if input.LocationID == uuid.Nil {
		return Purchase{}, fmt.Errorf("%w: delivery location required", shared.ErrValidation)
	}
	if input.CreatedBy == uuid.Nil {
		return Purchase{}, fmt.Errorf("%w: creating staff required", shared.ErrValidation)
	}
	if len(input.Lines) == 0 {
		return Purchase{}, fmt.Errorf("%w: at least one line required", shared.ErrValidation)
	}

	total := decimal.Zero
	lines := make([]Line, 0, len(input.Lines))
	for i, raw := range input.Lines {
		if raw.StockID == uuid.Nil || raw.VariantID == uuid.Nil {
			return Purchase{}, fmt.Errorf("%w: line %d: stock and variant required", shared.ErrValidation, i)
		}
		if raw.Quantity.Sign() <= 0 {
			return Purchase{}, fmt.Errorf("%w: line %d: quantity must be positive", shared.ErrValidation, i)
		}
		if raw.UnitCost.Sign() < 0 {
			return Purchase{}, fmt.Errorf("%w: line %d: unit cost must not be negative", shared.ErrValidation, i)
		}
		line := Line{
			ID:        uuid.New(),
			StockID:   raw.StockID,
			VariantID: raw.VariantID,
			Quantity:  raw.Quantity,
			UnitCost:  raw.UnitCost,
		}
		total = total.Add(line.LineTotal())
		lines = append(lines, line)
	}

	purchase := Purchase{
		ID:            uuid.New(),
		SupplierID:    input.SupplierID,
		LocationID:    input.LocationID,
		Lines:         lines,
		Status:        StatusDraft,
		PaymentStatus: PaymentUnpaid,
		TotalCost:     total,
		PaidAmount:    decimal.Zero,
		DeliveryDate:  input.DeliveryDate,
		Notes:         input.Notes,
		CreatedBy:     input.CreatedBy,
		CreatedAt:     s.now(),
	}
	if err := s.repo.Insert(ctx, purchase); err != nil {
		return Purchase{}, err
	}
	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  "INTAKE_PURCHASE",
			RefID:   purchase.ID,
			ActorID: purchase.CreatedBy,
			Action:  shared.ApprovalSubmit,
			Note:    purchase.Notes,
		})
	}
	s.recordAudit(ctx, "PURCHASE_CREATE", purchase.ID, purchase.CreatedBy, map[string]any{
		"supplier": purchase.SupplierID.String(),
		"total":    purchase.TotalCost.String(),
		"lines":    len(purchase.Lines),
	})
	return purchase, nil
}

// ConfirmDelivery transitions a DRAFT purchase to RECEIVED and emits one
// intake movement per line atomically. Confirming a RECEIVED purchase is a
// no-op and returns the purchase unchanged.
func (s *Service) ConfirmDelivery(ctx context.Context, id, actor uuid.UUID) (Purchase, error) {
	purchase, err := s.repo.Get(ctx, id)
	if err != nil {
		return Purchase{}, err
	}
	if purchase.Status == StatusReceived {
		return purchase, nil
	}
	if actor == uuid.Nil {
		return Purchase{}, fmt.Errorf("%w: confirming staff required", shared.ErrValidation)
	}

	idemKey := shared.ApprovalKey(shared.ModulePurchases, "receive", id)
	claimed := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, shared.ModulePurchases); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				// Another confirmation is in flight or already landed.
				return s.repo.Get(ctx, id)
			}
			return Purchase{}, err
		}
		claimed = true
	}

	// The RECEIVED flip rides the append transaction: the intake
	// entries and the status change commit together or not at all.
	now := s.now()
	_, err = s.ledger.AppendAllThen(ctx, intakeDrafts(purchase, actor, now), func(txCtx context.Context) error {
		return s.repo.MarkReceived(txCtx, id, actor, now)
	})
	if err != nil {
		if claimed {
			_ = s.idempotency.Delete(ctx, idemKey)
		}
		return Purchase{}, err
	}
	purchase.Status = StatusReceived
	purchase.ReceivedBy = actor
	purchase.ReceivedAt = now

	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  "INTAKE_PURCHASE",
			RefID:   id,
			ActorID: actor,
			Action:  shared.ApprovalApprove,
		})
	}
	s.recordAudit(ctx, "PURCHASE_RECEIVE", id, actor, map[string]any{"lines": len(purchase.Lines)})
	return purchase, nil
}

// RecordPayment adds to the paid amount and rederives the payment status.
// Payments are monotone and capped by the total cost; they never touch the
// ledger.
func (s *Service) RecordPayment(ctx context.Context, id uuid.UUID, amount decimal.Decimal, actor uuid.UUID) (Purchase, error) {
	if amount.Sign() <= 0 {
		return Purchase{}, fmt.Errorf("%w: payment amount must be positive", shared.ErrValidation)
	}
	purchase, err := s.repo.Get(ctx, id)
	if err != nil {
		return Purchase{}, err
	}
	paid := purchase.PaidAmount.Add(amount)
	if paid.GreaterThan(purchase.TotalCost) {
		return Purchase{}, fmt.Errorf("%w: payment exceeds open balance of %s", shared.ErrValidation, purchase.UnpaidAmount())
	}
	status := derivePaymentStatus(paid, purchase.TotalCost)
	if err := s.repo.UpdatePayment(ctx, id, paid, status); err != nil {
		return Purchase{}, err
	}
	purchase.PaidAmount = paid
	purchase.PaymentStatus = status
	s.recordAudit(ctx, "PURCHASE_PAYMENT", id, actor, map[string]any{
		"amount": amount.String(),
		"paid":   paid.String(),
		"status": string(status),
	})
	return purchase, nil
}

// Get returns one purchase with its lines.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Purchase, error) {
	return s.repo.Get(ctx, id)
}

// List returns purchases matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]Purchase, shared.Pagination, error) {
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
		Entity:   shared.AuditEntityPurchase,
		EntityID: id.String(),
		Meta:     meta,
	})
}

func intakeDrafts(purchase Purchase, actor uuid.UUID, at time.Time) []ledger.Draft {
	drafts := make([]ledger.Draft, 0, len(purchase.Lines))
	for _, line := range purchase.Lines {
		drafts = append(drafts, ledger.Draft{
			StockID:    line.StockID,
			VariantID:  line.VariantID,
			LocationID: purchase.LocationID,
			Type:       ledger.MovementIntake,
			Quantity:   line.Quantity,
			Value:      line.LineTotal(),
			RefKind:    ledger.RefIntakePurchase,
			RefID:      purchase.ID,
			StaffID:    actor,
			Note:       purchase.Notes,
			OccurredAt: at,
		})
	}
	return drafts
}
