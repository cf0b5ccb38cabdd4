package modifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-stock/internal/ledger"
	"github.com/meridian-pos/meridian-stock/internal/shared"
)

// RepositoryPort abstracts modification persistence.
type RepositoryPort interface {
	Insert(ctx context.Context, modification Modification) error
	Get(ctx context.Context, id uuid.UUID) (Modification, error)
	List(ctx context.Context, filter Filter) ([]Modification, int, error)
}

// LedgerPort is the slice of the ledger service modifications need. The
// post hook runs inside the append transaction so the modification row
// and its ledger entry commit together.
type LedgerPort interface {
	AppendAllThen(ctx context.Context, drafts []ledger.Draft, post func(context.Context) error) ([]ledger.MovementRecord, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service records stock modifications. Unlike transfers and requests there
// is no pending state: a modification is final the moment its ledger entry
// lands.
type Service struct {
	repo   RepositoryPort
	ledger LedgerPort
	audit  AuditPort
	now    func() time.Time
}

// NewService constructs the modification service.
func NewService(repo RepositoryPort, ledgerPort LedgerPort, audit AuditPort) *Service {
	return &Service{
		repo:   repo,
		ledger: ledgerPort,
		audit:  audit,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput describes a new modification.
type CreateInput struct {
	LocationID uuid.UUID
	StockID    uuid.UUID
	VariantID  uuid.UUID
	Quantity   decimal.Decimal
	Value      decimal.Decimal
	Reason     Reason
	Note       string
	CreatedBy  uuid.UUID
}

// Create validates the adjustment, appends its ledger entry and persists
// the modification. The ledger entry carries the modification as
// back-reference; if the append is rejected nothing is recorded.
func (s *Service) Create(ctx context.Context, input CreateInput) (Modification, ledger.MovementRecord, error) {
	if input.LocationID == uuid.Nil || input.StockID == uuid.Nil || input.VariantID == uuid.Nil {
		return Modification{}, ledger.MovementRecord{}, fmt.Errorf("%w: stock, variant and location required", shared.ErrValidation)
	}
	if input.Quantity.IsZero() {
		return Modification{}, ledger.MovementRecord{}, fmt.Errorf("%w: quantity must be non-zero", shared.ErrValidation)
	}
	if !input.Reason.Valid() {
		return Modification{}, ledger.MovementRecord{}, fmt.Errorf("%w: unknown reason %q", shared.ErrValidation, input.Reason)
	}
	if input.CreatedBy == uuid.Nil {
		return Modification{}, ledger.MovementRecord{}, fmt.Errorf("%w: recording staff required", shared.ErrValidation)
	}
	if !input.Value.IsZero() && input.Value.Sign() != input.Quantity.Sign() {
		return Modification{}, ledger.MovementRecord{}, fmt.Errorf("%w: value must carry the same sign as quantity", shared.ErrValidation)
	}

	modification := Modification{
		ID:         uuid.New(),
		LocationID: input.LocationID,
		StockID:    input.StockID,
		VariantID:  input.VariantID,
		Quantity:   input.Quantity,
		Value:      input.Value,
		Reason:     input.Reason,
		Note:       input.Note,
		CreatedBy:  input.CreatedBy,
		CreatedAt:  s.now(),
	}

	draft := ledger.Draft{
		StockID:    modification.StockID,
		VariantID:  modification.VariantID,
		LocationID: modification.LocationID,
		Type:       ledger.MovementModification,
		Quantity:   modification.Quantity,
		Value:      modification.Value,
		RefKind:    ledger.RefModification,
		RefID:      modification.ID,
		StaffID:    modification.CreatedBy,
		Note:       modification.Note,
		OccurredAt: modification.CreatedAt,
	}
	// The row insert rides the append transaction: the ledger entry and
	// its back-referenced modification commit together or not at all.
	records, err := s.ledger.AppendAllThen(ctx, []ledger.Draft{draft}, func(txCtx context.Context) error {
		return s.repo.Insert(txCtx, modification)
	})
	if err != nil {
		return Modification{}, ledger.MovementRecord{}, err
	}
	record := records[0]

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  modification.CreatedBy.String(),
			Action:   "STOCK_MODIFICATION",
			Entity:   shared.AuditEntityModification,
			EntityID: modification.ID.String(),
			Meta: map[string]any{
				"reason":   string(modification.Reason),
				"quantity": modification.Quantity.String(),
			},
		})
	}
	return modification, record, nil
}

// Get returns one modification.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Modification, error) {
	return s.repo.Get(ctx, id)
}

// List returns modifications matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]Modification, shared.Pagination, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}
