package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-stock/internal/shared"
)

// ErrBalanceNotFound indicates a missing balance row.
var ErrBalanceNotFound = errors.New("ledger: balance not found")

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	GetBalanceForUpdate(ctx context.Context, locationID, variantID uuid.UUID) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	InsertMovement(ctx context.Context, record MovementRecord) error
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListMovements(ctx context.Context, filter Filter) ([]MovementRecord, error)
	MovementsForKey(ctx context.Context, locationID, variantID uuid.UUID) ([]MovementRecord, error)
	GetBalance(ctx context.Context, locationID, variantID uuid.UUID) (Balance, error)
	ListBalances(ctx context.Context, locationID uuid.UUID) ([]Balance, error)
	ListBalanceKeys(ctx context.Context) ([]shared.BalanceKey, error)
}

// RegistryPort exposes the identity checks the ledger needs.
type RegistryPort interface {
	VariantStock(ctx context.Context, variantID uuid.UUID) (uuid.UUID, error)
	LocationExists(ctx context.Context, locationID uuid.UUID) error
	MarkVariantReferenced(ctx context.Context, variantID uuid.UUID) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Invalidator is notified after every successful append so read-side caches
// can drop stale aggregates.
type Invalidator interface {
	BumpVersion(ctx context.Context)
}

// MetricsPort receives append counters. Nil disables instrumentation.
type MetricsPort interface {
	ObserveAppend(movementType string)
	ObserveConflictRetry()
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// ConflictRetries bounds transparent retries on concurrent-modification
	// failures before surfacing ErrConflict.
	ConflictRetries int
	Metrics         MetricsPort
}

// Service owns the append-only movement ledger and its derived balances.
// Appends against the same (location, variant) key are serialised; a
// multi-record append commits atomically or not at all.
type Service struct {
	repo        RepositoryPort
	registry    RegistryPort
	projector   *Projector
	audit       AuditPort
	invalidator Invalidator
	metrics     MetricsPort
	locks       *shared.KeyedMutex
	logger      *slog.Logger
	retries     int
	now         func() time.Time
}

// NewService builds the ledger service.
func NewService(repo RepositoryPort, registry RegistryPort, projector *Projector, audit AuditPort, invalidator Invalidator, cfg ServiceConfig, logger *slog.Logger) *Service {
	retries := cfg.ConflictRetries
	if retries <= 0 {
		retries = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		registry:    registry,
		projector:   projector,
		audit:       audit,
		invalidator: invalidator,
		metrics:     cfg.Metrics,
		locks:       shared.NewKeyedMutex(),
		logger:      logger,
		retries:     retries,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Append validates and persists a single movement record.
func (s *Service) Append(ctx context.Context, draft Draft) (MovementRecord, error) {
	records, err := s.AppendAll(ctx, []Draft{draft})
	if err != nil {
		return MovementRecord{}, err
	}
	return records[0], nil
}

// AppendAll persists a batch of movement records atomically. Either every
// record lands with its snapshot computed against the serialised balance
// state, or none does. Used by transfers (two legs) and purchase intakes.
func (s *Service) AppendAll(ctx context.Context, drafts []Draft) ([]MovementRecord, error) {
	return s.AppendAllThen(ctx, drafts, nil)
}

// AppendAllThen is AppendAll with a post hook that runs inside the same
// transaction, after every record has landed. Workflows flip their row
// status in the hook so the emission and the status change commit or
// roll back together; the hook's context carries the transaction for
// repositories resolving their querier via db.FromContext. The hook
// may run once per retry attempt and must tolerate that.
func (s *Service) AppendAllThen(ctx context.Context, drafts []Draft, post func(context.Context) error) ([]MovementRecord, error) {
	if len(drafts) == 0 {
		return nil, fmt.Errorf("%w: at least one movement required", shared.ErrValidation)
	}
	for i := range drafts {
		if drafts[i].OccurredAt.IsZero() {
			drafts[i].OccurredAt = s.now()
		}
		if err := validateDraft(drafts[i]); err != nil {
			return nil, err
		}
	}
	if err := s.checkIdentities(ctx, drafts); err != nil {
		return nil, err
	}

	keys := draftKeys(drafts)
	s.locks.LockAll(keys)
	defer s.locks.UnlockAll(keys)

	var (
		records  []MovementRecord
		balances map[shared.BalanceKey]Balance
		err      error
	)
	for attempt := 0; attempt <= s.retries; attempt++ {
		records = records[:0]
		balances = make(map[shared.BalanceKey]Balance, len(keys))
		err = s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
			for _, draft := range drafts {
				record, balance, appendErr := s.appendOne(txCtx, tx, draft, balances)
				if appendErr != nil {
					return appendErr
				}
				records = append(records, record)
				balances[shared.BalanceKey{LocationID: balance.LocationID, VariantID: balance.VariantID}] = balance
			}
			if err := s.markReferenced(txCtx, drafts); err != nil {
				return err
			}
			if post != nil {
				return post(txCtx)
			}
			return nil
		})
		if err == nil || !errors.Is(err, shared.ErrConflict) {
			break
		}
		if s.metrics != nil {
			s.metrics.ObserveConflictRetry()
		}
		s.logger.Warn("ledger append conflict, retrying",
			slog.Int("attempt", attempt+1),
			slog.Int("max", s.retries))
	}
	if err != nil {
		return nil, err
	}

	for _, balance := range balances {
		s.projector.Apply(balance)
	}
	s.afterAppend(ctx, records)
	return records, nil
}

// appendOne computes snapshots for one draft against the transactional
// balance view and persists the record. Balances already touched inside this
// transaction are chained through seen.
func (s *Service) appendOne(ctx context.Context, tx TxRepository, draft Draft, seen map[shared.BalanceKey]Balance) (MovementRecord, Balance, error) {
	key := shared.BalanceKey{LocationID: draft.LocationID, VariantID: draft.VariantID}
	balance, ok := seen[key]
	if !ok {
		var err error
		balance, err = tx.GetBalanceForUpdate(ctx, draft.LocationID, draft.VariantID)
		if err != nil {
			if !errors.Is(err, ErrBalanceNotFound) {
				return MovementRecord{}, Balance{}, err
			}
			balance = zeroBalance(draft.LocationID, draft.VariantID)
		}
	}

	newQty := balance.Quantity.Add(draft.Quantity)
	if newQty.IsNegative() {
		return MovementRecord{}, Balance{}, fmt.Errorf("%w: %s of %s at %s would leave %s",
			shared.ErrInsufficientStock, draft.Type, draft.VariantID, draft.LocationID, newQty)
	}

	value := draft.Value
	if draft.Type == MovementOrderItemConsumption && value.IsZero() {
		// Consumption is valued at the running average cost.
		value = draft.Quantity.Mul(balance.AverageValue).Round(2)
	}

	newAvg := balance.AverageValue
	if draft.Quantity.Sign() > 0 {
		numerator := balance.AverageValue.Mul(balance.Quantity).Add(value)
		newAvg = numerator.DivRound(newQty, averageScale)
	}

	record := MovementRecord{
		ID:           uuid.New(),
		Seq:          balance.LastSeq + 1,
		StockID:      draft.StockID,
		VariantID:    draft.VariantID,
		LocationID:   draft.LocationID,
		Type:         draft.Type,
		Quantity:     draft.Quantity,
		Value:        value,
		PrevQuantity: balance.Quantity,
		PrevAverage:  balance.AverageValue,
		NewQuantity:  newQty,
		NewAverage:   newAvg,
		RefKind:      draft.RefKind,
		RefID:        draft.RefID,
		StaffID:      draft.StaffID,
		Note:         draft.Note,
		OccurredAt:   draft.OccurredAt,
	}
	if err := tx.InsertMovement(ctx, record); err != nil {
		return MovementRecord{}, Balance{}, err
	}

	balance.LocationID = draft.LocationID
	balance.VariantID = draft.VariantID
	balance.Quantity = newQty
	balance.AverageValue = newAvg
	balance.LastSeq = record.Seq
	balance.UpdatedAt = record.OccurredAt
	if err := tx.UpsertBalance(ctx, balance); err != nil {
		return MovementRecord{}, Balance{}, err
	}
	return record, balance, nil
}

// ConsumptionLine is one order item drawing down stock.
type ConsumptionLine struct {
	StockID    uuid.UUID
	VariantID  uuid.UUID
	LocationID uuid.UUID
	Quantity   decimal.Decimal
	OrderItem  uuid.UUID
	StaffID    uuid.UUID
}

// ConsumeOrderItems appends one ORDER_ITEM_CONSUMPTION record per sold line,
// atomically, valued at the running average cost.
func (s *Service) ConsumeOrderItems(ctx context.Context, lines []ConsumptionLine) ([]MovementRecord, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one order line required", shared.ErrValidation)
	}
	drafts := make([]Draft, 0, len(lines))
	for _, line := range lines {
		if line.Quantity.Sign() <= 0 {
			return nil, fmt.Errorf("%w: consumption quantity must be positive", shared.ErrValidation)
		}
		drafts = append(drafts, Draft{
			StockID:    line.StockID,
			VariantID:  line.VariantID,
			LocationID: line.LocationID,
			Type:       MovementOrderItemConsumption,
			Quantity:   line.Quantity.Neg(),
			RefKind:    RefOrderItem,
			RefID:      line.OrderItem,
			StaffID:    line.StaffID,
		})
	}
	return s.AppendAll(ctx, drafts)
}

// GetBalance returns the current balance for a (location, variant) pair.
func (s *Service) GetBalance(ctx context.Context, locationID, variantID uuid.UUID) (Balance, error) {
	return s.projector.GetBalance(ctx, locationID, variantID)
}

// Movements lists ledger records for a filter.
func (s *Service) Movements(ctx context.Context, filter Filter) ([]MovementRecord, error) {
	if filter.Limit <= 0 {
		filter.Limit = 200
	}
	return s.repo.ListMovements(ctx, filter)
}

// Recompute folds the full ledger for one key, for repair and audit.
func (s *Service) Recompute(ctx context.Context, locationID, variantID uuid.UUID) (Balance, error) {
	return s.projector.Recompute(ctx, locationID, variantID)
}

// Verify compares the full fold against the materialised balance.
func (s *Service) Verify(ctx context.Context, locationID, variantID uuid.UUID) (Drift, error) {
	return s.projector.Verify(ctx, locationID, variantID)
}

// BalanceKeys lists every (location, variant) pair the ledger has touched.
func (s *Service) BalanceKeys(ctx context.Context) ([]shared.BalanceKey, error) {
	return s.repo.ListBalanceKeys(ctx)
}

func (s *Service) checkIdentities(ctx context.Context, drafts []Draft) error {
	if s.registry == nil {
		return nil
	}
	seenVariants := make(map[uuid.UUID]bool)
	seenLocations := make(map[uuid.UUID]bool)
	for _, draft := range drafts {
		if !seenVariants[draft.VariantID] {
			stockID, err := s.registry.VariantStock(ctx, draft.VariantID)
			if err != nil {
				return err
			}
			if stockID != draft.StockID {
				return fmt.Errorf("%w: variant %s does not belong to stock %s", shared.ErrValidation, draft.VariantID, draft.StockID)
			}
			seenVariants[draft.VariantID] = true
		}
		if !seenLocations[draft.LocationID] {
			if err := s.registry.LocationExists(ctx, draft.LocationID); err != nil {
				return err
			}
			seenLocations[draft.LocationID] = true
		}
	}
	return nil
}

// markReferenced freezes every variant touched by the batch. It runs
// inside the append transaction so a committed movement always leaves
// its variant frozen; a registry failure aborts the whole append.
func (s *Service) markReferenced(ctx context.Context, drafts []Draft) error {
	if s.registry == nil {
		return nil
	}
	seen := make(map[uuid.UUID]bool)
	for _, draft := range drafts {
		if seen[draft.VariantID] {
			continue
		}
		seen[draft.VariantID] = true
		if err := s.registry.MarkVariantReferenced(ctx, draft.VariantID); err != nil {
			return fmt.Errorf("mark variant %s referenced: %w", draft.VariantID, err)
		}
	}
	return nil
}

func (s *Service) afterAppend(ctx context.Context, records []MovementRecord) {
	if s.audit != nil {
		for _, record := range records {
			_ = s.audit.Record(ctx, shared.AuditLog{
				ActorID:  record.StaffID.String(),
				Action:   fmt.Sprintf("ledger:%s", record.Type),
				Entity:   shared.AuditEntityMovement,
				EntityID: record.ID.String(),
				Meta: map[string]any{
					"location_id": record.LocationID.String(),
					"variant_id":  record.VariantID.String(),
					"quantity":    record.Quantity.String(),
					"value":       record.Value.String(),
					"seq":         record.Seq,
				},
			})
		}
	}
	if s.metrics != nil {
		for _, record := range records {
			s.metrics.ObserveAppend(string(record.Type))
		}
	}
	if s.invalidator != nil {
		s.invalidator.BumpVersion(ctx)
	}
}

func validateDraft(draft Draft) error {
	if draft.LocationID == uuid.Nil || draft.VariantID == uuid.Nil || draft.StockID == uuid.Nil {
		return fmt.Errorf("%w: stock, variant and location are required", shared.ErrValidation)
	}
	if !draft.Type.Valid() {
		return fmt.Errorf("%w: unknown movement type %q", shared.ErrValidation, draft.Type)
	}
	if draft.Quantity.IsZero() {
		return fmt.Errorf("%w: quantity must be non-zero", shared.ErrValidation)
	}
	switch draft.Type {
	case MovementIntake, MovementTransferIn:
		if draft.Quantity.Sign() < 0 {
			return fmt.Errorf("%w: %s requires a positive quantity", shared.ErrValidation, draft.Type)
		}
	case MovementTransferOut, MovementOrderItemConsumption:
		if draft.Quantity.Sign() > 0 {
			return fmt.Errorf("%w: %s requires a negative quantity", shared.ErrValidation, draft.Type)
		}
	}
	if !draft.Value.IsZero() && draft.Value.Sign() != draft.Quantity.Sign() {
		return fmt.Errorf("%w: value must carry the same sign as quantity", shared.ErrValidation)
	}
	if (draft.RefKind == "") != (draft.RefID == uuid.Nil) {
		return fmt.Errorf("%w: back-reference requires both kind and id", shared.ErrValidation)
	}
	return nil
}

func draftKeys(drafts []Draft) []shared.BalanceKey {
	keys := make([]shared.BalanceKey, 0, len(drafts))
	for _, draft := range drafts {
		keys = append(keys, shared.BalanceKey{LocationID: draft.LocationID, VariantID: draft.VariantID})
	}
	return keys
}
