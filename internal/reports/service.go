package reports

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// Repository exposes the aggregation queries the report facade folds over.
// All queries are read-only; repeated calls against an unchanged ledger
// yield identical results.
type Repository interface {
	MovementSummary(ctx context.Context, params MovementParams) ([]MovementTypeSummary, error)
	PurchaseSummary(ctx context.Context, params PurchaseParams) ([]PurchaseStatusSummary, error)
	WorkflowCounts(ctx context.Context) (WorkflowCounts, error)
	Valuation(ctx context.Context, locationID uuid.UUID) ([]ValuationRow, error)
}

// Service coordinates report execution with the cache layer. Concurrent
// identical requests collapse onto one loader via singleflight.
type Service struct {
	repo  Repository
	cache *Cache
	group singleflight.Group
}

// NewService wires a Repository with a Cache helper.
func NewService(repo Repository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// MovementSummary aggregates ledger records by movement type.
func (s *Service) MovementSummary(ctx context.Context, params MovementParams) ([]MovementTypeSummary, error) {
	key, err := s.cache.BuildKey(ctx, "reports", "movements",
		scopeToken(params.LocationID), scopeToken(params.StockID),
		dateToken(params.From), dateToken(params.To))
	if err != nil {
		return nil, err
	}
	var out []MovementTypeSummary
	err = s.fetch(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
		return s.repo.MovementSummary(ctx, params)
	})
	return out, err
}

// PurchaseSummary aggregates purchases by payment status.
func (s *Service) PurchaseSummary(ctx context.Context, params PurchaseParams) ([]PurchaseStatusSummary, error) {
	key, err := s.cache.BuildKey(ctx, "reports", "purchases",
		scopeToken(params.SupplierID), dateToken(params.From), dateToken(params.To))
	if err != nil {
		return nil, err
	}
	var out []PurchaseStatusSummary
	err = s.fetch(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
		return s.repo.PurchaseSummary(ctx, params)
	})
	return out, err
}

// WorkflowCounts reports the approval pipelines by status.
func (s *Service) WorkflowCounts(ctx context.Context) (WorkflowCounts, error) {
	key, err := s.cache.BuildKey(ctx, "reports", "workflows")
	if err != nil {
		return WorkflowCounts{}, err
	}
	var out WorkflowCounts
	err = s.fetch(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
		return s.repo.WorkflowCounts(ctx)
	})
	return out, err
}

// Valuation values the current balances at moving-average cost. A nil
// location covers all locations.
func (s *Service) Valuation(ctx context.Context, locationID uuid.UUID) (ValuationReport, error) {
	key, err := s.cache.BuildKey(ctx, "reports", "valuation", scopeToken(locationID))
	if err != nil {
		return ValuationReport{}, err
	}
	var out ValuationReport
	err = s.fetch(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
		rows, err := s.repo.Valuation(ctx, locationID)
		if err != nil {
			return nil, err
		}
		report := ValuationReport{Rows: rows, GrandTotal: decimal.Zero}
		for _, row := range rows {
			report.GrandTotal = report.GrandTotal.Add(row.TotalValue)
		}
		return report, nil
	})
	return out, err
}

func (s *Service) fetch(ctx context.Context, key string, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	raw, err, _ := s.group.Do(key, func() (interface{}, error) {
		var payload json.RawMessage
		if err := s.cache.FetchJSON(ctx, key, &payload, loader); err != nil {
			return nil, err
		}
		return payload, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw.(json.RawMessage), dest)
}

func scopeToken(id uuid.UUID) string {
	if id == uuid.Nil {
		return "-"
	}
	return strings.ToLower(id.String())
}

func dateToken(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02")
}
