package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-pos/meridian-stock/internal/shared"
)

// NewIdempotencyCleanupHandler prunes consumed idempotency keys past their
// retention window. Keys guard in-flight approvals; anything older than
// shared.KeyRetention is a completed workflow.
func NewIdempotencyCleanupHandler(store *shared.IdempotencyStore, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload CleanupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		olderThan := payload.OlderThan
		if olderThan <= 0 {
			olderThan = shared.KeyRetention
		}
		if err := store.Cleanup(ctx, olderThan); err != nil {
			return err
		}
		logger.Info("idempotency keys pruned", slog.Duration("older_than", olderThan))
		return nil
	}
}
