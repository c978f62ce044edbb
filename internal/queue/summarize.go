package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nexuslab/nexus/pkg/ai"
	"github.com/nexuslab/nexus/pkg/graph"
	"github.com/nexuslab/nexus/pkg/leaselock"
	"github.com/nexuslab/nexus/pkg/logger"
	"github.com/nexuslab/nexus/pkg/store"
)

// ProcessBackfillMessage handles one summarize queue message: run a summary
// backfill under the recompute lock. When the lock is held elsewhere the
// message errors out and goes through the retry queue.
func ProcessBackfillMessage(
	ctx context.Context,
	aiClient ai.ModelClient,
	relStore store.RelationshipStore,
	guard graph.Guard,
	msg string,
) error {
	data := new(QueueBackfillMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return fmt.Errorf("unmarshal backfill message: %w", err)
	}

	backfiller := graph.NewBackfiller(graph.NewBackfillerParams{
		Model:       aiClient,
		Store:       relStore,
		Concurrency: data.Concurrency,
		BatchSize:   data.BatchSize,
	})

	err := guard.WithLock(ctx, graph.RecomputeLockKey, func(ctx context.Context) error {
		result, err := backfiller.Run(ctx, graph.BackfillParams{
			EntityFilter: data.EntityFilter,
			SkipExisting: data.SkipExisting,
		})
		if err != nil {
			return err
		}
		logger.Info("[Queue] Backfill finished",
			"candidates", result.Candidates,
			"summarized", result.Summarized,
			"skipped", result.Skipped,
		)
		return nil
	})
	if errors.Is(err, leaselock.ErrBusy) {
		logger.Warn("[Queue] Backfill deferred, recompute lock busy")
		return err
	}
	return err
}
