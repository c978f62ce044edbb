package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nexuslab/nexus/pkg/ai"
	"github.com/nexuslab/nexus/pkg/graph"
	"github.com/nexuslab/nexus/pkg/identity"
	"github.com/nexuslab/nexus/pkg/logger"
	"github.com/nexuslab/nexus/pkg/store"
)

// ProcessThreadMessage handles one ingest queue message: triage the thread
// and, when it passes, run the extraction conversation against the model.
//
// A triage rejection is a successful outcome, the message is not retried.
func ProcessThreadMessage(
	ctx context.Context,
	aiClient ai.ModelClient,
	relStore store.RelationshipStore,
	resolver *identity.Resolver,
	triage *graph.Triage,
	msg string,
) error {
	data := new(QueueThreadMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return fmt.Errorf("unmarshal thread message: %w", err)
	}
	thread := &data.Thread
	if thread.ID == "" {
		return fmt.Errorf("thread message without id")
	}

	if ok, reason := triage.ShouldProcess(thread); !ok {
		logger.Info("[Queue] Thread rejected by triage", "thread", thread.ID, "reason", reason)
		return nil
	}

	extractor := graph.NewExtractor(graph.NewExtractorParams{
		Model:    aiClient,
		Store:    relStore,
		Resolver: resolver,
	})

	result, err := extractor.ProcessThread(ctx, thread)
	if err != nil {
		return fmt.Errorf("process thread %s: %w", thread.ID, err)
	}

	logger.Info("[Queue] Thread extracted",
		"thread", thread.ID,
		"pairs", len(result.Pairs),
		"rounds", result.Rounds,
		"termination", result.Termination,
	)
	return nil
}
