package graph

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nexuslab/nexus/internal/util"
	"github.com/nexuslab/nexus/pkg/ai"
	"github.com/nexuslab/nexus/pkg/common"
	"github.com/nexuslab/nexus/pkg/logger"
	"github.com/nexuslab/nexus/pkg/store"
)

// DefaultBackfillConcurrency is how many edges are summarized in parallel.
const DefaultBackfillConcurrency = 8

// DefaultBackfillBatchSize is how many finished summaries are buffered
// before they are written to the store in one call.
const DefaultBackfillBatchSize = 25

// BackfillResult reports what one backfill run did.
type BackfillResult struct {
	// Candidates is how many edges were selected for summarization.
	Candidates int `json:"candidates"`
	// Summarized is how many summaries were produced and stored.
	Summarized int `json:"summarized"`
	// Skipped is how many candidates failed and were left untouched.
	Skipped int `json:"skipped"`
}

// Backfiller generates relationship summaries for edges that have
// accumulated observations but no summary yet.
type Backfiller struct {
	model ai.ModelClient
	store store.RelationshipStore

	concurrency int
	batchSize   int
	modelOpts   []ai.GenerateOption
}

// NewBackfillerParams configures NewBackfiller.
type NewBackfillerParams struct {
	Model ai.ModelClient
	Store store.RelationshipStore

	// Concurrency caps parallel model requests. Defaults to
	// DefaultBackfillConcurrency.
	Concurrency int
	// BatchSize is the store write batch size. Defaults to
	// DefaultBackfillBatchSize.
	BatchSize int
	// ModelOpts are passed through on every summary request.
	ModelOpts []ai.GenerateOption
}

func NewBackfiller(params NewBackfillerParams) *Backfiller {
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultBackfillConcurrency
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBackfillBatchSize
	}
	return &Backfiller{
		model:       params.Model,
		store:       params.Store,
		concurrency: concurrency,
		batchSize:   batchSize,
		modelOpts:   params.ModelOpts,
	}
}

// BackfillParams selects which edges one Run covers.
type BackfillParams struct {
	// EntityFilter restricts the run to edges touching the listed
	// canonical ids. Empty means all edges.
	EntityFilter []string
	// SkipExisting leaves summarized edges alone. When false every edge
	// with observations is re-summarized.
	SkipExisting bool
}

// edgeOutcome is one worker's result for one edge.
type edgeOutcome struct {
	summary *common.EdgeSummary
	err     error
	pair    common.Pair
}

// Run summarizes all candidate edges. Individual edge failures are logged
// and counted as skipped, they do not abort the run. Summaries are flushed
// to the store in batches and once more at the end for the remainder.
func (b *Backfiller) Run(ctx context.Context, params BackfillParams) (*BackfillResult, error) {
	var (
		candidates []common.Edge
		err        error
	)
	if params.SkipExisting {
		candidates, err = b.store.EdgesMissingSummary(ctx, params.EntityFilter)
	} else {
		candidates, err = b.store.Edges(ctx, params.EntityFilter)
	}
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	if !params.SkipExisting {
		// re-summarization still needs observations to work from
		kept := candidates[:0]
		for _, edge := range candidates {
			if len(edge.Observations) > 0 {
				kept = append(kept, edge)
			}
		}
		candidates = kept
	}

	result := &BackfillResult{Candidates: len(candidates)}
	if len(candidates) == 0 {
		return result, nil
	}
	logger.Info("[Backfill] Starting run",
		"candidates", len(candidates),
		"concurrency", b.concurrency,
	)

	var (
		mu     sync.Mutex
		buffer []common.EdgeSummary
	)
	flushLocked := func() error {
		if len(buffer) == 0 {
			return nil
		}
		if err := b.store.SetSummaries(ctx, buffer); err != nil {
			return fmt.Errorf("store summaries: %w", err)
		}
		result.Summarized += len(buffer)
		buffer = buffer[:0]
		return nil
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(b.concurrency)
	for _, edge := range candidates {
		group.Go(func() error {
			outcome := b.summarize(gctx, edge)

			mu.Lock()
			defer mu.Unlock()
			if outcome.err != nil {
				result.Skipped++
				logger.Warn("[Backfill] Skipping edge",
					"pair", outcome.pair.Key(),
					"err", outcome.err,
				)
				return nil
			}
			buffer = append(buffer, *outcome.summary)
			if len(buffer) >= b.batchSize {
				return flushLocked()
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	if err := flushLocked(); err != nil {
		return nil, err
	}

	logger.Info("[Backfill] Run finished",
		"candidates", result.Candidates,
		"summarized", result.Summarized,
		"skipped", result.Skipped,
	)
	return result, nil
}

// SummarizeEdge summarizes a single edge and stores the result immediately.
func (b *Backfiller) SummarizeEdge(ctx context.Context, pair common.Pair) (*common.EdgeSummary, error) {
	edge, err := b.store.GetEdge(ctx, pair)
	if err != nil {
		return nil, err
	}
	if len(edge.Observations) == 0 {
		return nil, fmt.Errorf("edge %s has no observations", pair.Key())
	}

	outcome := b.summarize(ctx, *edge)
	if outcome.err != nil {
		return nil, outcome.err
	}
	if err := b.store.SetSummaries(ctx, []common.EdgeSummary{*outcome.summary}); err != nil {
		return nil, fmt.Errorf("store summary: %w", err)
	}
	return outcome.summary, nil
}

func (b *Backfiller) summarize(ctx context.Context, edge common.Edge) edgeOutcome {
	prompt := fmt.Sprintf(
		ai.EdgeSummaryPrompt,
		edge.Pair.A,
		edge.Pair.B,
		strings.Join(edge.Observations, "\n"),
	)

	summary, err := util.RetryWithContext(ctx, 2, func(ctx context.Context) (string, error) {
		return b.model.GenerateCompletion(ctx, prompt, b.modelOpts...)
	})
	if err != nil {
		return edgeOutcome{pair: edge.Pair, err: fmt.Errorf("generate summary: %w", err)}
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return edgeOutcome{pair: edge.Pair, err: fmt.Errorf("model returned empty summary")}
	}

	embedding, err := util.RetryWithContext(ctx, 2, func(ctx context.Context) ([]float32, error) {
		return b.model.GenerateEmbedding(ctx, []byte(summary))
	})
	if err != nil {
		return edgeOutcome{pair: edge.Pair, err: fmt.Errorf("embed summary: %w", err)}
	}

	return edgeOutcome{
		pair: edge.Pair,
		summary: &common.EdgeSummary{
			Pair:      edge.Pair,
			Summary:   summary,
			Embedding: embedding,
		},
	}
}
