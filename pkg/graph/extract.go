package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nexuslab/nexus/pkg/ai"
	"github.com/nexuslab/nexus/pkg/common"
	"github.com/nexuslab/nexus/pkg/identity"
	"github.com/nexuslab/nexus/pkg/logger"
	"github.com/nexuslab/nexus/pkg/store"
)

// Termination says how an extraction conversation ended.
type Termination string

const (
	// TerminatedByModel means the model stopped calling tools on its own
	// and produced a closing summary.
	TerminatedByModel Termination = "model"
	// TerminatedByRoundCap means the round limit cut the conversation off
	// while the model was still calling tools.
	TerminatedByRoundCap Termination = "round_cap"
)

const noSummary = "(no summary produced)"

// DefaultMaxRounds bounds how many model round trips one thread may cost.
const DefaultMaxRounds = 5

// ThreadResult is the outcome of extracting one thread.
type ThreadResult struct {
	// Summary is the model's closing summary of the thread, or a fixed
	// placeholder when none was produced.
	Summary string
	// Pairs is the deduplicated set of edges the thread touched.
	Pairs []common.Pair
	// Rounds is the number of model round trips spent.
	Rounds int
	// Termination says whether the model finished or the cap cut it off.
	Termination Termination
}

// Extractor runs tool-calling extraction conversations against a model and
// folds the recorded observations into the relationship store.
//
// The extractor owns the transcript and the tool dispatch loop. Each round
// is exactly one model request; the extractor applies every tool call the
// reply carries, appends the acknowledgements to the transcript, and asks
// again, up to MaxRounds.
type Extractor struct {
	model    ai.ModelClient
	store    store.RelationshipStore
	resolver *identity.Resolver

	maxRounds int
	modelOpts []ai.GenerateOption
}

// NewExtractorParams configures NewExtractor.
type NewExtractorParams struct {
	Model    ai.ModelClient
	Store    store.RelationshipStore
	Resolver *identity.Resolver

	// MaxRounds caps model round trips per thread. Defaults to
	// DefaultMaxRounds.
	MaxRounds int
	// ModelOpts are passed through on every chat request, typically the
	// model name.
	ModelOpts []ai.GenerateOption
}

func NewExtractor(params NewExtractorParams) *Extractor {
	maxRounds := params.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	return &Extractor{
		model:     params.Model,
		store:     params.Store,
		resolver:  params.Resolver,
		maxRounds: maxRounds,
		modelOpts: params.ModelOpts,
	}
}

// toolAck is the JSON payload returned to the model for a handled tool call.
type toolAck struct {
	Recorded int      `json:"recorded"`
	Pairs    []string `json:"pairs"`
}

// ProcessThread runs the extraction conversation for one thread.
//
// Observations are written to the store as each tool call is handled, so a
// later fatal error leaves earlier writes standing. Interaction counts are
// incremented exactly once, after the conversation terminates, over the
// deduplicated set of touched pairs.
func (e *Extractor) ProcessThread(ctx context.Context, thread *common.Thread) (*ThreadResult, error) {
	messages := []ai.Message{ai.UserMessage(e.renderThread(thread))}
	opts := append([]ai.GenerateOption{
		ai.WithSystemPrompts(ai.ExtractionSystemPrompt),
	}, e.modelOpts...)
	tools := ExtractionTools()

	touched := make(map[string]common.Pair)
	result := &ThreadResult{Termination: TerminatedByRoundCap}
	lastContent := ""

	for range e.maxRounds {
		turn, err := e.model.ChatTurn(ctx, messages, tools, opts...)
		if err != nil {
			return nil, fmt.Errorf("chat round %d: %w", result.Rounds+1, err)
		}
		result.Rounds++

		if len(turn.ToolCalls) == 0 {
			result.Termination = TerminatedByModel
			lastContent = turn.Content
			break
		}
		if turn.Content != "" {
			lastContent = turn.Content
		}

		messages = append(messages, ai.Message{
			Role:      "assistant",
			Content:   turn.Content,
			ToolCalls: turn.ToolCalls,
		})

		for _, call := range turn.ToolCalls {
			ack, err := e.applyToolCall(ctx, call, touched)
			if err != nil {
				return nil, fmt.Errorf("thread %s: %w", thread.ID, err)
			}
			messages = append(messages, ai.ToolMessage(ack, call.ID))
		}
	}

	for _, pair := range touched {
		result.Pairs = append(result.Pairs, pair)
	}
	if len(result.Pairs) > 0 {
		if err := e.store.IncrementInteractionCounts(ctx, result.Pairs); err != nil {
			return nil, fmt.Errorf("increment interaction counts: %w", err)
		}
	}

	result.Summary = strings.TrimSpace(lastContent)
	if result.Summary == "" {
		result.Summary = noSummary
	}

	logger.Debug("[Extractor] Thread processed",
		"thread", thread.ID,
		"rounds", result.Rounds,
		"pairs", len(result.Pairs),
		"termination", result.Termination,
	)
	return result, nil
}

// applyToolCall decodes one tool call, writes its observation, and returns
// the JSON acknowledgement for the transcript.
func (e *Extractor) applyToolCall(
	ctx context.Context,
	call ai.ToolCall,
	touched map[string]common.Pair,
) (string, error) {
	op, err := DecodeOperation(call)
	if err != nil {
		return "", err
	}
	pairs, err := op.Pairs(e.resolver)
	if err != nil {
		return "", err
	}

	if err := e.store.AppendObservationFanout(ctx, pairs, op.Observation()); err != nil {
		return "", fmt.Errorf("append observation: %w", err)
	}

	keys := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		touched[pair.Key()] = pair
		keys = append(keys, pair.Key())
	}

	ack, err := json.Marshal(toolAck{Recorded: len(pairs), Pairs: keys})
	if err != nil {
		return "", err
	}
	return string(ack), nil
}

// renderThread formats the thread for the model. Participant lists are
// resolved first so the model works with the same canonical ids the tool
// acks will echo back.
func (e *Extractor) renderThread(thread *common.Thread) string {
	var b strings.Builder
	if thread.Subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", thread.Subject)
	}
	if participants := e.resolver.ResolveAll(thread.Participants); len(participants) > 0 {
		fmt.Fprintf(&b, "Participants: %s\n", strings.Join(participants, ", "))
	}
	if mentioned := e.resolver.ResolveAll(thread.PeopleMentioned); len(mentioned) > 0 {
		fmt.Fprintf(&b, "Also mentioned: %s\n", strings.Join(mentioned, ", "))
	}
	b.WriteString("\n")
	b.WriteString(thread.Text)
	return b.String()
}
