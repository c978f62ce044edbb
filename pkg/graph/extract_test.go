package graph

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nexuslab/nexus/pkg/ai"
	"github.com/nexuslab/nexus/pkg/common"
	"github.com/nexuslab/nexus/pkg/identity"
	"github.com/nexuslab/nexus/pkg/store/memory"
)

// scriptedModel replays a fixed sequence of turns and records every request
// it receives. Once the script runs out it keeps returning the last turn.
type scriptedModel struct {
	turns    []*ai.Turn
	requests [][]ai.Message
	err      error
}

func (m *scriptedModel) ChatTurn(
	_ context.Context,
	messages []ai.Message,
	_ []ai.ToolDef,
	_ ...ai.GenerateOption,
) (*ai.Turn, error) {
	m.requests = append(m.requests, append([]ai.Message{}, messages...))
	if m.err != nil {
		return nil, m.err
	}
	idx := min(len(m.requests)-1, len(m.turns)-1)
	return m.turns[idx], nil
}

func (m *scriptedModel) GenerateCompletion(context.Context, string, ...ai.GenerateOption) (string, error) {
	return "", errors.New("not scripted")
}

func (m *scriptedModel) GenerateEmbedding(context.Context, []byte) ([]float32, error) {
	return nil, errors.New("not scripted")
}

func (m *scriptedModel) ResetMetrics() {}

func (m *scriptedModel) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func toolTurn(calls ...ai.ToolCall) *ai.Turn { return &ai.Turn{ToolCalls: calls} }

func pairwiseCall(id, from, to, note string) ai.ToolCall {
	return ai.ToolCall{
		ID:        id,
		Name:      ToolPairwise,
		Arguments: `{"from": "` + from + `", "to": "` + to + `", "note": "` + note + `"}`,
	}
}

func testThread() *common.Thread {
	return &common.Thread{
		ID:           "thread-1",
		Subject:      "Migration plan",
		Participants: []string{"alice", "bob"},
		Text:         "Alice asked Bob to review the migration plan.",
	}
}

func newTestExtractor(model ai.ModelClient, s *memory.Store, maxRounds int) *Extractor {
	return NewExtractor(NewExtractorParams{
		Model:     model,
		Store:     s,
		Resolver:  identity.NewResolver(identity.NewResolverParams{}),
		MaxRounds: maxRounds,
	})
}

func TestProcessThread(t *testing.T) {
	ctx := context.Background()

	t.Run("model terminates with summary", func(t *testing.T) {
		model := &scriptedModel{turns: []*ai.Turn{
			toolTurn(pairwiseCall("call_1", "alice", "bob", "asked for a review")),
			{Content: "Alice asked Bob to review the migration plan."},
		}}
		s := memory.NewStore()

		result, err := newTestExtractor(model, s, 0).ProcessThread(ctx, testThread())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Termination != TerminatedByModel {
			t.Errorf("expected model termination, got %s", result.Termination)
		}
		if result.Rounds != 2 {
			t.Errorf("expected 2 rounds, got %d", result.Rounds)
		}
		if result.Summary != "Alice asked Bob to review the migration plan." {
			t.Errorf("unexpected summary: %q", result.Summary)
		}
		if len(result.Pairs) != 1 || result.Pairs[0].Key() != "alice|bob" {
			t.Fatalf("unexpected pairs: %v", result.Pairs)
		}

		edge, err := s.GetEdge(ctx, common.NewPair("alice", "bob"))
		if err != nil {
			t.Fatalf("edge missing: %v", err)
		}
		if len(edge.Observations) != 1 || edge.Observations[0] != "asked for a review" {
			t.Errorf("unexpected observations: %v", edge.Observations)
		}
		if edge.InteractionCount != 1 {
			t.Errorf("expected interaction count 1, got %d", edge.InteractionCount)
		}
	})

	t.Run("tool acks carry canonical pair keys", func(t *testing.T) {
		model := &scriptedModel{turns: []*ai.Turn{
			toolTurn(pairwiseCall("call_1", "Bob@Example.com", "Alice@Example.com", "paired up")),
			{Content: "done"},
		}}
		s := memory.NewStore()

		if _, err := newTestExtractor(model, s, 0).ProcessThread(ctx, testThread()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(model.requests) != 2 {
			t.Fatalf("expected 2 requests, got %d", len(model.requests))
		}

		second := model.requests[1]
		last := second[len(second)-1]
		if last.Role != "tool" || last.ToolCallID != "call_1" {
			t.Fatalf("expected tool ack for call_1, got %+v", last)
		}
		if !strings.Contains(last.Content, `"alice@example.com|bob@example.com"`) {
			t.Errorf("ack missing canonical key: %s", last.Content)
		}
	})

	t.Run("transcript seeds canonical participant ids", func(t *testing.T) {
		model := &scriptedModel{turns: []*ai.Turn{{Content: "nothing to record"}}}

		thread := testThread()
		thread.Participants = []string{"Alice@Example.com", "Bob@Example.com"}
		thread.PeopleMentioned = []string{"Carol@Example.com"}

		if _, err := newTestExtractor(model, memory.NewStore(), 0).ProcessThread(ctx, thread); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		prompt := model.requests[0][0].Content
		if !strings.Contains(prompt, "Participants: alice@example.com, bob@example.com") {
			t.Errorf("participants not canonicalized: %s", prompt)
		}
		if !strings.Contains(prompt, "Also mentioned: carol@example.com") {
			t.Errorf("mentions not canonicalized: %s", prompt)
		}
	})

	t.Run("round cap cuts off a chatty model", func(t *testing.T) {
		// script never stops calling tools
		model := &scriptedModel{turns: []*ai.Turn{
			toolTurn(pairwiseCall("call_1", "alice", "bob", "still going")),
		}}
		s := memory.NewStore()

		result, err := newTestExtractor(model, s, 5).ProcessThread(ctx, testThread())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(model.requests) != 5 {
			t.Errorf("expected exactly 5 model calls, got %d", len(model.requests))
		}
		if result.Rounds != 5 {
			t.Errorf("expected 5 rounds, got %d", result.Rounds)
		}
		if result.Termination != TerminatedByRoundCap {
			t.Errorf("expected round cap termination, got %s", result.Termination)
		}
		if result.Summary != "(no summary produced)" {
			t.Errorf("unexpected summary: %q", result.Summary)
		}

		edge, err := s.GetEdge(ctx, common.NewPair("alice", "bob"))
		if err != nil {
			t.Fatalf("edge missing: %v", err)
		}
		// five appends, one count increment for the whole thread
		if len(edge.Observations) != 5 {
			t.Errorf("expected 5 observations, got %d", len(edge.Observations))
		}
		if edge.InteractionCount != 1 {
			t.Errorf("expected interaction count 1, got %d", edge.InteractionCount)
		}
	})

	t.Run("counts deduped across rounds and operations", func(t *testing.T) {
		model := &scriptedModel{turns: []*ai.Turn{
			toolTurn(
				pairwiseCall("call_1", "alice", "bob", "first"),
				pairwiseCall("call_2", "bob", "alice", "second"),
			),
			toolTurn(pairwiseCall("call_3", "alice", "carol", "third")),
			{Content: "summary"},
		}}
		s := memory.NewStore()

		result, err := newTestExtractor(model, s, 0).ProcessThread(ctx, testThread())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Pairs) != 2 {
			t.Fatalf("expected 2 distinct pairs, got %v", result.Pairs)
		}

		ab, err := s.GetEdge(ctx, common.NewPair("alice", "bob"))
		if err != nil {
			t.Fatalf("edge missing: %v", err)
		}
		if len(ab.Observations) != 2 {
			t.Errorf("expected 2 observations on alice|bob, got %d", len(ab.Observations))
		}
		if ab.InteractionCount != 1 {
			t.Errorf("expected interaction count 1, got %d", ab.InteractionCount)
		}
	})

	t.Run("unknown tool is fatal but prior writes stand", func(t *testing.T) {
		model := &scriptedModel{turns: []*ai.Turn{
			toolTurn(pairwiseCall("call_1", "alice", "bob", "kept")),
			toolTurn(ai.ToolCall{ID: "call_2", Name: "record_feelings", Arguments: "{}"}),
		}}
		s := memory.NewStore()

		_, err := newTestExtractor(model, s, 0).ProcessThread(ctx, testThread())
		if !errors.Is(err, ErrUnknownOperation) {
			t.Fatalf("expected ErrUnknownOperation, got %v", err)
		}

		edge, err := s.GetEdge(ctx, common.NewPair("alice", "bob"))
		if err != nil {
			t.Fatalf("prior write missing: %v", err)
		}
		if len(edge.Observations) != 1 {
			t.Errorf("expected 1 observation, got %d", len(edge.Observations))
		}
		// failed threads do not get interaction credit
		if edge.InteractionCount != 0 {
			t.Errorf("expected interaction count 0, got %d", edge.InteractionCount)
		}
	})

	t.Run("malformed arguments are fatal", func(t *testing.T) {
		model := &scriptedModel{turns: []*ai.Turn{
			toolTurn(ai.ToolCall{
				ID:        "call_1",
				Name:      ToolPairwise,
				Arguments: `{"from": "alice", "to": "", "note": "half a pair"}`,
			}),
		}}

		_, err := newTestExtractor(model, memory.NewStore(), 0).ProcessThread(ctx, testThread())
		if !errors.Is(err, ErrMalformedOperation) {
			t.Fatalf("expected ErrMalformedOperation, got %v", err)
		}
	})

	t.Run("self pair records nothing and continues", func(t *testing.T) {
		model := &scriptedModel{turns: []*ai.Turn{
			toolTurn(ai.ToolCall{
				ID:        "call_1",
				Name:      ToolPairwise,
				Arguments: `{"from": "alice", "to": "alice", "note": "talks to herself"}`,
			}),
			{Content: "Nothing relational here."},
		}}
		s := memory.NewStore()

		result, err := newTestExtractor(model, s, 0).ProcessThread(ctx, testThread())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Pairs) != 0 {
			t.Errorf("expected no touched pairs, got %v", result.Pairs)
		}
		edges, err := s.Edges(ctx, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(edges) != 0 {
			t.Errorf("expected no edges, got %d", len(edges))
		}

		// The ack tells the model the event was dropped.
		last := model.requests[1]
		ack := last[len(last)-1]
		if ack.Role != "tool" || !strings.Contains(ack.Content, `"recorded":0`) {
			t.Errorf("expected zero-recorded tool ack, got %+v", ack)
		}
	})

	t.Run("empty summary gets placeholder", func(t *testing.T) {
		model := &scriptedModel{turns: []*ai.Turn{
			toolTurn(pairwiseCall("call_1", "alice", "bob", "x")),
			{Content: "   "},
		}}

		result, err := newTestExtractor(model, memory.NewStore(), 0).ProcessThread(ctx, testThread())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Summary != "(no summary produced)" {
			t.Errorf("unexpected summary: %q", result.Summary)
		}
	})

	t.Run("model error propagates", func(t *testing.T) {
		model := &scriptedModel{err: errors.New("upstream down")}
		_, err := newTestExtractor(model, memory.NewStore(), 0).ProcessThread(ctx, testThread())
		if err == nil || !strings.Contains(err.Error(), "upstream down") {
			t.Fatalf("expected upstream error, got %v", err)
		}
	})
}
