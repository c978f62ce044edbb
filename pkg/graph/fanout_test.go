package graph

import (
	"errors"
	"sort"
	"testing"

	"github.com/nexuslab/nexus/pkg/ai"
	"github.com/nexuslab/nexus/pkg/common"
	"github.com/nexuslab/nexus/pkg/identity"
)

func testResolver() *identity.Resolver {
	return identity.NewResolver(identity.NewResolverParams{})
}

func pairKeys(pairs []common.Pair) []string {
	keys := make([]string, 0, len(pairs))
	for _, p := range pairs {
		keys = append(keys, p.Key())
	}
	sort.Strings(keys)
	return keys
}

func assertKeys(t *testing.T, got []common.Pair, want []string) {
	t.Helper()
	sort.Strings(want)
	gotKeys := pairKeys(got)
	if len(gotKeys) != len(want) {
		t.Fatalf("expected %d pairs, got %d (%v)", len(want), len(gotKeys), gotKeys)
	}
	for i := range want {
		if gotKeys[i] != want[i] {
			t.Errorf("pair %d: expected %q, got %q", i, want[i], gotKeys[i])
		}
	}
}

func TestPairwiseOpPairs(t *testing.T) {
	r := testResolver()

	t.Run("single edge regardless of order", func(t *testing.T) {
		a, err := PairwiseOp{From: "bob", To: "alice", Note: "x"}.Pairs(r)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		b, err := PairwiseOp{From: "alice", To: "bob", Note: "x"}.Pairs(r)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a[0].Key() != b[0].Key() {
			t.Errorf("expected identical keys, got %q and %q", a[0].Key(), b[0].Key())
		}
		assertKeys(t, a, []string{"alice|bob"})
	})

	t.Run("self pair drops to nothing", func(t *testing.T) {
		pairs, err := PairwiseOp{From: "alice@example.com", To: "Alice@Example.com", Note: "x"}.Pairs(r)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(pairs) != 0 {
			t.Errorf("expected no pairs, got %v", pairs)
		}
	})

	t.Run("unresolvable member rejected", func(t *testing.T) {
		_, err := PairwiseOp{From: "alice", To: "   ", Note: "x"}.Pairs(r)
		if !errors.Is(err, ErrMalformedOperation) {
			t.Errorf("expected ErrMalformedOperation, got %v", err)
		}
	})
}

func TestBroadcastOpPairs(t *testing.T) {
	r := testResolver()

	t.Run("sender to each recipient", func(t *testing.T) {
		pairs, err := BroadcastOp{
			From:       "alice",
			Recipients: []string{"bob", "carol"},
			Note:       "x",
		}.Pairs(r)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertKeys(t, pairs, []string{"alice|bob", "alice|carol"})
	})

	t.Run("link recipients adds recipient pairs", func(t *testing.T) {
		pairs, err := BroadcastOp{
			From:           "alice",
			Recipients:     []string{"bob", "carol"},
			Note:           "x",
			LinkRecipients: true,
		}.Pairs(r)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertKeys(t, pairs, []string{"alice|bob", "alice|carol", "bob|carol"})
	})

	t.Run("sender in recipients drops self edge", func(t *testing.T) {
		pairs, err := BroadcastOp{
			From:       "alice@example.com",
			Recipients: []string{"Alice@Example.com", "bob@example.com"},
			Note:       "x",
		}.Pairs(r)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertKeys(t, pairs, []string{"alice@example.com|bob@example.com"})
	})

	t.Run("duplicate recipients deduped", func(t *testing.T) {
		pairs, err := BroadcastOp{
			From:       "alice",
			Recipients: []string{"bob", "bob", "bob"},
			Note:       "x",
		}.Pairs(r)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertKeys(t, pairs, []string{"alice|bob"})
	})

	t.Run("broadcast to only self is malformed", func(t *testing.T) {
		_, err := BroadcastOp{
			From:       "alice",
			Recipients: []string{"alice"},
			Note:       "x",
		}.Pairs(r)
		if !errors.Is(err, ErrMalformedOperation) {
			t.Errorf("expected ErrMalformedOperation, got %v", err)
		}
	})
}

func TestGroupOpPairs(t *testing.T) {
	r := testResolver()

	t.Run("full clique", func(t *testing.T) {
		pairs, err := GroupOp{
			People: []string{"alice", "bob", "carol", "dave"},
			Note:   "x",
		}.Pairs(r)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertKeys(t, pairs, []string{
			"alice|bob", "alice|carol", "alice|dave",
			"bob|carol", "bob|dave", "carol|dave",
		})
	})

	t.Run("group of one is malformed", func(t *testing.T) {
		_, err := GroupOp{People: []string{"alice@example.com", "Alice@Example.com"}, Note: "x"}.Pairs(r)
		if !errors.Is(err, ErrMalformedOperation) {
			t.Errorf("expected ErrMalformedOperation, got %v", err)
		}
	})
}

func TestDecodeOperation(t *testing.T) {
	t.Run("pairwise", func(t *testing.T) {
		op, err := DecodeOperation(ai.ToolCall{
			Name:      ToolPairwise,
			Arguments: `{"from": "alice", "to": "bob", "note": "manager"}`,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if op.Observation() != "manager" {
			t.Errorf("expected note %q, got %q", "manager", op.Observation())
		}
	})

	t.Run("repairs malformed json", func(t *testing.T) {
		op, err := DecodeOperation(ai.ToolCall{
			Name:      ToolGroup,
			Arguments: `{people: ["alice", "bob"], note: "standup"}`,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		group, ok := op.(GroupOp)
		if !ok {
			t.Fatalf("expected GroupOp, got %T", op)
		}
		if len(group.People) != 2 {
			t.Errorf("expected 2 people, got %d", len(group.People))
		}
	})

	t.Run("unknown tool", func(t *testing.T) {
		_, err := DecodeOperation(ai.ToolCall{Name: "record_something_else", Arguments: "{}"})
		if !errors.Is(err, ErrUnknownOperation) {
			t.Errorf("expected ErrUnknownOperation, got %v", err)
		}
	})

	t.Run("empty note", func(t *testing.T) {
		_, err := DecodeOperation(ai.ToolCall{
			Name:      ToolPairwise,
			Arguments: `{"from": "alice", "to": "bob", "note": "  "}`,
		})
		if !errors.Is(err, ErrMalformedOperation) {
			t.Errorf("expected ErrMalformedOperation, got %v", err)
		}
	})

	t.Run("unrecoverable arguments", func(t *testing.T) {
		_, err := DecodeOperation(ai.ToolCall{Name: ToolBroadcast, Arguments: `[1, 2`})
		if !errors.Is(err, ErrMalformedOperation) {
			t.Errorf("expected ErrMalformedOperation, got %v", err)
		}
	})
}

func TestExtractionTools(t *testing.T) {
	tools := ExtractionTools()
	if len(tools) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(tools))
	}
	names := map[string]bool{}
	for _, tool := range tools {
		names[tool.Name] = true
		if tool.Parameters["type"] != "object" {
			t.Errorf("tool %s: expected object schema, got %v", tool.Name, tool.Parameters["type"])
		}
	}
	for _, want := range []string{ToolPairwise, ToolBroadcast, ToolGroup} {
		if !names[want] {
			t.Errorf("missing tool %s", want)
		}
	}
}
