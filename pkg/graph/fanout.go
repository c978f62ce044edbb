package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nexuslab/nexus/pkg/ai"
	"github.com/nexuslab/nexus/pkg/common"
	"github.com/nexuslab/nexus/pkg/identity"
)

// Tool names the extraction model calls to record observations.
const (
	ToolPairwise  = "record_pairwise_observation"
	ToolBroadcast = "record_broadcast_observation"
	ToolGroup     = "record_group_observation"
)

var (
	// ErrUnknownOperation means the model invoked a tool that was never
	// declared. This is unrecoverable for the conversation.
	ErrUnknownOperation = errors.New("unknown graph operation")

	// ErrMalformedOperation means the tool arguments could not be decoded
	// or failed validation even after repair.
	ErrMalformedOperation = errors.New("malformed graph operation")
)

// Operation is one decoded tool call against the relationship graph. Pairs
// expands the operation into the undirected edges it touches, with every
// participant id already resolved to canonical form.
type Operation interface {
	// Pairs returns the deduplicated set of edges this operation touches.
	// Self edges are dropped, not errored; a pairwise self event yields an
	// empty set. Unresolvable members, and broadcast or group shapes that
	// cannot touch any edge, are malformed.
	Pairs(resolver *identity.Resolver) ([]common.Pair, error)

	// Observation returns the free-text note to append to every touched edge.
	Observation() string
}

// PairwiseOp records an observation about exactly two people.
type PairwiseOp struct {
	From string `json:"from" jsonschema_description:"Identifier of the first person"`
	To   string `json:"to" jsonschema_description:"Identifier of the second person"`
	Note string `json:"note" jsonschema_description:"One observation about the relationship between the two people"`
}

func (op PairwiseOp) Pairs(resolver *identity.Resolver) ([]common.Pair, error) {
	from := resolver.Resolve(op.From)
	to := resolver.Resolve(op.To)
	if from == "" || to == "" {
		return nil, fmt.Errorf(
			"%w: unresolvable pair member: %q / %q",
			ErrMalformedOperation, op.From, op.To,
		)
	}
	// Both sides resolving to the same person is a degenerate event, not a
	// protocol violation. It records nothing.
	if from == to {
		return nil, nil
	}
	return []common.Pair{common.NewPair(from, to)}, nil
}

func (op PairwiseOp) Observation() string { return op.Note }

// BroadcastOp records an observation from one sender toward a set of
// recipients, one edge per sender-recipient pair. With LinkRecipients the
// recipients are additionally linked among themselves.
type BroadcastOp struct {
	From           string   `json:"from" jsonschema_description:"Identifier of the sender"`
	Recipients     []string `json:"recipients" jsonschema_description:"Identifiers of the recipients"`
	Note           string   `json:"note" jsonschema_description:"One observation that applies to the sender's relationship with each recipient"`
	LinkRecipients bool     `json:"link_recipients,omitempty" jsonschema_description:"Also link every pair of recipients to each other"`
}

func (op BroadcastOp) Pairs(resolver *identity.Resolver) ([]common.Pair, error) {
	from := resolver.Resolve(op.From)
	if from == "" {
		return nil, fmt.Errorf("%w: empty sender", ErrMalformedOperation)
	}
	recipients := resolver.ResolveAll(op.Recipients)
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: no recipients", ErrMalformedOperation)
	}

	var pairs []common.Pair
	for _, r := range recipients {
		pairs = append(pairs, common.NewPair(from, r))
	}
	if op.LinkRecipients {
		pairs = append(pairs, clique(recipients)...)
	}

	pairs = dropDegenerate(pairs)
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: broadcast touches no edges", ErrMalformedOperation)
	}
	return pairs, nil
}

func (op BroadcastOp) Observation() string { return op.Note }

// GroupOp records an observation shared by everyone in a group, linking
// every pair of members.
type GroupOp struct {
	People []string `json:"people" jsonschema_description:"Identifiers of everyone in the group"`
	Note   string   `json:"note" jsonschema_description:"One observation that applies to every pair in the group"`
}

func (op GroupOp) Pairs(resolver *identity.Resolver) ([]common.Pair, error) {
	people := resolver.ResolveAll(op.People)
	if len(people) < 2 {
		return nil, fmt.Errorf(
			"%w: group needs at least two distinct people, got %d",
			ErrMalformedOperation, len(people),
		)
	}

	pairs := dropDegenerate(clique(people))
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: group touches no edges", ErrMalformedOperation)
	}
	return pairs, nil
}

func (op GroupOp) Observation() string { return op.Note }

// clique returns one pair per unordered combination of members.
func clique(members []string) []common.Pair {
	var pairs []common.Pair
	for i := range members {
		for j := i + 1; j < len(members); j++ {
			pairs = append(pairs, common.NewPair(members[i], members[j]))
		}
	}
	return pairs
}

func dropDegenerate(pairs []common.Pair) []common.Pair {
	seen := make(map[string]struct{}, len(pairs))
	out := pairs[:0]
	for _, p := range pairs {
		if p.IsSelf() || p.A == "" || p.B == "" {
			continue
		}
		if _, ok := seen[p.Key()]; ok {
			continue
		}
		seen[p.Key()] = struct{}{}
		out = append(out, p)
	}
	return out
}

// DecodeOperation turns a raw tool call into a typed Operation. The note is
// required for every operation kind; everything else is validated by Pairs.
func DecodeOperation(call ai.ToolCall) (Operation, error) {
	switch call.Name {
	case ToolPairwise:
		var op PairwiseOp
		if err := decodeArgs(call.Arguments, &op); err != nil {
			return nil, err
		}
		return op, nil
	case ToolBroadcast:
		var op BroadcastOp
		if err := decodeArgs(call.Arguments, &op); err != nil {
			return nil, err
		}
		return op, nil
	case ToolGroup:
		var op GroupOp
		if err := decodeArgs(call.Arguments, &op); err != nil {
			return nil, err
		}
		return op, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, call.Name)
	}
}

func decodeArgs(raw string, out interface{ Observation() string }) error {
	if err := ai.UnmarshalFlexible(raw, out); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedOperation, err)
	}
	if strings.TrimSpace(out.Observation()) == "" {
		return fmt.Errorf("%w: empty note", ErrMalformedOperation)
	}
	return nil
}

// ExtractionTools declares the three observation tools for the model.
func ExtractionTools() []ai.ToolDef {
	return []ai.ToolDef{
		{
			Name:        ToolPairwise,
			Description: "Record one observation about the relationship between exactly two people.",
			Parameters:  schemaMap(PairwiseOp{}),
		},
		{
			Name:        ToolBroadcast,
			Description: "Record one observation from a sender toward multiple recipients. Set link_recipients when the recipients also relate to each other through this event.",
			Parameters:  schemaMap(BroadcastOp{}),
		},
		{
			Name:        ToolGroup,
			Description: "Record one observation shared by every member of a group, linking all pairs.",
			Parameters:  schemaMap(GroupOp{}),
		},
	}
}

// schemaMap renders a reflected schema into the generic map form the model
// adapters expect.
func schemaMap(value any) map[string]any {
	data, err := json.Marshal(ai.GenerateSchema(value))
	if err != nil {
		// reflection over our own types cannot produce invalid JSON
		panic(err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		panic(err)
	}
	return out
}
