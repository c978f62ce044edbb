package ai

import (
	"context"
	"errors"
	"testing"
	"time"
)

type flakyClient struct {
	calls int
	err   error
}

func (f *flakyClient) ChatTurn(ctx context.Context, messages []Message, tools []ToolDef, opts ...GenerateOption) (*Turn, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &Turn{Content: "ok"}, nil
}

func (f *flakyClient) GenerateCompletion(ctx context.Context, prompt string, opts ...GenerateOption) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "ok", nil
}

func (f *flakyClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1}, nil
}

func (f *flakyClient) ResetMetrics()            {}
func (f *flakyClient) GetMetrics() ModelMetrics { return ModelMetrics{} }

func TestGuardedClient_PassThrough(t *testing.T) {
	inner := &flakyClient{}
	g := NewGuardedClient(inner, GuardedClientParams{})

	out, err := g.GenerateCompletion(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "ok" {
		t.Fatalf("expected ok, got %q", out)
	}
	if inner.calls != 1 {
		t.Fatalf("expected 1 inner call, got %d", inner.calls)
	}
}

func TestGuardedClient_TripsAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyClient{err: errors.New("upstream down")}
	g := NewGuardedClient(inner, GuardedClientParams{
		MaxFailures: 3,
		OpenTimeout: time.Minute,
	})

	ctx := context.Background()
	for range 3 {
		if _, err := g.GenerateCompletion(ctx, "ping"); err == nil {
			t.Fatal("expected failure")
		}
	}
	if inner.calls != 3 {
		t.Fatalf("expected 3 inner calls before trip, got %d", inner.calls)
	}

	_, err := g.GenerateCompletion(ctx, "ping")
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if inner.calls != 3 {
		t.Fatalf("open circuit must not reach inner client, calls = %d", inner.calls)
	}
}

// hangingClient blocks until its context is cancelled.
type hangingClient struct {
	flakyClient
}

func (h *hangingClient) ChatTurn(ctx context.Context, messages []Message, tools []ToolDef, opts ...GenerateOption) (*Turn, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestGuardedClient_CallTimeoutBoundsHungCalls(t *testing.T) {
	g := NewGuardedClient(&hangingClient{}, GuardedClientParams{
		CallTimeout: 20 * time.Millisecond,
	})

	start := time.Now()
	_, err := g.ChatTurn(context.Background(), []Message{UserMessage("hi")}, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("hung call not bounded, took %v", elapsed)
	}
}

func TestGuardedClient_ChatTurnResult(t *testing.T) {
	inner := &flakyClient{}
	g := NewGuardedClient(inner, GuardedClientParams{})

	turn, err := g.ChatTurn(context.Background(), []Message{UserMessage("hi")}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if turn.Content != "ok" {
		t.Fatalf("unexpected turn: %+v", turn)
	}
}
