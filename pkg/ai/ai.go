package ai

import "context"

// ToolDef declares a function the model may call during a chat turn.
// Parameters holds a JSON Schema describing the expected arguments.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is a request from the model to invoke a declared tool.
// Arguments is the raw JSON-encoded argument payload as produced by the
// model; callers decode and validate it themselves.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Message is a single entry in a chat transcript.
//
// Role must be one of:
//   - "system"    → instruction message
//   - "user"      → a user-provided message
//   - "assistant" → a model message, possibly carrying tool calls
//   - "tool"      → a tool result, with ToolCallID referencing the call
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: "system", Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// ToolMessage builds a tool-result message for the given call id.
func ToolMessage(content, toolCallID string) Message {
	return Message{Role: "tool", Content: content, ToolCallID: toolCallID}
}

// Turn is the model's reply to exactly one chat request. A turn either
// carries tool calls (the conversation continues) or plain content (the
// model is done).
type Turn struct {
	Content   string
	ToolCalls []ToolCall
}

// GenerateOptions holds configuration for model requests.
type GenerateOptions struct {
	Model         string   // Model identifier to use for generation
	SystemPrompts []string // System prompts prepended to the request
	Temperature   float64  // Sampling temperature (0.0-2.0)
	Thinking      string   // Extended thinking mode configuration
}

// GenerateOption is a functional option for configuring model requests.
type GenerateOption func(*GenerateOptions)

// WithModel returns a GenerateOption that sets the model to use.
func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Model = model
	}
}

// WithSystemPrompts returns a GenerateOption that sets the system prompts
// to prepend to the request.
func WithSystemPrompts(prompts ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.SystemPrompts = prompts
	}
}

// WithTemperature returns a GenerateOption that sets the sampling temperature.
// Higher values (e.g., 1.0) produce more random outputs, while lower values
// (e.g., 0.2) make outputs more focused and deterministic.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = temp
	}
}

// WithThinking returns a GenerateOption that enables extended thinking mode.
// The thinking parameter specifies the thinking budget or mode configuration.
func WithThinking(thinking string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Thinking = thinking
	}
}

// ModelMetrics contains accumulated performance metrics from model operations.
type ModelMetrics struct {
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
	TotalTokens    int     `json:"total_tokens"`
	DurationMs     int64   `json:"duration_ms"`
	TokenPerSecond float32 `json:"tokens_per_second"`
}

// ModelClient is the model side of relationship extraction and summarization.
//
// ChatTurn performs exactly one request against the model: it sends the
// transcript and tool declarations and returns the model's single reply.
// Transcript bookkeeping, tool dispatch, and round limits are owned by the
// caller, which is what makes per-conversation round caps enforceable.
type ModelClient interface {
	ChatTurn(
		ctx context.Context,
		messages []Message,
		tools []ToolDef,
		opts ...GenerateOption,
	) (*Turn, error)

	GenerateCompletion(
		ctx context.Context,
		prompt string,
		opts ...GenerateOption,
	) (string, error)

	GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error)

	ResetMetrics()
	GetMetrics() ModelMetrics
}
