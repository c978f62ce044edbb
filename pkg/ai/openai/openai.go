package openai

import (
	"sync"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"

	"github.com/nexuslab/nexus/pkg/ai"
)

// ModelOpenAIClient talks to any OpenAI-compatible API (OpenAI, OpenRouter,
// vLLM). It keeps separate clients for chat and embedding endpoints so the
// two can point at different providers.
//
// A ModelOpenAIClient should be created using NewModelOpenAIClient.
type ModelOpenAIClient struct {
	extractionModel string
	summaryModel    string
	embeddingModel  string

	chatURL      string
	chatKey      string
	embeddingURL string
	embeddingKey string

	reqLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// NewModelOpenAIClientParams defines the configuration for creating a new
// ModelOpenAIClient.
//
// ExtractionModel is used for tool-calling chat turns, SummaryModel for
// plain completions, EmbeddingModel for embeddings. ChatURL/ChatKey and
// EmbeddingURL/EmbeddingKey configure the two endpoints independently.
type NewModelOpenAIClientParams struct {
	ExtractionModel string
	SummaryModel    string
	EmbeddingModel  string

	ChatURL      string
	ChatKey      string
	EmbeddingURL string
	EmbeddingKey string

	MaxConcurrentRequests int64
}

// NewModelOpenAIClient creates a ModelOpenAIClient configured with the
// provided parameters.
//
// Example:
//
//	client := openai.NewModelOpenAIClient(openai.NewModelOpenAIClientParams{
//		ExtractionModel: "gpt-4o-mini",
//		SummaryModel:    "gpt-4o-mini",
//		EmbeddingModel:  "text-embedding-3-small",
//		ChatURL:         "https://openrouter.ai/api/v1",
//		ChatKey:         os.Getenv("AI_CHAT_KEY"),
//	}
func NewModelOpenAIClient(params NewModelOpenAIClientParams) *ModelOpenAIClient {
	chatClient := newOpenaiClient(params.ChatURL, params.ChatKey)
	embedClient := newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey)

	maxConcurrent := params.MaxConcurrentRequests
	if maxConcurrent <= 0 {
		maxConcurrent = 15
	}

	return &ModelOpenAIClient{
		extractionModel: params.ExtractionModel,
		summaryModel:    params.SummaryModel,
		embeddingModel:  params.EmbeddingModel,

		chatURL:      params.ChatURL,
		chatKey:      params.ChatKey,
		embeddingURL: params.EmbeddingURL,
		embeddingKey: params.EmbeddingKey,

		reqLock: semaphore.NewWeighted(maxConcurrent),

		metricsLock: sync.Mutex{},
		metrics:     ai.ModelMetrics{},

		ChatClient:      chatClient,
		EmbeddingClient: embedClient,
	}
}

func newOpenaiClient(baseURL string, apiKey string) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}
