package ollama

import (
	"net/http"
	"net/url"
	"sync"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"

	"github.com/nexuslab/nexus/pkg/ai"
)

// ModelOllamaClient implements the ai.ModelClient interface against a
// locally-hosted Ollama server. A weighted semaphore bounds concurrent
// requests so the backfill worker pool cannot overload the host.
type ModelOllamaClient struct {
	extractionModel string
	summaryModel    string
	embeddingModel  string

	reqLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client

	Client *api.Client
}

// NewModelOllamaClientParams contains configuration options for creating a
// new ModelOllamaClient.
type NewModelOllamaClientParams struct {
	ExtractionModel string
	SummaryModel    string
	EmbeddingModel  string

	BaseURL string
	ApiKey  string

	MaxConcurrentRequests int64
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone so original request isn't modified
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		// don't overwrite if already set
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewModelOllamaClient creates a new Ollama-backed client. It connects to
// the server at BaseURL (or the default if empty) and uses the configured
// models for extraction turns, summaries, and embeddings.
func NewModelOllamaClient(
	params NewModelOllamaClientParams,
) (*ModelOllamaClient, error) {
	var (
		u   *url.URL
		err error
	)

	if params.BaseURL != "" {
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	httpClient := &http.Client{
		Transport: &headerTransport{
			headers: map[string]string{
				"Authorization": "Bearer " + params.ApiKey,
			},
			rt: http.DefaultTransport,
		},
	}

	cli := api.NewClient(u, httpClient)

	maxConcurrent := params.MaxConcurrentRequests
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	return &ModelOllamaClient{
		extractionModel: params.ExtractionModel,
		summaryModel:    params.SummaryModel,
		embeddingModel:  params.EmbeddingModel,

		reqLock: semaphore.NewWeighted(maxConcurrent),

		metricsLock: sync.Mutex{},
		metrics:     ai.ModelMetrics{},

		baseURL:    u,
		apiKey:     params.ApiKey,
		httpClient: httpClient,

		Client: cli,
	}, nil
}
