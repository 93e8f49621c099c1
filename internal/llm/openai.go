package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"

	"github.com/Epistemic-Technology/study-rag/internal/config"
	"github.com/Epistemic-Technology/study-rag/internal/logger"
)

// ResponseFormat selects how the completion service shapes its output.
type ResponseFormat int

const (
	FormatFreeText ResponseFormat = iota
	// FormatJSONObject asks for a single JSON object. The prompt must mention JSON.
	FormatJSONObject
)

const (
	serviceCompletion = "completion"
	serviceEmbedding  = "embedding"
)

// Completer turns a prompt into generated text.
type Completer interface {
	Complete(ctx context.Context, prompt string, format ResponseFormat) (string, error)
}

// Embedder turns text into fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ErrMissingAPIKey is returned when no OpenAI key is configured.
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY is not set")

// OpenAIClient implements Completer and Embedder against the OpenAI API.
type OpenAIClient struct {
	client         openai.Client
	chatModel      string
	embeddingModel string
	timeout        time.Duration
	maxRetries     int
	log            logger.Logger
}

// NewOpenAIClient builds a client from configuration. SDK-level retries are
// disabled; RateLimitedCall owns the retry policy.
func NewOpenAIClient(cfg config.OpenAIConfig, log logger.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &OpenAIClient{
		client:         openai.NewClient(opts...),
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
		timeout:        timeout,
		maxRetries:     cfg.MaxRetries,
		log:            log.With("llm"),
	}, nil
}

// Complete sends prompt as a single user message and returns the output text.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string, format ResponseFormat) (string, error) {
	c.log.Debug("Calling OpenAI API for completion (prompt length: %d chars)", len(prompt))

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(c.chatModel),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: responses.ResponseInputParam{
				responses.ResponseInputItemParamOfMessage(
					responses.ResponseInputMessageContentListParam{
						responses.ResponseInputContentParamOfInputText(prompt),
					},
					"user",
				),
			},
		},
	}
	if format == FormatJSONObject {
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
			},
		}
	}

	text, err := RateLimitedCall(ctx, EstimateTokens(prompt), c.maxRetries, c.log, func(ctx context.Context) (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		response, err := c.client.Responses.New(callCtx, params)
		if err != nil {
			return "", err
		}
		return response.OutputText(), nil
	})
	if err != nil {
		c.log.Error("Completion failed: %v", err)
		return "", ClassifyError(serviceCompletion, err)
	}
	return text, nil
}

// Embed returns the embedding for a single text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in one request. Results are returned in input order.
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	c.log.Debug("Embedding %d texts with %s", len(texts), c.embeddingModel)

	vectors, err := RateLimitedCall(ctx, EstimateTokens(texts...), c.maxRetries, c.log, func(ctx context.Context) ([][]float32, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		resp, err := c.client.Embeddings.New(callCtx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
			Model: openai.EmbeddingModel(c.embeddingModel),
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Data) != len(texts) {
			return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
		}

		sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
		out := make([][]float32, len(resp.Data))
		for i, d := range resp.Data {
			out[i] = toFloat32(d.Embedding)
		}
		return out, nil
	})
	if err != nil {
		c.log.Error("Embedding failed: %v", err)
		return nil, ClassifyError(serviceEmbedding, err)
	}
	return vectors, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

var (
	_ Completer = (*OpenAIClient)(nil)
	_ Embedder  = (*OpenAIClient)(nil)
)
