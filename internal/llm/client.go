package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/sashabaranov/go-openai"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/config"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/logging"
)

// Provider represents the LLM provider
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
	ProviderNone   Provider = "none"
)

// Client is the multi-provider completion interface the demo and live
// agents run on. Mock runs never construct one.
type Client struct {
	provider     Provider
	openaiClient *openai.Client
	geminiClient *GeminiClient
	limiter      *RateLimiter
	enabled      bool
	fastModel    string // domain agents and investigator turns
	deepModel    string // summary synthesis

	mu          sync.Mutex
	totalTokens int64
	costUSD     float64
}

// NewClient creates a client for the configured provider. With no API
// key the client comes back disabled, which callers must check.
func NewClient(ctx context.Context, api config.APIConfig, limiter *RateLimiter) (*Client, error) {
	switch Provider(api.Provider) {
	case ProviderGemini:
		return newGeminiBacked(ctx, api, limiter)
	case ProviderOpenAI, "":
		return newOpenAIBacked(api, limiter)
	default:
		logging.Warn("unknown llm provider, falling back to openai", "provider", api.Provider)
		return newOpenAIBacked(api, limiter)
	}
}

func newOpenAIBacked(api config.APIConfig, limiter *RateLimiter) (*Client, error) {
	fastModel := api.OpenAIModel
	if fastModel == "" {
		fastModel = "gpt-4o-mini"
	}

	if api.OpenAIKey == "" {
		logging.Warn("no OpenAI API key configured, llm client disabled")
		return &Client{provider: ProviderNone, fastModel: fastModel, deepModel: "gpt-4o"}, nil
	}

	logging.Info("openai client initialized", "fast_model", fastModel, "deep_model", "gpt-4o")
	return &Client{
		provider:     ProviderOpenAI,
		openaiClient: openai.NewClient(api.OpenAIKey),
		limiter:      limiter,
		enabled:      true,
		fastModel:    fastModel,
		deepModel:    "gpt-4o",
	}, nil
}

func newGeminiBacked(ctx context.Context, api config.APIConfig, limiter *RateLimiter) (*Client, error) {
	model := api.GeminiModel
	if model == "" {
		model = "gemini-2.0-flash"
	}

	if api.GeminiKey == "" {
		logging.Warn("no Gemini API key configured, llm client disabled")
		return &Client{provider: ProviderNone, fastModel: model, deepModel: "gemini-1.5-pro"}, nil
	}

	geminiClient, err := NewGeminiClient(ctx, api.GeminiKey, model)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	logging.Info("gemini client initialized", "model", model)
	return &Client{
		provider:     ProviderGemini,
		geminiClient: geminiClient,
		limiter:      limiter,
		enabled:      true,
		fastModel:    model,
		deepModel:    "gemini-1.5-pro",
	}, nil
}

// IsEnabled reports whether a provider is configured and usable
func (c *Client) IsEnabled() bool {
	return c.enabled
}

// GetProvider returns the active provider
func (c *Client) GetProvider() Provider {
	return c.provider
}

// Complete sends a prompt using the fast model
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.complete(ctx, systemPrompt, userPrompt, c.fastModel, false)
}

// CompleteJSON sends a prompt requesting a JSON object response
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.complete(ctx, systemPrompt, userPrompt, c.fastModel, true)
}

// CompleteWithDeepModel uses the deep model for synthesis-heavy work
func (c *Client) CompleteWithDeepModel(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.complete(ctx, systemPrompt, userPrompt, c.deepModel, false)
}

func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt, model string, jsonMode bool) (string, error) {
	if !c.enabled {
		return "", fmt.Errorf("llm client not enabled (no API key configured)")
	}

	if c.limiter != nil {
		estimated := int64(len(systemPrompt)+len(userPrompt))/4 + 2000
		if err := c.limiter.Wait(ctx, estimated); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}
	}

	switch c.provider {
	case ProviderGemini:
		var text string
		var err error
		if jsonMode {
			text, err = c.geminiClient.CompleteJSON(ctx, systemPrompt, userPrompt)
		} else {
			text, err = c.geminiClient.Complete(ctx, systemPrompt, userPrompt)
		}
		if err != nil {
			return "", err
		}
		c.recordUsage(model, int64(len(systemPrompt)+len(userPrompt))/4, int64(len(text))/4)
		return text, nil

	case ProviderOpenAI:
		return c.completeOpenAI(ctx, systemPrompt, userPrompt, model, jsonMode)

	default:
		return "", fmt.Errorf("no provider configured")
	}
}

func (c *Client) completeOpenAI(ctx context.Context, systemPrompt, userPrompt, model string, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.1,
		MaxTokens:   2000,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.openaiClient.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}

	c.recordUsage(model, int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens))

	response := resp.Choices[0].Message.Content
	logging.Debug("openai completion",
		"model", model,
		"prompt_length", len(userPrompt),
		"response_length", len(response),
		"tokens_used", resp.Usage.TotalTokens)
	return response, nil
}

// per-million-token prices, input / output
var modelPricing = map[string][2]float64{
	"gpt-4o-mini":      {0.15, 0.60},
	"gpt-4o":           {2.50, 10.00},
	"gemini-2.0-flash": {0.10, 0.40},
	"gemini-1.5-pro":   {1.25, 5.00},
}

func (c *Client) recordUsage(model string, promptTokens, completionTokens int64) {
	pricing, ok := modelPricing[model]
	if !ok {
		pricing = modelPricing["gpt-4o-mini"]
	}
	cost := float64(promptTokens)/1e6*pricing[0] + float64(completionTokens)/1e6*pricing[1]

	c.mu.Lock()
	c.totalTokens += promptTokens + completionTokens
	c.costUSD += cost
	c.mu.Unlock()
}

// CostUSD returns the estimated spend accumulated by this client. The
// live-mode guard polls it after every provider call.
func (c *Client) CostUSD() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.costUSD
}

// TotalTokens returns the cumulative token count
func (c *Client) TotalTokens() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalTokens
}

// Close releases provider resources
func (c *Client) Close() error {
	if c.geminiClient != nil {
		return c.geminiClient.Close()
	}
	return nil
}
