package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/logging"
)

// GeminiClient wraps Google's Generative AI SDK for investigation
// completions
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a Gemini API client
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{client: client, model: model}, nil
}

// Complete sends a prompt and returns the text response
func (c *GeminiClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	genConfig := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction(systemPrompt),
		Temperature:       ptrFloat32(0.1),
		MaxOutputTokens:   2000,
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(userPrompt), genConfig)
	if err != nil {
		return "", fmt.Errorf("gemini completion failed: %w", err)
	}

	text, err := firstCandidateText(resp)
	if err != nil {
		return "", err
	}

	logging.Debug("gemini completion",
		"model", c.model,
		"prompt_length", len(userPrompt),
		"response_length", len(text))
	return text, nil
}

// CompleteJSON sends a prompt requesting a JSON response via Gemini's
// native JSON mode
func (c *GeminiClient) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	genConfig := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction(systemPrompt),
		Temperature:       ptrFloat32(0.1),
		ResponseMIMEType:  "application/json",
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(userPrompt), genConfig)
	if err != nil {
		return "", fmt.Errorf("gemini json completion failed: %w", err)
	}

	text, err := firstCandidateText(resp)
	if err != nil {
		return "", err
	}

	logging.Debug("gemini json completion",
		"model", c.model,
		"prompt_length", len(userPrompt),
		"response_length", len(text))
	return text, nil
}

// Close releases resources held by the client
func (c *GeminiClient) Close() error {
	// current SDK needs no explicit cleanup
	return nil
}

func systemInstruction(systemPrompt string) *genai.Content {
	if systemPrompt == "" {
		return nil
	}
	return genai.Text(systemPrompt)[0]
}

func firstCandidateText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no content parts")
	}
	return candidate.Content.Parts[0].Text, nil
}

func ptrFloat32(f float64) *float32 {
	f32 := float32(f)
	return &f32
}
