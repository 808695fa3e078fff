package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"cv-evaluation-service/internal/domain/ports/adapter"
)

var (
	_ adapter.LLMClient = (*GeminiClient)(nil)
	_ adapter.Embedder  = (*GeminiClient)(nil)
)

// GeminiClient implements the LLM and embedding ports with the official
// genai SDK. It carries no mutable state beyond the SDK client, so it is
// safe for concurrent stage executors.
type GeminiClient struct {
	client     *genai.Client
	model      string
	embedModel string
}

func NewGeminiClient(ctx context.Context, apiKey, model, embedModel string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiClient{client: c, model: model, embedModel: embedModel}, nil
}

func (g *GeminiClient) Complete(ctx context.Context, prompt adapter.Prompt, opts adapter.CompleteOptions) (string, error) {
	temp := opts.Temperature
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: int32(opts.MaxOutputTokens),
	}
	if prompt.System != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: prompt.System}},
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt.User), cfg)
	if err != nil {
		return "", classifyGenAIErr(err)
	}
	if resp == nil {
		return "", &adapter.ProviderError{Transient: true, Err: errors.New("gemini: nil response")}
	}
	text := resp.Text()
	if text == "" {
		// Blocked or truncated candidates come back empty; a re-prompt
		// usually clears it.
		return "", &adapter.ProviderError{Transient: true, Err: errors.New("gemini: empty response text")}
	}
	return text, nil
}

func (g *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	// The embedding endpoint truncates around 10k tokens; cut early to keep
	// the request under the wire limit.
	if len(text) > 40000 {
		text = text[:40000]
	}
	result, err := g.client.Models.EmbedContent(ctx, g.embedModel, genai.Text(text), nil)
	if err != nil {
		return nil, classifyGenAIErr(err)
	}
	if result == nil || len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("gemini: empty embedding result")
	}
	return result.Embeddings[0].Values, nil
}

func classifyGenAIErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &adapter.ProviderError{
			Transient: transientStatus(apiErr.Code),
			Status:    apiErr.Code,
			Err:       err,
		}
	}
	return wrapTransportErr(err)
}
