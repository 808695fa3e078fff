package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cv-evaluation-service/internal/domain/ports/adapter"
)

var (
	_ adapter.LLMClient = (*OpenAIClient)(nil)
	_ adapter.Embedder  = (*OpenAIClient)(nil)
)

// OpenAIClient implements the LLM and embedding ports against any
// OpenAI-compatible chat-completions gateway. Base URL defaults to the
// OpenAI API and is configurable for compatible providers.
type OpenAIClient struct {
	apiKey     string
	base       string
	model      string
	embedModel string
	client     *http.Client
}

func NewOpenAIClient(apiKey, base, model, embedModel string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("openai: empty api key")
	}
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	if embedModel == "" {
		embedModel = "text-embedding-3-small"
	}
	return &OpenAIClient{
		apiKey:     apiKey,
		base:       strings.TrimRight(base, "/"),
		model:      model,
		embedModel: embedModel,
		client:     &http.Client{Timeout: 60 * time.Second},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (o *OpenAIClient) Complete(ctx context.Context, prompt adapter.Prompt, opts adapter.CompleteOptions) (string, error) {
	msgs := make([]chatMessage, 0, 2)
	if prompt.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: prompt.System})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: prompt.User})

	reqBody := struct {
		Model       string        `json:"model"`
		Messages    []chatMessage `json:"messages"`
		Temperature float32       `json:"temperature"`
		MaxTokens   int           `json:"max_tokens,omitempty"`
	}{Model: o.model, Messages: msgs, Temperature: opts.Temperature, MaxTokens: opts.MaxOutputTokens}

	var payload struct {
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
	}
	if err := o.post(ctx, "/chat/completions", reqBody, &payload); err != nil {
		return "", err
	}
	for _, c := range payload.Choices {
		if c.Message.Content != "" {
			return c.Message.Content, nil
		}
	}
	return "", &adapter.ProviderError{Transient: true, Err: errors.New("openai: no choice content")}
}

func (o *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := struct {
		Model string `json:"model"`
		Input string `json:"input"`
	}{Model: o.embedModel, Input: text}

	var payload struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := o.post(ctx, "/embeddings", reqBody, &payload); err != nil {
		return nil, err
	}
	if len(payload.Data) == 0 {
		return nil, fmt.Errorf("openai: empty embedding result")
	}
	return payload.Data[0].Embedding, nil
}

func (o *OpenAIClient) post(ctx context.Context, path string, reqBody, out interface{}) error {
	b, err := json.Marshal(reqBody)
	if err != nil {
		return &adapter.ProviderError{Transient: false, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.base+path, bytes.NewReader(b))
	if err != nil {
		return &adapter.ProviderError{Transient: false, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return wrapTransportErr(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &adapter.ProviderError{
			Transient: transientStatus(resp.StatusCode),
			Status:    resp.StatusCode,
			Err:       fmt.Errorf("openai http %d", resp.StatusCode),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &adapter.ProviderError{Transient: false, Err: err}
	}
	return nil
}
