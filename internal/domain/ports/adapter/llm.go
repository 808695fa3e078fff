package adapter

import "context"

// Prompt is a structured prompt: an instruction frame plus the user-turn
// payload. Stages build these deterministically; nothing relies on
// conversational memory at the provider.
type Prompt struct {
	System string
	User   string
}

// CompleteOptions carries per-call generation knobs. Scoring calls use a
// fixed low temperature from configuration to keep runs comparable.
type CompleteOptions struct {
	Temperature     float32
	MaxOutputTokens int
}

// LLMClient is the port for one-shot text generation. Implementations wrap a
// single provider and must be safe for concurrent use by independent stage
// executors. Provider failures are reported as *ProviderError so callers can
// make the retry decision an explicit branch instead of inspecting provider
// exception types.
type LLMClient interface {
	Complete(ctx context.Context, prompt Prompt, opts CompleteOptions) (string, error)
}

// Embedder maps text into the vector space the reference corpus was indexed
// with. The same implementation serves both ingestion and query time.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ProviderError classifies a provider failure. Transient failures (network
// timeout, rate limit, 5xx) are retried with backoff by the retry wrapper;
// everything else fails immediately.
type ProviderError struct {
	Transient bool
	Status    int // HTTP status when known, 0 otherwise
	Err       error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "provider error"
}

func (e *ProviderError) Unwrap() error { return e.Err }
