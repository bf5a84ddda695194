package sentiment

import "context"

// LLMClient is the interface for LLM providers.
type LLMClient interface {
	// Complete sends a prompt to the LLM and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest represents a request to the LLM.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
	TopP         float64
}

// CompletionResponse represents a response from the LLM.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensUsed int
}
