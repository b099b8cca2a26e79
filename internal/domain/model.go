package domain

import "context"

// ChatMessage is one turn of the prompt sent to a language model.
type ChatMessage struct {
	Role    Role
	Content string
}

// ChatRequest describes a single completion request.
// Tools holds the identifiers of the hosted tools the model may call.
type ChatRequest struct {
	System   string
	Messages []ChatMessage
	Tools    []string
}

// Usage reports token accounting for a completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatResponse is the aggregated result of a streamed completion.
type ChatResponse struct {
	Content      string
	FinishReason string
	Usage        Usage
}

// ChatModel is the port interface the language model client implements.
// The domain does not know which hosted model is behind it.
type ChatModel interface {
	// Stream sends req and calls onChunk for every text fragment as it arrives.
	// onChunk may be nil.
	Stream(ctx context.Context, req ChatRequest, onChunk func(string)) (ChatResponse, error)
}
