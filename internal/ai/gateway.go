// Package ai provides a provider-agnostic completion gateway with ordered
// provider fallback.
package ai

import "context"

// TaskType defines the kind of generation, used for logging and prompt tuning.
type TaskType int

const (
	TaskModuleOutline TaskType = iota
	TaskModuleContent
)

func (t TaskType) String() string {
	switch t {
	case TaskModuleOutline:
		return "module_outline"
	case TaskModuleContent:
		return "module_content"
	default:
		return "unknown"
	}
}

// ResponseFormat asks a provider for a particular output encoding.
type ResponseFormat int

const (
	FormatText ResponseFormat = iota
	// FormatJSON requests a single JSON object. Providers that support a
	// JSON mode enable it; others rely on the prompt.
	FormatJSON
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input to an AI completion.
type CompletionRequest struct {
	Messages    []Message      `json:"messages"`
	Model       string         `json:"model,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Temperature float64        `json:"temperature,omitempty"`
	Format      ResponseFormat `json:"format,omitempty"`
	Task        TaskType       `json:"task,omitempty"`
}

// CompletionResponse is the output from an AI completion.
type CompletionResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// TotalTokens returns the sum of input and output tokens.
func (r CompletionResponse) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// ModelInfo describes an available model.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MaxTokens   int    `json:"max_tokens"`
	Description string `json:"description"`
}

// Provider is the interface all AI providers must implement.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	Models() []ModelInfo
	HealthCheck(ctx context.Context) error
}
