package models

// ChatMessage is one turn of a chat-completions conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatParams carries the model parameters of a chat-completions call.
type ChatParams struct {
	Messages    []ChatMessage `json:"messages"`
	Model       string        `json:"model,omitempty"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"maxTokens,omitempty"`
}

// TextGenRequest is the envelope sent to the text-generation collaborator.
type TextGenRequest struct {
	Provider  string     `json:"provider"`
	Operation string     `json:"operation"`
	Params    ChatParams `json:"params"`
}

// OperationChatCompletions is the only operation this service issues.
const OperationChatCompletions = "chat.completions"

// TokenUsage reports the tokens consumed by a call.
type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// TextGenResult is the decoded success payload of a call.
type TextGenResult struct {
	Content string     `json:"content"`
	Usage   TokenUsage `json:"usage"`
	Model   string     `json:"model"`
}

// TextGenStatus reports whether the collaborator has a usable provider.
type TextGenStatus struct {
	Configured bool     `json:"configured"`
	Providers  []string `json:"providers,omitempty"`
}
