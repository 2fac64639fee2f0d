package llm

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ResponseFormatJSON asks the model for a single JSON object.
const ResponseFormatJSON = "json_object"

// Message represents a chat message in a conversation.
type Message struct {
	Role    string `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// Request is a single chat completion call.
type Request struct {
	Messages []Message
	// ResponseFormat is empty for free text or ResponseFormatJSON.
	ResponseFormat string
}

// Response represents a complete response from an LLM provider.
// Content is empty when the model returned no usable text.
type Response struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Usage tracks token consumption for a request/response pair.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// IsSystem reports whether m carries the system role.
func (m Message) IsSystem() bool {
	return m.Role == RoleSystem
}
