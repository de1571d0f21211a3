// Package llm is the chat-completion contract between the planner and the
// vendor SDKs under providers/. Messages follow the OpenAI chat shape; each
// provider translates them to its own wire format.
package llm

import "context"

// Provider is one chat-completion backend.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolType is always "function" today.
type ToolType string

const ToolTypeFunction ToolType = "function"

// ChatRequest is one planner round: the transcript so far plus the tools the
// model may call.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Tools       []Tool    `json:"tools,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// ChatResponse carries the model's text and the tool calls it asked for.
// Either may be empty.
type ChatResponse struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     Usage      `json:"usage"`
	// FinishReason is the vendor's own label (stop, tool_calls, end_turn,
	// STOP). Informational only.
	FinishReason string `json:"finish_reason,omitempty"`
}

// HasToolCalls reports whether the model asked for at least one tool.
func (r *ChatResponse) HasToolCalls() bool { return r != nil && len(r.ToolCalls) > 0 }

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID links a tool message to the assistant call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
	// ToolName is for vendors that key tool results by function name.
	ToolName string `json:"-"`
}

// SystemMessage and UserMessage open a fresh transcript.
func SystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }

func UserMessage(content string) Message { return Message{Role: RoleUser, Content: content} }

// ToolResultMessage answers the assistant call callID with a JSON payload.
func ToolResultMessage(callID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID, ToolName: name}
}

// Tool describes one callable function; Parameters holds its JSON schema.
type Tool struct {
	Type     ToolType    `json:"type"`
	Function FunctionDef `json:"function"`
}

type FunctionDef struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters"`
}

// FunctionTool builds a function tool from a name, a description and a
// parameter schema.
func FunctionTool(name, description string, parameters any) Tool {
	return Tool{
		Type:     ToolTypeFunction,
		Function: FunctionDef{Name: name, Description: description, Parameters: parameters},
	}
}

// ToolCall is the model asking to run Function. Arguments stay raw JSON
// until the tools package decodes them.
type ToolCall struct {
	ID       string       `json:"id,omitempty"`
	Type     ToolType     `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}
