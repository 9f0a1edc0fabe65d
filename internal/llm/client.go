// Package llm adapts language-model providers to a small tool-calling
// contract used by the dialogue orchestrator.
package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrCollaboratorFailure marks a failed or timed-out provider call.
var ErrCollaboratorFailure = errors.New("language model call failed")

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation entry. Assistant messages may carry the tool
// calls the model asked for; the following user message carries their results.
type Message struct {
	Role        Role
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

type ToolResult struct {
	CallID  string
	Name    string
	Content string
	IsError bool
}

// Property describes one tool parameter. Type is a JSON Schema primitive.
type Property struct {
	Type        string
	Description string
	Enum        []string
}

type ToolSpec struct {
	Name        string
	Description string
	Properties  map[string]Property
	Required    []string
}

// JSONSchema renders the tool parameters as a JSON Schema object.
func (t ToolSpec) JSONSchema() map[string]any {
	props := make(map[string]any, len(t.Properties))
	for name, p := range t.Properties {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[name] = prop
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(t.Required) > 0 {
		schema["required"] = t.Required
	}
	return schema
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

type Request struct {
	System      []string
	Messages    []Message
	Tools       []ToolSpec
	MaxTokens   int32
	Temperature float32
}

// Response is either a final text reply or a set of tool calls to execute.
type Response struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason string
	Usage      TokenUsage
}

type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
