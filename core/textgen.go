package core

import "context"

// Turn is one message of a conversation with a text generator.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// TextGenerator produces text from a system prompt and a conversation.
type TextGenerator interface {
	Generate(ctx context.Context, system string, turns []Turn) (string, error)
	// GenerateJSON asks for a response matching the JSON schema and decodes it into out.
	GenerateJSON(ctx context.Context, system string, turns []Turn, schemaName string, schema map[string]interface{}, out interface{}) error
}
