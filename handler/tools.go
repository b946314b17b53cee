package handler

import (
	"github.com/invopop/jsonschema"
)

const (
	ToolSend        = "send"
	ToolGetMessages = "get_messages"
)

// ToolDefinition is the descriptor returned by list_tools.
type ToolDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"inputSchema"`
}

type SendArgs struct {
	Message string `json:"message" jsonschema_description:"Status message to share"`
	AgentID string `json:"agent_id,omitempty" jsonschema_description:"Agent identifier (1, 2, 3, etc.)"`
}

type GetMessagesArgs struct {
	AgentID string `json:"agent_id" jsonschema_description:"Requesting agent identifier"`
}

var SendDefinition = ToolDefinition{
	Name:        ToolSend,
	Description: "Send a status message to other agents",
	InputSchema: GenerateSchema[SendArgs](),
}

var GetMessagesDefinition = ToolDefinition{
	Name:        ToolGetMessages,
	Description: "Get unread messages from other agents",
	InputSchema: GenerateSchema[GetMessagesArgs](),
}

// Registry returns the tool descriptors in list order.
func Registry() []ToolDefinition {
	return []ToolDefinition{SendDefinition, GetMessagesDefinition}
}

// GenerateSchema reflects an inline JSON Schema for T. Fields without
// omitempty are required.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		Anonymous:                 true,
	}
	var v T
	return reflector.Reflect(v)
}
