package handler

import "encoding/json"

const ProtocolVersion = "2.0"

// Reserved error codes.
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

const (
	MethodInitialize = "initialize"
	MethodListTools  = "list_tools"
	MethodCallTool   = "call_tool"

	// Names used by MCP-style clients.
	methodListToolsAlias = "tools/list"
	methodCallToolAlias  = "tools/call"
)

// Request is one decoded request line.
type Request struct {
	Protocol string          `json:"protocol"`
	ID       json.RawMessage `json:"id"`
	Method   string          `json:"method"`
	Params   json.RawMessage `json:"params"`
}

// Response is written as exactly one line per request. ID is null when the
// request could not be decoded.
type Response struct {
	Protocol string          `json:"protocol"`
	ID       json.RawMessage `json:"id"`
	Result   any             `json:"result,omitempty"`
	Error    *Error          `json:"error,omitempty"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      serverInfo     `json:"serverInfo"`
}

type listToolsResult struct {
	Tools []ToolDefinition `json:"tools"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type toolResult struct {
	Content []contentBlock `json:"content"`
}

func textResult(text string) toolResult {
	return toolResult{Content: []contentBlock{{Type: "text", Text: text}}}
}

func success(id json.RawMessage, result any) Response {
	return Response{Protocol: ProtocolVersion, ID: id, Result: result}
}

func failure(id json.RawMessage, code int, message string) Response {
	return Response{Protocol: ProtocolVersion, ID: id, Error: &Error{Code: code, Message: message}}
}
