package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"agent-relay/internal/usecase"
)

const (
	serverName    = "collaboration-server"
	serverVersion = "1.0.0"
	mcpVersion    = "2024-11-05"

	// DefaultMaxLineBytes caps a single request line.
	DefaultMaxLineBytes = 1 << 20
)

var errLineTooLong = errors.New("request line too long")

type RelayUseCase interface {
	Send(ctx context.Context, in usecase.SendInput) (usecase.SendOutput, error)
	GetMessages(ctx context.Context, in usecase.GetMessagesInput) (usecase.GetMessagesOutput, error)
}

// Handler decodes one request per line and answers each with one response
// line. Requests are handled strictly in order.
type Handler struct {
	relay        RelayUseCase
	logger       *slog.Logger
	tools        []ToolDefinition
	maxLineBytes int
}

func NewHandler(relay RelayUseCase, logger *slog.Logger, maxLineBytes int) (*Handler, error) {
	if relay == nil {
		return nil, errors.New("handler: relay use case must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}
	return &Handler{
		relay:        relay,
		logger:       logger,
		tools:        Registry(),
		maxLineBytes: maxLineBytes,
	}, nil
}

// Serve runs the request loop until r reaches end of input, which is a clean
// shutdown. A cancelled ctx stops the loop before the next read.
func (h *Handler) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	br := bufio.NewReader(r)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, readErr := readLine(br, h.maxLineBytes)
		var resp Response
		switch {
		case errors.Is(readErr, errLineTooLong):
			h.logger.Error("request rejected", "err", readErr, "limit", h.maxLineBytes)
			resp = failure(nil, CodeParseError, "Parse error: "+readErr.Error())
		case readErr != nil && !errors.Is(readErr, io.EOF):
			return fmt.Errorf("handler: read request: %w", readErr)
		case errors.Is(readErr, io.EOF) && len(bytes.TrimSpace(line)) == 0:
			h.logger.Info("end of input, shutting down")
			return nil
		default:
			resp = h.Handle(ctx, line)
		}

		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("handler: write response: %w", err)
		}
		if errors.Is(readErr, io.EOF) {
			h.logger.Info("end of input, shutting down")
			return nil
		}
	}
}

// readLine returns the next line without its terminator. Lines longer than
// limit are drained and reported as errLineTooLong.
func readLine(br *bufio.Reader, limit int) ([]byte, error) {
	var (
		buf     []byte
		tooLong bool
	)
	for {
		chunk, err := br.ReadSlice('\n')
		if !tooLong {
			if len(buf)+len(chunk) > limit+1 {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if tooLong {
			if err != nil && !errors.Is(err, io.EOF) {
				return nil, err
			}
			return nil, errLineTooLong
		}
		return bytes.TrimRight(buf, "\r\n"), err
	}
}

// Handle processes one request line. It never returns without a response;
// panics below it become internal errors.
func (h *Handler) Handle(ctx context.Context, line []byte) (resp Response) {
	var req Request
	if err := json.Unmarshal(bytes.TrimSpace(line), &req); err != nil {
		h.logger.Error("json decode error", "err", err)
		return failure(nil, CodeParseError, "Parse error: "+err.Error())
	}

	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("unexpected error", "method", req.Method, "panic", r)
			resp = failure(req.ID, CodeInternalError, fmt.Sprintf("Internal error: %v", r))
		}
	}()

	h.logger.Debug("request", "method", req.Method, "id", string(req.ID))

	switch req.Method {
	case MethodInitialize:
		return success(req.ID, initializeResult{
			ProtocolVersion: mcpVersion,
			Capabilities:    map[string]any{"tools": map[string]any{}},
			ServerInfo:      serverInfo{Name: serverName, Version: serverVersion},
		})
	case MethodListTools, methodListToolsAlias:
		return success(req.ID, listToolsResult{Tools: h.tools})
	case MethodCallTool, methodCallToolAlias:
		return h.callTool(ctx, req)
	default:
		return failure(req.ID, CodeMethodNotFound, "Method not found: "+req.Method)
	}
}

func (h *Handler) callTool(ctx context.Context, req Request) Response {
	var params callToolParams
	if err := decodeOptional(req.Params, &params); err != nil {
		return failure(req.ID, CodeInvalidParams, "Invalid params: "+err.Error())
	}

	switch params.Name {
	case ToolSend:
		var args SendArgs
		if err := decodeOptional(params.Arguments, &args); err != nil {
			return failure(req.ID, CodeInvalidParams, "Invalid params: "+err.Error())
		}
		out, err := h.relay.Send(ctx, usecase.SendInput{AgentID: args.AgentID, Message: args.Message})
		if err != nil {
			return h.toolFailure(req.ID, params.Name, err)
		}
		h.logger.Info("message stored", "sender", out.Message.Sender, "id", out.Message.ID)
		return success(req.ID, textResult(out.Confirmation))

	case ToolGetMessages:
		var args GetMessagesArgs
		if err := decodeOptional(params.Arguments, &args); err != nil {
			return failure(req.ID, CodeInvalidParams, "Invalid params: "+err.Error())
		}
		out, err := h.relay.GetMessages(ctx, usecase.GetMessagesInput{AgentID: args.AgentID})
		if err != nil {
			return h.toolFailure(req.ID, params.Name, err)
		}
		h.logger.Info("messages delivered", "agent_id", args.AgentID, "count", len(out.Messages))
		return success(req.ID, textResult(out.Text))

	default:
		return failure(req.ID, CodeMethodNotFound, "Unknown tool: "+params.Name)
	}
}

func (h *Handler) toolFailure(id json.RawMessage, tool string, err error) Response {
	var usecaseErr *usecase.Error
	if errors.As(err, &usecaseErr) && usecaseErr.Code == usecase.ErrorInvalidInput {
		h.logger.Warn("tool call rejected", "tool", tool, "reason", usecaseErr.Reason, "err", err)
		return failure(id, CodeInvalidParams, "Invalid params: "+usecaseErr.Reason)
	}
	h.logger.Error("tool call failed", "tool", tool, "err", err)
	return failure(id, CodeInternalError, "Internal error: "+err.Error())
}

// decodeOptional treats absent or null JSON as the zero value.
func decodeOptional(raw json.RawMessage, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	return json.Unmarshal(raw, v)
}
