package usecase

import (
	"context"
	"errors"
	"strings"

	"agent-relay/internal/domain"
)

const sentPrefix = "✅ Message sent: "

type MessageStore interface {
	Append(ctx context.Context, sender, content string) (domain.Message, error)
	UnreadFor(ctx context.Context, agentID string) ([]domain.Message, error)
}

type RelayService struct {
	store MessageStore
}

type SendInput struct {
	AgentID string
	Message string
}

type SendOutput struct {
	Message      domain.Message
	Confirmation string
}

type GetMessagesInput struct {
	AgentID string
}

type GetMessagesOutput struct {
	Messages []domain.Message
	Text     string
}

func NewRelayService(s MessageStore) (*RelayService, error) {
	if s == nil {
		return nil, errors.New("usecase: message store must not be nil")
	}
	return &RelayService{store: s}, nil
}

// Send appends a status message. A missing agent id is recorded as
// domain.UnknownSender rather than rejected. Stores number messages from 1, so
// a message without an id is reported as an internal error.
func (s *RelayService) Send(ctx context.Context, in SendInput) (SendOutput, error) {
	sender := domain.NormalizeAgentID(in.AgentID)
	msg, err := s.store.Append(ctx, sender, in.Message)
	if err != nil {
		return SendOutput{}, classify(err, "append_error")
	}
	if msg.ID <= 0 {
		return SendOutput{}, newError(ErrorInternal, "missing_message_id", nil)
	}
	return SendOutput{
		Message:      msg,
		Confirmation: sentPrefix + msg.Content,
	}, nil
}

// GetMessages returns the caller's unread messages from other agents as
// newline-joined status lines, oldest first.
func (s *RelayService) GetMessages(ctx context.Context, in GetMessagesInput) (GetMessagesOutput, error) {
	agentID := domain.NormalizeAgentID(in.AgentID)
	msgs, err := s.store.UnreadFor(ctx, agentID)
	if err != nil {
		return GetMessagesOutput{}, classify(err, "unread_error")
	}

	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, m.StatusLine())
	}
	return GetMessagesOutput{
		Messages: msgs,
		Text:     strings.Join(lines, "\n"),
	}, nil
}

func classify(err error, reason string) *Error {
	if errors.Is(err, domain.ErrInvalidAgentID) {
		return newError(ErrorInvalidInput, "invalid_agent_id", err)
	}
	return newError(ErrorStorage, reason, err)
}
