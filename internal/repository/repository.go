package repository

import (
	"context"

	"agent-relay/internal/domain"
)

// Store is the message log contract shared by every backend.
//
// Append assigns the next id and records the message. UnreadFor returns the
// messages the agent has not yet retrieved that were authored by someone else,
// in ascending id order, and records them as retrieved before returning.
type Store interface {
	Append(ctx context.Context, sender, content string) (domain.Message, error)
	UnreadFor(ctx context.Context, agentID string) ([]domain.Message, error)
	Close() error
}
