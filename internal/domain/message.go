package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// UnknownSender is substituted for a missing or blank agent identifier.
const UnknownSender = "unknown"

// ErrInvalidAgentID is returned when an agent identifier cannot be recorded
// by a store, e.g. it contains the read-by delimiter.
var ErrInvalidAgentID = errors.New("invalid agent id")

// Message is a single status update in the relay log.
type Message struct {
	ID        int64
	Sender    string
	Content   string
	CreatedAt time.Time
	ReadBy    []string
}

// StatusLine renders the message the way get_messages returns it.
func (m Message) StatusLine() string {
	return fmt.Sprintf("[STATUS] %s: %s", m.Sender, m.Content)
}

// NormalizeAgentID trims the identifier and falls back to UnknownSender.
func NormalizeAgentID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return UnknownSender
	}
	return id
}
