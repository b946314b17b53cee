package repository

import (
	"strings"
)

const readBySep = ","

// readBySet is the comma-joined set of agents stored in the read_by column.
// Membership is decided per token so that "12" never matches "112".
type readBySet string

func (r readBySet) members() []string {
	if r == "" {
		return nil
	}
	var out []string
	for _, tok := range strings.Split(string(r), readBySep) {
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

func (r readBySet) contains(agentID string) bool {
	for _, tok := range strings.Split(string(r), readBySep) {
		if tok == agentID {
			return true
		}
	}
	return false
}

// add returns the set with agentID included; the receiver is returned as is
// when the agent is already a member.
func (r readBySet) add(agentID string) readBySet {
	if r.contains(agentID) {
		return r
	}
	if r == "" {
		return readBySet(agentID)
	}
	return r + readBySep + readBySet(agentID)
}

// validReadByMember reports whether id can be stored in a delimited set.
func validReadByMember(id string) bool {
	return id != "" && !strings.Contains(id, readBySep)
}
