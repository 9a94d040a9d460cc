package conversation

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// TimestampFormat is the layout of Turn.Timestamp.
const TimestampFormat = "[2006-01-02 15:04:05]"

// Label is the sender label written to session files and exports.
func (r Role) Label() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "AI"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// ParseRole accepts the role names and the sender labels of session files.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user", "you", "human":
		return RoleUser, nil
	case "assistant", "ai", "model":
		return RoleAssistant, nil
	case "system":
		return RoleSystem, nil
	}
	return "", errors.Errorf("unknown role %q", s)
}

// Turn is one message of a transcript. Turns are never edited once appended.
type Turn struct {
	Role      Role
	Text      string
	Timestamp string
}

// NewTurn stamps a turn with the given time.
func NewTurn(role Role, text string, at time.Time) Turn {
	return Turn{Role: role, Text: text, Timestamp: at.Format(TimestampFormat)}
}

// MarshalJSON encodes a turn as the [label, text, timestamp] triple of chat_log.
func (t Turn) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]string{t.Role.Label(), t.Text, t.Timestamp})
}

func (t *Turn) UnmarshalJSON(b []byte) error {
	var triple []string
	if err := json.Unmarshal(b, &triple); err != nil {
		return errors.Wrap(err, "chat_log entry must be a [role, text, timestamp] array")
	}
	if len(triple) != 3 {
		return errors.Errorf("chat_log entry has %d fields, expected 3", len(triple))
	}
	role, err := ParseRole(triple[0])
	if err != nil {
		return err
	}
	t.Role = role
	t.Text = triple[1]
	t.Timestamp = triple[2]
	return nil
}
