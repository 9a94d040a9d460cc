package conversation

// Roles of the normalized history, in the shape the Gemini API expects.
const (
	HistoryRoleUser  = "user"
	HistoryRoleModel = "model"
)

// Message is one entry of the normalized, provider-agnostic history.
type Message struct {
	Role  string   `json:"role"`
	Parts []string `json:"parts"`
}

// Text joins the parts of a message.
func (m Message) Text() string {
	switch len(m.Parts) {
	case 0:
		return ""
	case 1:
		return m.Parts[0]
	}
	ret := ""
	for i, p := range m.Parts {
		if i > 0 {
			ret += "\n"
		}
		ret += p
	}
	return ret
}

// IsUser reports whether the message was written by the user.
func (m Message) IsUser() bool { return m.Role == HistoryRoleUser }

// History is the normalized turn sequence handed to provider adapters.
type History []Message

// HistoryFromTranscript keeps the user and assistant turns in order. System
// turns (attachment notices) are not part of the model context.
func HistoryFromTranscript(transcript []Turn) History {
	ret := make(History, 0, len(transcript))
	for _, t := range transcript {
		switch t.Role {
		case RoleUser:
			ret = append(ret, Message{Role: HistoryRoleUser, Parts: []string{t.Text}})
		case RoleAssistant:
			ret = append(ret, Message{Role: HistoryRoleModel, Parts: []string{t.Text}})
		case RoleSystem:
		}
	}
	return ret
}

// Last returns the final message, if any.
func (h History) Last() (Message, bool) {
	if len(h) == 0 {
		return Message{}, false
	}
	return h[len(h)-1], true
}
