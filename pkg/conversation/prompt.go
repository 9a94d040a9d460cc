package conversation

import "strings"

// PromptStyle controls how a history is flattened into a single text prompt
// for providers without a structured chat API.
type PromptStyle struct {
	// PreambleSeparator follows the system prompt.
	PreambleSeparator string
	UserLabel         string
	AssistantLabel    string
}

var (
	DefaultPromptStyle = PromptStyle{
		PreambleSeparator: "\n",
		UserLabel:         "User",
		AssistantLabel:    "Assistant",
	}
	AnthropicPromptStyle = PromptStyle{
		PreambleSeparator: "\n\n",
		UserLabel:         "Human",
		AssistantLabel:    "Assistant",
	}
)

// FlattenPrompt renders the system prompt followed by one "<Label>: <text>"
// line per message, in chronological order.
func FlattenPrompt(systemPrompt string, history History, style PromptStyle) string {
	var sb strings.Builder
	if systemPrompt != "" {
		sb.WriteString(systemPrompt)
		sb.WriteString(style.PreambleSeparator)
	}
	for _, m := range history {
		label := style.AssistantLabel
		if m.IsUser() {
			label = style.UserLabel
		}
		sb.WriteString(label)
		sb.WriteString(": ")
		sb.WriteString(m.Text())
		sb.WriteString("\n")
	}
	return sb.String()
}
