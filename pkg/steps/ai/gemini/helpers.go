package gemini

import (
	"strings"

	"github.com/go-go-golems/multichat/pkg/conversation"
	genai "github.com/google/generative-ai-go/genai"
)

// splitHistory returns the chat history preceding the last message and the
// parts of that last message, which is what gets sent.
func splitHistory(history conversation.History) ([]*genai.Content, []genai.Part) {
	last, ok := history.Last()
	if !ok {
		return nil, nil
	}
	prior := history[:len(history)-1]
	ret := make([]*genai.Content, 0, len(prior))
	for _, m := range prior {
		ret = append(ret, &genai.Content{Role: m.Role, Parts: textParts(m.Parts)})
	}
	return ret, textParts(last.Parts)
}

func textParts(parts []string) []genai.Part {
	ret := make([]genai.Part, 0, len(parts))
	for _, p := range parts {
		ret = append(ret, genai.Text(p))
	}
	return ret
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return strings.TrimSpace(sb.String())
}
