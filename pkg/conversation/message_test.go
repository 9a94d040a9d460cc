package conversation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTurnTimestamp(t *testing.T) {
	at := time.Date(2024, 3, 9, 7, 5, 2, 0, time.UTC)
	turn := NewTurn(RoleUser, "hi", at)
	assert.Equal(t, "[2024-03-09 07:05:02]", turn.Timestamp)
	assert.Equal(t, RoleUser, turn.Role)
	assert.Equal(t, "hi", turn.Text)
}

func TestTurnMarshalsAsTriple(t *testing.T) {
	turn := Turn{Role: RoleAssistant, Text: "hello", Timestamp: "[2024-01-01 00:00:00]"}
	b, err := json.Marshal(turn)
	require.NoError(t, err)
	assert.JSONEq(t, `["AI","hello","[2024-01-01 00:00:00]"]`, string(b))

	var back Turn
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, turn, back)
}

func TestTurnUnmarshalAcceptsRoleNames(t *testing.T) {
	cases := map[string]Role{
		"You":       RoleUser,
		"user":      RoleUser,
		"AI":        RoleAssistant,
		"assistant": RoleAssistant,
		"model":     RoleAssistant,
		"System":    RoleSystem,
		"system":    RoleSystem,
	}
	for label, want := range cases {
		var turn Turn
		raw := `["` + label + `","x","ts"]`
		require.NoError(t, json.Unmarshal([]byte(raw), &turn), label)
		assert.Equal(t, want, turn.Role, label)
	}
}

func TestTurnUnmarshalRejectsMalformed(t *testing.T) {
	var turn Turn
	assert.Error(t, json.Unmarshal([]byte(`["You","x"]`), &turn))
	assert.Error(t, json.Unmarshal([]byte(`{"role":"user"}`), &turn))
	assert.Error(t, json.Unmarshal([]byte(`["Robot","x","ts"]`), &turn))
}

func TestHistoryFromTranscriptSkipsSystemTurns(t *testing.T) {
	transcript := []Turn{
		{Role: RoleUser, Text: "Hello"},
		{Role: RoleSystem, Text: "File attached: a.txt"},
		{Role: RoleAssistant, Text: "Hi"},
		{Role: RoleUser, Text: "Bye"},
	}
	h := HistoryFromTranscript(transcript)
	require.Len(t, h, 3)
	assert.Equal(t, Message{Role: HistoryRoleUser, Parts: []string{"Hello"}}, h[0])
	assert.Equal(t, Message{Role: HistoryRoleModel, Parts: []string{"Hi"}}, h[1])
	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, "Bye", last.Text())

	_, ok = History{}.Last()
	assert.False(t, ok)
}

func TestFlattenPrompt(t *testing.T) {
	h := History{
		{Role: HistoryRoleUser, Parts: []string{"Hello"}},
		{Role: HistoryRoleModel, Parts: []string{"Hi"}},
		{Role: HistoryRoleUser, Parts: []string{"How are you?"}},
	}

	assert.Equal(t,
		"Be nice\nUser: Hello\nAssistant: Hi\nUser: How are you?\n",
		FlattenPrompt("Be nice", h, DefaultPromptStyle))
	assert.Equal(t,
		"Be nice\n\nHuman: Hello\nAssistant: Hi\nHuman: How are you?\n",
		FlattenPrompt("Be nice", h, AnthropicPromptStyle))
	assert.Equal(t, "User: Hello\n", FlattenPrompt("", h[:1], DefaultPromptStyle))
}
