package events

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/multichat/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventJSONRoundTrip(t *testing.T) {
	turn := conversation.Turn{Role: conversation.RoleAssistant, Text: "hi", Timestamp: "[2024-01-01 00:00:00]"}
	evs := []Event{
		NewReplyReadyEvent("Session_a", turn),
		NewProcessingErrorEvent("task-1", errors.New("boom")),
		NewSessionCreatedEvent("Session_b"),
		NewSessionDeletedEvent("Session_c"),
	}
	router, err := NewEventRouter()
	require.NoError(t, err)
	defer func() { _ = router.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := router.Subscribe(ctx)
	require.NoError(t, err)

	for _, ev := range evs {
		require.NoError(t, router.Publish(ev))
	}

	for _, want := range evs {
		select {
		case got := <-ch:
			assert.Equal(t, want.Type(), got.Type())
			assert.Equal(t, want.Metadata().ID, got.Metadata().ID)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want.Type())
		}
	}
}

func TestNewEventFromJson(t *testing.T) {
	ev, err := NewEventFromJson([]byte(`{"type":"reply-ready","session":"S","turn":["AI","hello","[ts]"]}`))
	require.NoError(t, err)
	reply, ok := ev.(*EventReplyReady)
	require.True(t, ok)
	assert.Equal(t, "S", reply.Session)
	assert.Equal(t, conversation.RoleAssistant, reply.Turn.Role)
	assert.Equal(t, "hello", reply.Turn.Text)

	_, err = NewEventFromJson([]byte(`{"type":"nope"}`))
	assert.Error(t, err)
	_, err = NewEventFromJson([]byte(`not json`))
	assert.Error(t, err)
}

type recordingPublisher struct {
	messages []*message.Message
}

func (p *recordingPublisher) Publish(_ string, messages ...*message.Message) error {
	p.messages = append(p.messages, messages...)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func TestCorrelationPublisherDecorator(t *testing.T) {
	rec := &recordingPublisher{}
	pub := CorrelationPublisherDecorator{Publisher: rec}

	withID := message.NewMessage("1", nil)
	withID.SetContext(ContextWithCorrelationID(context.Background(), "task-42"))
	preset := message.NewMessage("2", nil)
	preset.Metadata.Set(CorrelationIDMetadataKey, "kept")
	generated := message.NewMessage("3", nil)

	require.NoError(t, pub.Publish(TopicChat, withID, preset, generated))
	require.Len(t, rec.messages, 3)
	assert.Equal(t, "task-42", rec.messages[0].Metadata.Get(CorrelationIDMetadataKey))
	assert.Equal(t, "kept", rec.messages[1].Metadata.Get(CorrelationIDMetadataKey))
	assert.True(t, strings.HasPrefix(rec.messages[2].Metadata.Get(CorrelationIDMetadataKey), "gen_"))
}
