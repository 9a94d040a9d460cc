package chat

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-go-golems/multichat/pkg/errdefs"
	"github.com/go-go-golems/multichat/pkg/events"
	"github.com/go-go-golems/multichat/pkg/inference/queue"
	"github.com/go-go-golems/multichat/pkg/sessions"
	"github.com/go-go-golems/multichat/pkg/steps/ai/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tickingClock advances one second per call so that sessions get distinct names.
func tickingClock() func() time.Time {
	var n int64
	return func() time.Time {
		return testTime.Add(time.Duration(atomic.AddInt64(&n, 1)) * time.Second)
	}
}

func newTestApp(t *testing.T, e *scriptedEngine, options ...AppOption) (*App, *memConfigStore) {
	t.Helper()
	backend, err := sessions.NewDirBackend(t.TempDir())
	require.NoError(t, err)
	store := sessions.NewStore(backend, sessions.WithClock(tickingClock()))
	cfgStore := newMemConfigStore(nil)
	registry := NewRegistry(newScriptedFactory(e), cfgStore)

	noSleep := DefaultRetryPolicy()
	noSleep.Sleep = func(time.Duration) {}
	options = append([]AppOption{WithEngineOptions(WithRetryPolicy(noSleep))}, options...)

	app, err := NewApp(store, registry, options...)
	require.NoError(t, err)
	_, err = app.Load(context.Background())
	require.NoError(t, err)
	return app, cfgStore
}

func runApp(t *testing.T, app *App) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = app.Close()
	})
}

func nextEvent(t *testing.T, ch <-chan events.Event, typ events.EventType) events.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "event stream closed")
			if ev.Type() == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", typ)
			return nil
		}
	}
}

func TestAppSendPublishesReply(t *testing.T) {
	e := &scriptedEngine{results: []sendResult{{reply: "Hi"}}}
	app, _ := newTestApp(t, e)
	runApp(t, app)

	ctx := context.Background()
	sub, err := app.Subscribe(ctx)
	require.NoError(t, err)

	sess, err := app.CreateSession(ctx)
	require.NoError(t, err)
	created := nextEvent(t, sub, events.EventTypeSessionCreated).(*events.EventSessionCreated)
	assert.Equal(t, sess.Name, created.Session)

	_, err = app.Send(ctx, "Hello")
	require.NoError(t, err)

	ev := nextEvent(t, sub, events.EventTypeReplyReady).(*events.EventReplyReady)
	assert.Equal(t, sess.Name, ev.Session)
	assert.Equal(t, "Hi", ev.Turn.Text)

	cur, ok := app.CurrentSession()
	require.True(t, ok)
	require.Len(t, cur.Transcript, 2)
}

func TestAppRunsOneGenerationAtATime(t *testing.T) {
	var running, maxRunning int32
	e := &scriptedEngine{}
	e.onSend = func() {
		n := atomic.AddInt32(&running, 1)
		for {
			m := atomic.LoadInt32(&maxRunning)
			if n <= m || atomic.CompareAndSwapInt32(&maxRunning, m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&running, -1)
	}
	app, _ := newTestApp(t, e, WithDispatcher(NewLoopDispatcher()))
	runApp(t, app)

	ctx := context.Background()
	var names []string
	for i := 0; i < 3; i++ {
		sess, err := app.CreateSession(ctx)
		require.NoError(t, err)
		names = append(names, sess.Name)
		for j := 0; j < 2; j++ {
			_, err = app.Send(ctx, "hello")
			require.NoError(t, err)
		}
	}
	app.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxRunning))
	assert.Equal(t, 6, e.Calls())
	for _, name := range names {
		sess, ok := app.Session(name)
		require.True(t, ok)
		assert.Len(t, sess.Transcript, 4)
	}
}

func TestAppSendRequiresSession(t *testing.T) {
	app, _ := newTestApp(t, &scriptedEngine{})
	_, err := app.Send(context.Background(), "Hello")
	assert.True(t, errors.Is(err, errdefs.ErrValidation))

	_, err = app.RequestGeneration("Session_19990101_000000")
	assert.True(t, errors.Is(err, errdefs.ErrValidation))
}

func TestAppDeleteSession(t *testing.T) {
	app, _ := newTestApp(t, &scriptedEngine{})
	runApp(t, app)
	ctx := context.Background()
	sub, err := app.Subscribe(ctx)
	require.NoError(t, err)

	sess, err := app.CreateSession(ctx)
	require.NoError(t, err)
	require.NoError(t, app.DeleteSession(ctx, sess.Name))

	ev := nextEvent(t, sub, events.EventTypeSessionDeleted).(*events.EventSessionDeleted)
	assert.Equal(t, sess.Name, ev.Session)
	assert.Empty(t, app.ListSessions())
	_, ok := app.CurrentSession()
	assert.False(t, ok)
}

func TestAppAttachAndExport(t *testing.T) {
	app, _ := newTestApp(t, &scriptedEngine{})
	ctx := context.Background()

	var buf bytes.Buffer
	assert.True(t, errors.Is(app.ExportCurrent(&buf), errdefs.ErrValidation))

	_, err := app.CreateSession(ctx)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "report.md")
	require.NoError(t, os.WriteFile(path, []byte("# report"), 0o644))

	a, err := app.AttachFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, a.ID)

	require.NoError(t, app.ExportCurrent(&buf))
	assert.Contains(t, buf.String(), "System: File attached: report.md\n")
	assert.Contains(t, buf.String(), "\n\nAttached Files:\n  1. report.md\n")
}

func TestAppSwitchProvider(t *testing.T) {
	app, cfgStore := newTestApp(t, &scriptedEngine{})
	ctx := context.Background()
	assert.Equal(t, "Current API: Google Gemini", app.ActiveProviderLabel())

	require.NoError(t, app.SetActiveProvider(ctx, types.ProviderOllama))
	assert.Equal(t, "Current API: Ollama", app.ActiveProviderLabel())
	assert.Equal(t, types.ProviderOllama, app.Configuration().ActiveProvider)
	assert.Equal(t, 1, cfgStore.saves)

	cfg := app.Configuration()
	cfg.Providers[types.ProviderGrok].BaseURL = "https://evil.example.com"
	cfg.ActiveProvider = types.ProviderGrok
	require.Error(t, app.SetConfiguration(ctx, cfg))
	assert.Equal(t, "Current API: Ollama", app.ActiveProviderLabel())
	assert.Equal(t, 1, cfgStore.saves)
}

func TestAppPublishesProcessingError(t *testing.T) {
	app, _ := newTestApp(t, &scriptedEngine{})
	runApp(t, app)
	ctx := context.Background()
	sub, err := app.Subscribe(ctx)
	require.NoError(t, err)

	sess, err := app.CreateSession(ctx)
	require.NoError(t, err)

	// deleting the session before the worker picks the task up makes it fail
	block := make(chan struct{})
	_, err = app.queue.Enqueue(&queue.Task{
		Name: "block",
		Run: func(context.Context) error {
			<-block
			return nil
		},
	})
	require.NoError(t, err)
	id, err := app.RequestGeneration(sess.Name)
	require.NoError(t, err)
	require.NoError(t, app.DeleteSession(ctx, sess.Name))
	close(block)

	ev := nextEvent(t, sub, events.EventTypeProcessingError).(*events.EventProcessingError)
	assert.Equal(t, id, ev.TaskID)
	assert.Contains(t, ev.Error, "unknown session")
}
