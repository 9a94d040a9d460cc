package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DebugTap receives the raw provider payloads for development and debugging.
// Engines treat calls to it as best-effort. status is the HTTP status of the
// answer, the exit code for subprocess engines, or 0 when nothing answered.
type DebugTap interface {
	OnRequest(provider string, body []byte)
	OnResponse(provider string, status int, body []byte)
}

type debugTapKey struct{}

// WithDebugTap installs a DebugTap into the context.
func WithDebugTap(ctx context.Context, tap DebugTap) context.Context {
	return context.WithValue(ctx, debugTapKey{}, tap)
}

// DebugTapFrom returns the DebugTap installed in ctx, if any.
func DebugTapFrom(ctx context.Context) (DebugTap, bool) {
	if ctx == nil {
		return nil, false
	}
	v := ctx.Value(debugTapKey{})
	if v == nil {
		return nil, false
	}
	t, ok := v.(DebugTap)
	return t, ok
}

// TapRequest hands v to the tap of ctx. v is passed through when it is
// []byte or string and JSON encoded otherwise.
func TapRequest(ctx context.Context, provider string, v any) {
	tap, ok := DebugTapFrom(ctx)
	if !ok {
		return
	}
	if b, ok := tapBody(v); ok {
		tap.OnRequest(provider, b)
	}
}

// TapResponse is the answer side of TapRequest.
func TapResponse(ctx context.Context, provider string, status int, v any) {
	tap, ok := DebugTapFrom(ctx)
	if !ok {
		return
	}
	if b, ok := tapBody(v); ok {
		tap.OnResponse(provider, status, b)
	}
}

func tapBody(v any) ([]byte, bool) {
	switch b := v.(type) {
	case []byte:
		return b, true
	case string:
		return []byte(b), true
	}
	b, err := json.Marshal(v)
	if err != nil {
		log.Debug().Err(err).Msg("Could not encode debug tap payload")
		return nil, false
	}
	return b, true
}

// DiskTap writes every payload to its own JSON file in a directory, named
// <seq>-<provider>-request.json and <seq>-<provider>-response.json. A request
// and its answer share a sequence number.
type DiskTap struct {
	dir string

	mu  sync.Mutex
	seq int
	now func() time.Time
}

var _ DebugTap = (*DiskTap)(nil)

func NewDiskTap(dir string) (*DiskTap, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "could not create debug tap directory")
	}
	return &DiskTap{dir: dir, now: time.Now}, nil
}

func (d *DiskTap) OnRequest(provider string, body []byte) {
	d.mu.Lock()
	d.seq++
	seq := d.seq
	d.mu.Unlock()
	d.write(seq, provider, "request", map[string]any{
		"provider": provider,
		"time":     d.now().Format(time.RFC3339Nano),
		"body":     rawOrString(body),
	})
}

func (d *DiskTap) OnResponse(provider string, status int, body []byte) {
	d.mu.Lock()
	seq := d.seq
	d.mu.Unlock()
	d.write(seq, provider, "response", map[string]any{
		"provider": provider,
		"time":     d.now().Format(time.RFC3339Nano),
		"status":   status,
		"body":     rawOrString(body),
	})
}

func (d *DiskTap) write(seq int, provider string, kind string, env map[string]any) {
	b, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return
	}
	name := fmt.Sprintf("%04d-%s-%s.json", seq, sanitizeFileName(provider), kind)
	if err := os.WriteFile(filepath.Join(d.dir, name), b, 0o600); err != nil {
		log.Warn().Err(err).Str("file", name).Msg("Could not write debug tap file")
	}
}

func rawOrString(body []byte) any {
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	return string(body)
}

func sanitizeFileName(s string) string {
	ret := []rune(s)
	for i, r := range ret {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			ret[i] = '_'
		}
	}
	return string(ret)
}
