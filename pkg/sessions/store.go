package sessions

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-go-golems/multichat/pkg/conversation"
	"github.com/go-go-golems/multichat/pkg/errdefs"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Store owns every session of the application and the notion of the current
// one. Reads hand out deep copies; all writes go through the Store.
type Store struct {
	mu       sync.RWMutex
	backend  Backend
	sessions map[string]*Session
	current  string

	// persistMu orders encode+save pairs, so an older snapshot never
	// overwrites a newer record. Taken before mu.
	persistMu sync.Mutex

	now               func() time.Time
	maxAttachmentSize int64
}

type StoreOption func(*Store)

// WithClock replaces time.Now for session names and turn timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

func WithMaxAttachmentSize(size int64) StoreOption {
	return func(s *Store) {
		s.maxAttachmentSize = size
	}
}

func NewStore(backend Backend, options ...StoreOption) *Store {
	s := &Store{
		backend:           backend,
		sessions:          map[string]*Session{},
		now:               time.Now,
		maxAttachmentSize: MaxAttachmentSize,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Now returns the store clock.
func (s *Store) Now() time.Time { return s.now() }

func (s *Store) Backend() Backend { return s.backend }

// Create registers an empty session named after the current second and makes
// it current. A session created within the same second replaces the previous
// one of that name.
func (s *Store) Create() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := SessionName(s.now())
	if _, ok := s.sessions[name]; ok {
		log.Warn().Str("session", name).Msg("Session name already in use, replacing it")
	}
	sess := NewSession(name)
	s.sessions[name] = sess
	s.current = name
	log.Info().Str("session", name).Msg("Created session")
	return sess.Clone()
}

// Delete drops a session, its attachments and its stored record. When it was
// current, no session is current afterwards.
func (s *Store) Delete(ctx context.Context, name string) error {
	if name == "" {
		return &errdefs.ValidationError{Field: "session", Reason: "no session selected"}
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	delete(s.sessions, name)
	if s.current == name {
		s.current = ""
	}
	s.mu.Unlock()

	if err := s.backend.Delete(ctx, name); err != nil {
		return &errdefs.PersistenceError{Name: name, Op: "delete", Err: err}
	}
	log.Info().Str("session", name).Msg("Deleted session")
	return nil
}

func (s *Store) Select(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[name]; !ok {
		return &errdefs.ValidationError{Field: "session", Reason: "unknown session " + name}
	}
	s.current = name
	return nil
}

// CurrentName returns the current session name, or "" when none is selected.
func (s *Store) CurrentName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Current returns a copy of the current session.
func (s *Store) Current() (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[s.current]
	if !ok {
		return nil, false
	}
	return sess.Clone(), true
}

// Get returns a copy of the named session.
func (s *Store) Get(name string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[name]
	if !ok {
		return nil, false
	}
	return sess.Clone(), true
}

// Has reports whether a session exists without copying it.
func (s *Store) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[name]
	return ok
}

// List returns the session names, most recently persisted first, then by
// name descending.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	infos := make([]RecordInfo, 0, len(s.sessions))
	for name, sess := range s.sessions {
		infos = append(infos, RecordInfo{Name: name, ModTime: sess.UpdatedAt})
	}
	sortRecords(infos)
	ret := make([]string, len(infos))
	for i, info := range infos {
		ret[i] = info.Name
	}
	return ret
}

// AppendTurn is the only way turns are added to a transcript.
func (s *Store) AppendTurn(name string, turn conversation.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[name]
	if !ok {
		return &errdefs.ValidationError{Field: "session", Reason: "unknown session " + name}
	}
	sess.Transcript = append(sess.Transcript, turn)
	return nil
}

// Persist overwrites the stored record of a session with its current state.
// Concurrent calls are serialized, each saving the state it encoded.
func (s *Store) Persist(ctx context.Context, name string) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	sess, ok := s.sessions[name]
	var data []byte
	var err error
	if ok {
		data, err = EncodeRecord(sess)
	}
	s.mu.RUnlock()

	if !ok {
		return &errdefs.ValidationError{Field: "session", Reason: "unknown session " + name}
	}
	if err != nil {
		return &errdefs.PersistenceError{Name: name, Op: "encode", Err: err}
	}
	if err := s.backend.Save(ctx, name, data); err != nil {
		return &errdefs.PersistenceError{Name: name, Op: "save", Err: err}
	}

	s.mu.Lock()
	if sess, ok := s.sessions[name]; ok {
		sess.UpdatedAt = s.now()
	}
	s.mu.Unlock()
	return nil
}

// LoadAll reads every stored record into the store. Records that cannot be
// read or parsed are skipped and returned as warnings. Sessions already in
// memory are replaced by their stored version.
func (s *Store) LoadAll(ctx context.Context) (map[string]*Session, []error) {
	infos, err := s.backend.List(ctx)
	if err != nil {
		perr := &errdefs.PersistenceError{Name: "*", Op: "list", Err: err}
		log.Warn().Err(err).Msg("Could not list stored sessions")
		return map[string]*Session{}, []error{perr}
	}

	var warnings []error
	loaded := map[string]*Session{}
	for _, info := range infos {
		data, err := s.backend.Load(ctx, info.Name)
		if err != nil {
			log.Warn().Err(err).Str("session", info.Name).Msg("Failed to read session record")
			warnings = append(warnings, &errdefs.PersistenceError{Name: info.Name, Op: "load", Err: err})
			continue
		}
		sess, err := DecodeRecord(info.Name, data)
		if err != nil {
			log.Warn().Err(err).Str("session", info.Name).Msg("Failed to load session record")
			warnings = append(warnings, &errdefs.PersistenceError{Name: info.Name, Op: "decode", Err: err})
			continue
		}
		sess.UpdatedAt = info.ModTime
		loaded[info.Name] = sess
	}

	s.mu.Lock()
	ret := make(map[string]*Session, len(loaded))
	for name, sess := range loaded {
		s.sessions[name] = sess
		ret[name] = sess.Clone()
	}
	s.mu.Unlock()

	log.Debug().Int("loaded", len(loaded)).Int("skipped", len(warnings)).Msg("Loaded sessions")
	return ret, warnings
}

// Attach reads a file into the named session, records a system turn for it
// and persists the session. Files over the size limit are rejected before
// anything is read or changed.
func (s *Store) Attach(ctx context.Context, name string, path string) (*Attachment, error) {
	if name == "" {
		return nil, &errdefs.ValidationError{Field: "session", Reason: "no session selected"}
	}
	if !s.Has(name) {
		return nil, &errdefs.ValidationError{Field: "session", Reason: "unknown session " + name}
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not stat %s", path)
	}
	if info.IsDir() {
		return nil, &errdefs.ValidationError{Field: "path", Reason: path + " is a directory"}
	}
	if info.Size() > s.maxAttachmentSize {
		return nil, &errdefs.SizeLimitError{Path: path, Size: info.Size(), Limit: s.maxAttachmentSize}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read %s", path)
	}
	if int64(len(content)) > s.maxAttachmentSize {
		return nil, &errdefs.SizeLimitError{Path: path, Size: int64(len(content)), Limit: s.maxAttachmentSize}
	}

	s.mu.Lock()
	sess, ok := s.sessions[name]
	if !ok {
		s.mu.Unlock()
		return nil, &errdefs.ValidationError{Field: "session", Reason: "unknown session " + name}
	}
	a := &Attachment{
		ID:         sess.NextAttachmentID(),
		SourcePath: path,
		Name:       filepath.Base(path),
		Content:    content,
	}
	sess.Attachments[a.ID] = a
	sess.Transcript = append(sess.Transcript,
		conversation.NewTurn(conversation.RoleSystem, "File attached: "+a.Name, s.now()))
	ret := *a
	s.mu.Unlock()

	log.Info().Str("session", name).Str("file", a.Name).Int("id", a.ID).Int("size", len(content)).Msg("Attached file")
	if err := s.Persist(ctx, name); err != nil {
		return &ret, err
	}
	return &ret, nil
}

func (s *Store) Close() error {
	return s.backend.Close()
}
