package settings

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/go-go-golems/multichat/pkg/errdefs"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// FileStore persists the Configuration as YAML on disk.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

// Load reads the configuration. An absent file yields the defaults, which are
// written immediately. A file that parses is healed in memory only; it is
// rewritten on the next explicit Save.
func (s *FileStore) Load() (*Configuration, error) {
	if s.path == "" {
		return nil, &errdefs.PersistenceError{Name: "config", Op: "load", Err: errors.New("config path is required")}
	}

	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := NewConfiguration()
			log.Info().Str("path", s.path).Msg("no configuration found, writing defaults")
			if err := s.Save(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, &errdefs.PersistenceError{Name: s.path, Op: "read", Err: err}
	}

	cfg := &Configuration{}
	if len(bytes.TrimSpace(b)) == 0 {
		cfg = NewConfiguration()
	} else if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, &errdefs.PersistenceError{Name: s.path, Op: "parse", Err: err}
	}
	if cfg.Heal() {
		log.Debug().Str("path", s.path).Msg("healed configuration after load")
	}
	return cfg, nil
}

// Save writes the configuration with tmp-file + rename semantics.
func (s *FileStore) Save(cfg *Configuration) error {
	if cfg == nil {
		return &errdefs.PersistenceError{Name: s.path, Op: "save", Err: errors.New("configuration is nil")}
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return &errdefs.PersistenceError{Name: s.path, Op: "encode", Err: err}
	}
	if err := enc.Close(); err != nil {
		return &errdefs.PersistenceError{Name: s.path, Op: "encode", Err: err}
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &errdefs.PersistenceError{Name: s.path, Op: "mkdir", Err: err}
		}
	}
	tmpPath := s.path + ".tmp"
	// api keys live in this file
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0o600); err != nil {
		return &errdefs.PersistenceError{Name: s.path, Op: "write", Err: err}
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return &errdefs.PersistenceError{Name: s.path, Op: "rename", Err: err}
	}
	return nil
}
