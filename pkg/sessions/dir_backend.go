package sessions

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

const recordExt = ".json"

// DirBackend keeps each session in <dir>/<name>.json.
type DirBackend struct {
	dir string
}

var _ Backend = (*DirBackend)(nil)

func NewDirBackend(dir string) (*DirBackend, error) {
	if dir == "" {
		return nil, errors.New("session dir backend: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "could not create session directory %s", dir)
	}
	return &DirBackend{dir: dir}, nil
}

func (b *DirBackend) Dir() string { return b.dir }

func (b *DirBackend) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", errors.Errorf("invalid session name %q", name)
	}
	return filepath.Join(b.dir, name+recordExt), nil
}

// Save writes to a temporary file in the same directory and renames it over
// the record, so readers never see a partial file.
func (b *DirBackend) Save(_ context.Context, name string, data []byte) error {
	path, err := b.path(name)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(b.dir, "."+name+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func (b *DirBackend) Load(_ context.Context, name string) ([]byte, error) {
	path, err := b.path(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func (b *DirBackend) Delete(_ context.Context, name string) error {
	path, err := b.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (b *DirBackend) List(_ context.Context) ([]RecordInfo, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, err
	}
	ret := make([]RecordInfo, 0, len(entries))
	for _, e := range entries {
		fileName := e.Name()
		if e.IsDir() || strings.HasPrefix(fileName, ".") || filepath.Ext(fileName) != recordExt {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		ret = append(ret, RecordInfo{
			Name:    strings.TrimSuffix(fileName, recordExt),
			ModTime: info.ModTime(),
		})
	}
	sortRecords(ret)
	return ret, nil
}

func (b *DirBackend) Close() error { return nil }

func sortRecords(records []RecordInfo) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].ModTime.Equal(records[j].ModTime) {
			return records[i].ModTime.After(records[j].ModTime)
		}
		return records[i].Name > records[j].Name
	})
}
