package session

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

// Store keeps one state file per project root in a directory.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore creates a store backed by dir. The directory is created on the
// first save.
func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

// Dir returns the backing directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the state file for root.
func (s *Store) Path(root string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(root)))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])[:16]+".yaml")
}

// Load returns the saved state for root. A root with no saved state gets
// an empty one.
func (s *Store) Load(root string) (State, error) {
	lock, err := s.lock(root)
	if err != nil {
		return State{}, err
	}
	defer lock.Unlock()

	return s.read(root)
}

// Save writes st, stamping UpdatedAt.
func (s *Store) Save(st State) error {
	lock, err := s.lock(st.Root)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	return s.write(&st)
}

// Update loads the state for root, applies fn, and saves the result under
// one lock. If fn returns an error nothing is written.
func (s *Store) Update(root string, fn func(*State) error) (State, error) {
	lock, err := s.lock(root)
	if err != nil {
		return State{}, err
	}
	defer lock.Unlock()

	st, err := s.read(root)
	if err != nil {
		return State{}, err
	}
	if err := fn(&st); err != nil {
		return State{}, err
	}
	if err := s.write(&st); err != nil {
		return State{}, err
	}
	return st, nil
}

func (s *Store) lock(root string) (*flock.Flock, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir %s: %w", s.dir, err)
	}
	path := s.Path(root) + ".lock"
	lock := flock.New(path)
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	return lock, nil
}

func (s *Store) read(root string) (State, error) {
	root = filepath.Clean(root)
	path := s.Path(root)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return State{Root: root}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("read session %s: %w", path, err)
	}

	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("parse session %s: %w", path, err)
	}
	if st.Root != root {
		return State{}, fmt.Errorf("session %s belongs to %s, not %s", path, st.Root, root)
	}
	return st, nil
}

func (s *Store) write(st *State) error {
	st.Root = filepath.Clean(st.Root)
	st.UpdatedAt = s.now().UTC()
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return atomicWrite(s.Path(st.Root), data)
}

// atomicWrite replaces path with data through a temp file in the same
// directory, so readers never see a partial file.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", path, err)
	}
	tmp = nil
	return nil
}
