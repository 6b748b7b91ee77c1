package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/a3tai/mcp-pdf-formfill/internal/security"
)

// ErrNotFound is returned for unknown session ids
var ErrNotFound = errors.New("session not found")

const fileExt = ".json"

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// ValidateID checks that id is usable as a file name
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid session id %q: use 1-64 letters, digits, '-' or '_'", id)
	}
	return nil
}

// Store keeps one JSON file per session in a directory
type Store struct {
	mu    sync.Mutex
	guard *security.PathGuard
	now   func() time.Time
	log   logrus.FieldLogger

	locksMu sync.Mutex
	locks   map[string]*idLock
}

type idLock struct {
	mu   sync.Mutex
	refs int
}

// NewStore creates the session directory if needed
func NewStore(dir string, log logrus.FieldLogger) (*Store, error) {
	guard, err := security.NewPathGuard(dir)
	if err != nil {
		return nil, fmt.Errorf("session directory: %w", err)
	}
	if err := os.MkdirAll(guard.Root(), 0o750); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{guard: guard, now: time.Now, log: log, locks: make(map[string]*idLock)}, nil
}

// Lock serializes load-modify-save sequences on one session id and returns
// the matching unlock. Save and Load do not take it themselves.
func (s *Store) Lock(id string) (unlock func()) {
	s.locksMu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &idLock{}
		s.locks[id] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.locksMu.Unlock()
	}
}

// Dir returns the session directory
func (s *Store) Dir() string {
	return s.guard.Root()
}

// Save writes b, replacing any session with the same id. UpdatedAt is set
// to the current time.
func (s *Store) Save(b *Bundle) error {
	if err := b.Validate(); err != nil {
		return err
	}
	path, err := s.path(b.ID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b.UpdatedAt = s.now().UTC()
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", b.ID, err)
	}

	tmp, err := os.CreateTemp(s.guard.Root(), "."+b.ID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("save session %s: %w", b.ID, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save session %s: %w", b.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save session %s: %w", b.ID, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save session %s: %w", b.ID, err)
	}

	s.log.WithFields(logrus.Fields{"session": b.ID, "fields": len(b.Fields), "step": b.Step}).Debug("Session saved")
	return nil
}

// Load reads a session
func (s *Store) Load(id string) (*Bundle, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}

	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	if b.ID != id {
		return nil, fmt.Errorf("session file %s holds id %q", id, b.ID)
	}
	return &b, nil
}

// Delete removes a session. Deleting an unknown session is not an error.
func (s *Store) Delete(id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// List returns summaries of all sessions, most recently updated first.
// Unreadable files are skipped.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.guard.Root())
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	summaries := make([]Summary, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) || strings.HasPrefix(name, ".") {
			continue
		}
		id := strings.TrimSuffix(name, fileExt)
		if ValidateID(id) != nil {
			continue
		}
		b, err := s.Load(id)
		if err != nil {
			s.log.WithField("session", id).WithError(err).Warn("Skipping unreadable session")
			continue
		}
		summaries = append(summaries, b.Summarize())
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

func (s *Store) path(id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	return s.guard.Resolve(filepath.Join(s.guard.Root(), id+fileExt))
}
