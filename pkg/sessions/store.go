// Package sessions persists chat sessions as JSON files under a base
// directory, sharded by year and month of creation.
package sessions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/liliang-cn/gptsh/pkg/domain"
	"github.com/liliang-cn/gptsh/pkg/log"
)

// Store reads and writes session files under dir/YYYY/MM/<id>.json.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore creates a store rooted at dir. The directory is created on
// first save.
func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

// newID builds a sortable session id: a UTC timestamp prefix plus a short
// random suffix to break same-second collisions.
func (s *Store) newID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
	return s.now().UTC().Format("20060102-150405") + "-" + suffix
}

// New creates an unsaved session document with id and timestamps set.
func (s *Store) New(agent domain.SessionAgent, provider domain.SessionProvider) *domain.Session {
	now := s.now().UTC().Truncate(time.Second)
	return &domain.Session{
		ID:        s.newID(),
		CreatedAt: now,
		UpdatedAt: now,
		Agent:     agent,
		Provider:  provider,
	}
}

func (s *Store) pathFor(sess *domain.Session) string {
	created := sess.CreatedAt.UTC()
	return filepath.Join(s.dir,
		fmt.Sprintf("%04d", created.Year()),
		fmt.Sprintf("%02d", created.Month()),
		sess.ID+".json")
}

// Save writes the session atomically: the JSON goes to a temp file in the
// target directory, then renames into place. UpdatedAt is bumped.
func (s *Store) Save(sess *domain.Session) (string, error) {
	if sess.ID == "" {
		return "", fmt.Errorf("%w: session has no id", domain.ErrInvalidInput)
	}
	sess.UpdatedAt = s.now().UTC().Truncate(time.Second)

	path := s.pathFor(sess)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create sessions dir: %w", err)
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode session %s: %w", sess.ID, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+sess.ID+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write session %s: %w", sess.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close temp session file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("commit session %s: %w", sess.ID, err)
	}
	return path, nil
}

// AppendMessages adds a turn's messages and usage to the session and
// saves it.
func (s *Store) AppendMessages(sess *domain.Session, msgs []domain.Message, usage domain.Usage) (string, error) {
	sess.Messages = append(sess.Messages, msgs...)
	sess.Usage.Add(usage)
	return s.Save(sess)
}

func (s *Store) findFile(id string) (string, error) {
	var found string
	err := s.walkFiles(func(path string) {
		if strings.TrimSuffix(filepath.Base(path), ".json") == id {
			found = path
		}
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	return found, nil
}

func (s *Store) walkFiles(fn func(path string)) error {
	if _, err := os.Stat(s.dir); os.IsNotExist(err) {
		return nil
	}
	return filepath.WalkDir(s.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".json") && !strings.HasPrefix(d.Name(), ".") {
			fn(path)
		}
		return nil
	})
}

// Load reads one session by exact id.
func (s *Store) Load(id string) (*domain.Session, error) {
	path, err := s.findFile(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}
	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	if sess.ID == "" {
		sess.ID = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	return &sess, nil
}

// List returns all sessions sorted by UpdatedAt, newest first. Unreadable
// files are logged and skipped.
func (s *Store) List() ([]*domain.Session, error) {
	var out []*domain.Session
	err := s.walkFiles(func(path string) {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warnf("skipping unreadable session file %s: %v", path, err)
			return
		}
		var sess domain.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			log.Warnf("skipping malformed session file %s: %v", path, err)
			return
		}
		out = append(out, &sess)
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// Resolve turns a user-supplied reference into a session id. An all-digit
// reference selects the N-th most recent session (0 is the newest);
// anything else must be an id or a unique id prefix.
func (s *Store) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty session reference", domain.ErrInvalidInput)
	}

	all, err := s.List()
	if err != nil {
		return "", err
	}

	if isDigits(ref) {
		idx := 0
		for _, c := range ref {
			idx = idx*10 + int(c-'0')
		}
		if idx >= len(all) {
			return "", fmt.Errorf("%w: index %d out of range", domain.ErrSessionNotFound, idx)
		}
		return all[idx].ID, nil
	}

	var matches []string
	for _, sess := range all {
		if strings.HasPrefix(sess.ID, ref) {
			matches = append(matches, sess.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", domain.ErrSessionNotFound, ref)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: ambiguous prefix %q matches %s",
			domain.ErrInvalidInput, ref, strings.Join(matches, ", "))
	}
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

// Delete removes one session file by exact id.
func (s *Store) Delete(id string) error {
	path, err := s.findFile(id)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// Cleanup deletes sessions last updated before the cutoff and returns how
// many were removed.
func (s *Store) Cleanup(olderThan time.Duration) (int, error) {
	cutoff := s.now().UTC().Add(-olderThan)
	all, err := s.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, sess := range all {
		if sess.UpdatedAt.Before(cutoff) {
			if err := s.Delete(sess.ID); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}
