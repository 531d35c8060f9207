package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// StagingStore keeps unassembled chunk fragments on the local filesystem,
// one directory per session: {root}/{sessionID}/chunk_{index}. Fragments
// are exclusively owned by their session until assembly or cleanup
// destroys them.
type StagingStore struct {
	root string
}

// NewStagingStore creates a staging store rooted at the given directory.
func NewStagingStore(root string) *StagingStore {
	return &StagingStore{root: root}
}

// EnsureDir creates the staging root if it doesn't exist.
func (s *StagingStore) EnsureDir() error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return fmt.Errorf("failed to create staging root %s: %w", s.root, err)
	}
	return nil
}

// CreateSession allocates the fragment directory for a new session.
func (s *StagingStore) CreateSession(sessionID string) error {
	dir := s.sessionDir(sessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create staging dir %s: %w", dir, err)
	}
	return nil
}

// WriteFragment stores one chunk's payload. Returns the number of bytes
// written; a partial file is removed on write failure so a retry starts
// clean.
func (s *StagingStore) WriteFragment(sessionID string, index int, data io.Reader) (int64, error) {
	path := s.fragmentPath(sessionID, index)

	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create fragment %s: %w", path, err)
	}
	defer file.Close()

	n, err := io.Copy(file, data)
	if err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("failed to write fragment: %w", err)
	}

	return n, nil
}

// OpenFragment opens one chunk's payload for reading.
func (s *StagingStore) OpenFragment(sessionID string, index int) (io.ReadCloser, error) {
	f, err := os.Open(s.fragmentPath(sessionID, index))
	if err != nil {
		return nil, fmt.Errorf("failed to open fragment %d for session %s: %w", index, sessionID, err)
	}
	return f, nil
}

// FragmentSize reports the stored size of one fragment.
func (s *StagingStore) FragmentSize(sessionID string, index int) (int64, error) {
	info, err := os.Stat(s.fragmentPath(sessionID, index))
	if err != nil {
		return 0, fmt.Errorf("failed to stat fragment %d for session %s: %w", index, sessionID, err)
	}
	return info.Size(), nil
}

// RemoveSession deletes a session's entire staging directory.
// Missing directories are not an error.
func (s *StagingStore) RemoveSession(sessionID string) error {
	if err := os.RemoveAll(s.sessionDir(sessionID)); err != nil {
		return fmt.Errorf("failed to remove staging for session %s: %w", sessionID, err)
	}
	return nil
}

func (s *StagingStore) sessionDir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

func (s *StagingStore) fragmentPath(sessionID string, index int) string {
	return filepath.Join(s.sessionDir(sessionID), fmt.Sprintf("chunk_%d", index))
}
