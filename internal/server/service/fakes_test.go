package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"ferry/internal/server/database"
	"ferry/internal/server/storage"

	"gocloud.dev/blob/memblob"
)

// memSessions is an in-memory SessionStore with the same atomicity
// guarantees as the SQL implementation: add-to-set chunk recording and a
// one-way completion latch.
type memSessions struct {
	mu       sync.Mutex
	sessions map[string]*database.UploadSession
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]*database.UploadSession)}
}

func (m *memSessions) CreateSession(_ context.Context, s *database.UploadSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Mirror the SQL store: pgx encodes nil as NULL and the column is
	// NOT NULL, so a nil chunk set must fail here too.
	if s.ReceivedChunks == nil {
		return errors.New(`null value in column "received_chunks" violates not-null constraint`)
	}
	clone := *s
	clone.ReceivedChunks = slices.Clone(s.ReceivedChunks)
	m.sessions[s.ID] = &clone
	return nil
}

func (m *memSessions) GetSessionForOwner(_ context.Context, id, ownerID string) (*database.UploadSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.OwnerID != ownerID {
		return nil, database.ErrSessionNotFound
	}
	clone := *s
	clone.ReceivedChunks = slices.Clone(s.ReceivedChunks)
	return &clone, nil
}

func (m *memSessions) AddReceivedChunk(_ context.Context, id string, index int) ([]int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, database.ErrSessionNotFound
	}
	if !slices.Contains(s.ReceivedChunks, int32(index)) {
		s.ReceivedChunks = append(s.ReceivedChunks, int32(index))
	}
	// Duplicates still refresh updated_at, like the SQL fallback UPDATE.
	s.UpdatedAt = time.Now().UTC()
	return slices.Clone(s.ReceivedChunks), nil
}

func (m *memSessions) MarkCompleted(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.State != database.StateReceiving {
		return false, nil
	}
	now := time.Now().UTC()
	s.State = database.StateCompleted
	s.CompletedAt = &now
	s.UpdatedAt = now
	return true, nil
}

func (m *memSessions) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return database.ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

// memArtifacts is an in-memory ArtifactRecords.
type memArtifacts struct {
	mu      sync.Mutex
	records map[string]*database.Artifact
}

func newMemArtifacts() *memArtifacts {
	return &memArtifacts{records: make(map[string]*database.Artifact)}
}

func (m *memArtifacts) CreateArtifact(_ context.Context, a *database.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *a
	m.records[a.ID] = &clone
	return nil
}

func (m *memArtifacts) DeleteArtifact(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return database.ErrArtifactNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *memArtifacts) GetArtifactForOwner(_ context.Context, id, ownerID string) (*database.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.records[id]
	if !ok || a.OwnerID != ownerID {
		return nil, database.ErrArtifactNotFound
	}
	clone := *a
	return &clone, nil
}

// testEnv bundles a transfer service wired to in-memory stores, real
// filesystem staging and a memblob artifact bucket.
type testEnv struct {
	transfer  *TransferService
	streams   *StreamService
	sessions  *memSessions
	artifacts *memArtifacts
	staging   *storage.StagingStore
	objects   *storage.ObjectStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	bucket := memblob.OpenBucket(nil)
	t.Cleanup(func() { bucket.Close() })

	env := &testEnv{
		sessions:  newMemSessions(),
		artifacts: newMemArtifacts(),
		staging:   storage.NewStagingStore(t.TempDir()),
		objects:   storage.NewObjectStore(bucket),
	}
	limits := Limits{
		MaxArtifactSize: 1024 * 1024,
		MaxChunkCount:   100,
		MaxChunkBytes:   1024,
	}
	env.transfer = NewTransferService(env.sessions, env.artifacts, env.staging, env.objects, limits)
	env.streams = NewStreamService(env.artifacts, env.objects)
	return env
}
