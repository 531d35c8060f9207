package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"ferry/internal/server/database"
	"ferry/internal/server/storage"

	"github.com/google/uuid"
)

// SessionStore is the durable record of upload-session progress. It is the
// single source of truth for received chunk indices; AddReceivedChunk must
// have atomic add-to-set semantics.
type SessionStore interface {
	CreateSession(ctx context.Context, s *database.UploadSession) error
	GetSessionForOwner(ctx context.Context, id, ownerID string) (*database.UploadSession, error)
	AddReceivedChunk(ctx context.Context, id string, index int) ([]int32, error)
	MarkCompleted(ctx context.Context, id string) (bool, error)
	DeleteSession(ctx context.Context, id string) error
}

// ArtifactRecords persists metadata for assembled artifacts.
type ArtifactRecords interface {
	CreateArtifact(ctx context.Context, a *database.Artifact) error
	GetArtifactForOwner(ctx context.Context, id, ownerID string) (*database.Artifact, error)
	DeleteArtifact(ctx context.Context, id string) error
}

// Staging stores unassembled chunk fragments.
type Staging interface {
	CreateSession(sessionID string) error
	WriteFragment(sessionID string, index int, data io.Reader) (int64, error)
	OpenFragment(sessionID string, index int) (io.ReadCloser, error)
	RemoveSession(sessionID string) error
}

// ArtifactMetadata is caller-supplied metadata for a finalized artifact.
type ArtifactMetadata struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
}

// UploadStatus is the read-only progress projection of a session.
type UploadStatus struct {
	SessionID      string  `json:"session_id"`
	ChunkCount     int     `json:"chunk_count"`
	ReceivedChunks []int32 `json:"received_chunks"`
	MissingChunks  []int32 `json:"missing_chunks"`
	IsCompleted    bool    `json:"is_completed"`
	Percent        int     `json:"percent"`
}

// TransferService orchestrates the upload-session lifecycle: creation,
// chunk acceptance, completion and assembly, cancellation.
type TransferService struct {
	sessions  SessionStore
	artifacts ArtifactRecords
	staging   Staging
	objects   *storage.ObjectStore
	limits    Limits
}

// NewTransferService creates a new transfer service.
func NewTransferService(sessions SessionStore, artifacts ArtifactRecords, staging Staging, objects *storage.ObjectStore, limits Limits) *TransferService {
	return &TransferService{
		sessions:  sessions,
		artifacts: artifacts,
		staging:   staging,
		objects:   objects,
		limits:    limits,
	}
}

// Initialize validates the declared shape, allocates a staging location and
// creates the session record.
func (s *TransferService) Initialize(ctx context.Context, ownerID string, totalSize int64, chunkCount int) (*database.UploadSession, error) {
	if err := ValidateSessionParams(totalSize, chunkCount, s.limits); err != nil {
		return nil, err
	}

	sessionID := uuid.NewString()
	if err := s.staging.CreateSession(sessionID); err != nil {
		return nil, fmt.Errorf("failed to allocate staging: %w", err)
	}

	now := time.Now().UTC()
	session := &database.UploadSession{
		ID:         sessionID,
		OwnerID:    ownerID,
		TotalSize:  totalSize,
		ChunkCount: chunkCount,
		// Empty, not nil: pgx encodes a nil slice as SQL NULL, which the
		// NOT NULL received_chunks column rejects.
		ReceivedChunks: []int32{},
		State:          database.StateReceiving,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.sessions.CreateSession(ctx, session); err != nil {
		// Clean up staging on DB failure
		if rerr := s.staging.RemoveSession(sessionID); rerr != nil {
			slog.Error("failed to remove staging after create failure", "session_id", sessionID, "error", rerr)
		}
		return nil, fmt.Errorf("failed to create session record: %w", err)
	}

	slog.Info("upload session created",
		"session_id", sessionID,
		"owner_id", ownerID,
		"total_size", totalSize,
		"chunk_count", chunkCount,
	)

	return session, nil
}

// AcceptChunk validates and durably stores one chunk, then records its
// index. Re-sending an already-received index returns success without
// rewriting the fragment, so client retries are safe. Returns the updated
// received-index set.
func (s *TransferService) AcceptChunk(ctx context.Context, sessionID, ownerID string, index int, payload []byte) ([]int32, error) {
	session, err := s.getSession(ctx, sessionID, ownerID)
	if err != nil {
		return nil, err
	}
	if session.State == database.StateCompleted {
		return nil, ErrAlreadyCompleted
	}

	if err := ValidateChunk(index, session.ChunkCount, int64(len(payload)), s.limits.MaxChunkBytes); err != nil {
		return nil, err
	}

	// A duplicate index skips the fragment write but still goes through the
	// store, so retries keep refreshing updated_at and a long resend loop
	// never turns into an abandoned-looking session.
	if !slices.Contains(session.ReceivedChunks, int32(index)) {
		if _, err := s.staging.WriteFragment(sessionID, index, bytes.NewReader(payload)); err != nil {
			return nil, fmt.Errorf("failed to store chunk %d: %w", index, err)
		}
	}

	received, err := s.sessions.AddReceivedChunk(ctx, sessionID, index)
	if err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to record chunk %d: %w", index, err)
	}

	return sortedIndices(received), nil
}

// Finalize assembles the artifact once every chunk has arrived, persists
// the artifact record, then wins the completion latch. Concurrent calls
// for the same session are safe: exactly one caller succeeds, the others
// discard their copy and observe ErrAlreadyCompleted.
func (s *TransferService) Finalize(ctx context.Context, sessionID, ownerID string, meta ArtifactMetadata) (*database.Artifact, error) {
	session, err := s.getSession(ctx, sessionID, ownerID)
	if err != nil {
		return nil, err
	}
	if session.State == database.StateCompleted {
		return nil, ErrAlreadyCompleted
	}

	if missing := missingChunks(session.ChunkCount, session.ReceivedChunks); len(missing) > 0 {
		return nil, &IncompleteError{Missing: missing}
	}

	artifactID := uuid.NewString()
	contentType := meta.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	written, err := s.assemble(ctx, session, artifactID, contentType)
	if err != nil {
		return nil, err
	}

	// The artifact record goes in before the completion latch. The latch is
	// one-way, so anything persisted after winning it cannot be retried; a
	// record-insert failure here leaves the session receiving and the
	// caller free to finalize again.
	artifact := &database.Artifact{
		ID:          artifactID,
		OwnerID:     session.OwnerID,
		Name:        sanitizeName(meta.Name),
		ContentType: contentType,
		Size:        written,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.artifacts.CreateArtifact(ctx, artifact); err != nil {
		s.discardObject(ctx, ownerID, artifactID)
		return nil, fmt.Errorf("failed to create artifact record: %w", err)
	}

	won, err := s.sessions.MarkCompleted(ctx, sessionID)
	if err != nil {
		s.discardArtifact(ctx, ownerID, artifactID)
		return nil, fmt.Errorf("failed to complete session: %w", err)
	}
	if !won {
		// Another finalize committed first; drop our copy.
		s.discardArtifact(ctx, ownerID, artifactID)
		return nil, ErrAlreadyCompleted
	}

	if err := s.staging.RemoveSession(sessionID); err != nil {
		slog.Error("failed to remove staging after assembly", "session_id", sessionID, "error", err)
	}

	slog.Info("upload finalized",
		"session_id", sessionID,
		"artifact_id", artifactID,
		"owner_id", ownerID,
		"size", written,
	)

	return artifact, nil
}

// Status returns the read-only progress projection of a session.
func (s *TransferService) Status(ctx context.Context, sessionID, ownerID string) (*UploadStatus, error) {
	session, err := s.getSession(ctx, sessionID, ownerID)
	if err != nil {
		return nil, err
	}

	received := sortedIndices(session.ReceivedChunks)
	return &UploadStatus{
		SessionID:      session.ID,
		ChunkCount:     session.ChunkCount,
		ReceivedChunks: received,
		MissingChunks:  missingChunks(session.ChunkCount, received),
		IsCompleted:    session.State == database.StateCompleted,
		Percent:        100 * len(received) / session.ChunkCount,
	}, nil
}

// Cancel destroys an in-progress session's staging fragments and record.
// A completed session cannot be cancelled.
func (s *TransferService) Cancel(ctx context.Context, sessionID, ownerID string) error {
	session, err := s.getSession(ctx, sessionID, ownerID)
	if err != nil {
		return err
	}
	if session.State == database.StateCompleted {
		return ErrAlreadyCompleted
	}

	if err := s.staging.RemoveSession(sessionID); err != nil {
		slog.Error("failed to remove staging on cancel", "session_id", sessionID, "error", err)
		// Continue with record deletion; the abandoned sweep will retry the files.
	}

	if err := s.sessions.DeleteSession(ctx, sessionID); err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete session record: %w", err)
	}

	slog.Info("upload cancelled", "session_id", sessionID, "owner_id", ownerID)
	return nil
}

func (s *TransferService) getSession(ctx context.Context, sessionID, ownerID string) (*database.UploadSession, error) {
	session, err := s.sessions.GetSessionForOwner(ctx, sessionID, ownerID)
	if err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return session, nil
}

func (s *TransferService) discardObject(ctx context.Context, ownerID, artifactID string) {
	if err := s.objects.Delete(ctx, ownerID, artifactID); err != nil {
		slog.Error("failed to discard orphaned artifact object", "artifact_id", artifactID, "error", err)
	}
}

// discardArtifact removes a provisional artifact record and its object.
func (s *TransferService) discardArtifact(ctx context.Context, ownerID, artifactID string) {
	if err := s.artifacts.DeleteArtifact(ctx, artifactID); err != nil {
		slog.Error("failed to discard orphaned artifact record", "artifact_id", artifactID, "error", err)
	}
	s.discardObject(ctx, ownerID, artifactID)
}

// missingChunks returns [0, chunkCount) \ received, ascending.
func missingChunks(chunkCount int, received []int32) []int32 {
	have := make(map[int32]bool, len(received))
	for _, idx := range received {
		have[idx] = true
	}

	var missing []int32
	for i := 0; i < chunkCount; i++ {
		if !have[int32(i)] {
			missing = append(missing, int32(i))
		}
	}
	return missing
}

func sortedIndices(indices []int32) []int32 {
	out := slices.Clone(indices)
	slices.Sort(out)
	return out
}

// sanitizeName strips directory components and limits length.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)

	if len(name) > 255 {
		ext := filepath.Ext(name)
		name = name[:255-len(ext)] + ext
	}

	if name == "" || name == "." || name == "/" {
		name = "artifact.bin"
	}

	return name
}
