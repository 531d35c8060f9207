package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

var (
	ErrSessionNotFound  = errors.New("upload session not found")
	ErrArtifactNotFound = errors.New("artifact not found")
)

// Repository provides persistence for upload sessions and artifact records.
type Repository struct {
	db *DB
}

// NewRepository creates a new Repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

const sessionColumns = `id, owner_id, total_size, chunk_count, received_chunks,
	   state, created_at, updated_at, completed_at`

// CreateSession inserts a new upload session record.
func (r *Repository) CreateSession(ctx context.Context, s *UploadSession) error {
	// pgx encodes a nil slice as SQL NULL, and received_chunks is NOT NULL.
	received := s.ReceivedChunks
	if received == nil {
		received = []int32{}
	}
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO upload_sessions (
			id, owner_id, total_size, chunk_count, received_chunks,
			state, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		s.ID,
		s.OwnerID,
		s.TotalSize,
		s.ChunkCount,
		received,
		s.State,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSessionForOwner retrieves a session scoped to its owner.
func (r *Repository) GetSessionForOwner(ctx context.Context, id, ownerID string) (*UploadSession, error) {
	s := &UploadSession{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM upload_sessions WHERE id = $1 AND owner_id = $2
	`, id, ownerID).Scan(
		&s.ID,
		&s.OwnerID,
		&s.TotalSize,
		&s.ChunkCount,
		&s.ReceivedChunks,
		&s.State,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// AddReceivedChunk records a chunk index with add-to-set semantics in a
// single statement, so concurrent chunk arrivals never lose updates and an
// index is never duplicated. Returns the updated index set. Re-adding a
// present index leaves the set unchanged but still refreshes updated_at,
// so a retrying client does not drift toward the abandoned-session sweep.
func (r *Repository) AddReceivedChunk(ctx context.Context, id string, index int) ([]int32, error) {
	var received []int32
	err := r.db.Pool.QueryRow(ctx, `
		UPDATE upload_sessions
		SET received_chunks = array_append(received_chunks, $2),
		    updated_at = NOW()
		WHERE id = $1 AND NOT (received_chunks @> ARRAY[$2]::integer[])
		RETURNING received_chunks
	`, id, int32(index)).Scan(&received)
	if err == nil {
		return received, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to add received chunk: %w", err)
	}

	// Index already present, or no such session. Touch the row to tell
	// apart; the duplicate path keeps updated_at fresh.
	err = r.db.Pool.QueryRow(ctx, `
		UPDATE upload_sessions SET updated_at = NOW()
		WHERE id = $1
		RETURNING received_chunks
	`, id).Scan(&received)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to read received chunks: %w", err)
	}
	return received, nil
}

// MarkCompleted flips the one-way completion latch. It reports whether this
// caller won the transition; a false result means another finalize got
// there first.
func (r *Repository) MarkCompleted(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE upload_sessions
		SET state = $2, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND state = $3
	`, id, StateCompleted, StateReceiving)
	if err != nil {
		return false, fmt.Errorf("failed to mark session completed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteSession removes a session record by ID.
func (r *Repository) DeleteSession(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM upload_sessions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// FindStale returns sessions eligible for a retention sweep. With
// completed=false it selects abandoned uploads by last activity; with
// completed=true it selects finished sessions by completion time.
func (r *Repository) FindStale(ctx context.Context, olderThan time.Time, completed bool) ([]*UploadSession, error) {
	var rows pgx.Rows
	var err error
	if completed {
		rows, err = r.db.Pool.Query(ctx, `
			SELECT `+sessionColumns+`
			FROM upload_sessions
			WHERE state = $1 AND completed_at < $2
		`, StateCompleted, olderThan)
	} else {
		rows, err = r.db.Pool.Query(ctx, `
			SELECT `+sessionColumns+`
			FROM upload_sessions
			WHERE state = $1 AND updated_at < $2
		`, StateReceiving, olderThan)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query stale sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*UploadSession
	for rows.Next() {
		s := &UploadSession{}
		if err := rows.Scan(
			&s.ID,
			&s.OwnerID,
			&s.TotalSize,
			&s.ChunkCount,
			&s.ReceivedChunks,
			&s.State,
			&s.CreatedAt,
			&s.UpdatedAt,
			&s.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan stale session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// CreateArtifact inserts a new artifact metadata record.
func (r *Repository) CreateArtifact(ctx context.Context, a *Artifact) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO artifacts (id, owner_id, name, content_type, size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		a.ID,
		a.OwnerID,
		a.Name,
		a.ContentType,
		a.Size,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create artifact record: %w", err)
	}
	return nil
}

// GetArtifactForOwner retrieves an artifact record scoped to its owner.
func (r *Repository) GetArtifactForOwner(ctx context.Context, id, ownerID string) (*Artifact, error) {
	a := &Artifact{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, owner_id, name, content_type, size, created_at
		FROM artifacts WHERE id = $1 AND owner_id = $2
	`, id, ownerID).Scan(
		&a.ID,
		&a.OwnerID,
		&a.Name,
		&a.ContentType,
		&a.Size,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrArtifactNotFound
		}
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return a, nil
}

// DeleteArtifact removes an artifact record by ID.
func (r *Repository) DeleteArtifact(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM artifacts WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete artifact record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrArtifactNotFound
	}
	return nil
}

// GetStats returns aggregate server statistics.
func (r *Repository) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := r.db.Pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM upload_sessions),
			(SELECT COUNT(*) FROM upload_sessions WHERE state = 'receiving'),
			(SELECT COUNT(*) FROM artifacts),
			(SELECT COALESCE(SUM(size), 0) FROM artifacts)
	`).Scan(
		&stats.TotalSessions,
		&stats.ActiveSessions,
		&stats.TotalArtifacts,
		&stats.StorageUsed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}
