package database

import "time"

// SessionState is the explicit lifecycle state of an upload session.
// Cancelled and abandoned sessions are deleted outright, so only the
// two live states are persisted.
type SessionState string

const (
	StateReceiving SessionState = "receiving"
	StateCompleted SessionState = "completed"
)

// UploadSession tracks one chunked transfer's declared shape and progress.
type UploadSession struct {
	ID             string
	OwnerID        string
	TotalSize      int64
	ChunkCount     int
	ReceivedChunks []int32
	State          SessionState
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time // nil until the completion latch fires
}

// Artifact is the metadata record for an assembled, immutable file.
// The blob object lives at {owner_id}/{id} in the artifact bucket.
type Artifact struct {
	ID          string
	OwnerID     string
	Name        string
	ContentType string
	Size        int64
	CreatedAt   time.Time
}

// Stats holds aggregate server statistics.
type Stats struct {
	TotalSessions  int64
	ActiveSessions int64
	TotalArtifacts int64
	StorageUsed    int64
}
