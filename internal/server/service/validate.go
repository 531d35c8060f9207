package service

import "fmt"

// Limits are the configured ceilings for session and chunk parameters.
type Limits struct {
	MaxArtifactSize int64
	MaxChunkCount   int
	MaxChunkBytes   int64
}

// ValidateSessionParams checks the declared shape of a new upload session.
// Pure function of its inputs.
func ValidateSessionParams(totalSize int64, chunkCount int, limits Limits) error {
	if totalSize <= 0 {
		return fmt.Errorf("%w: total size must be positive, got %d", ErrInvalidParameters, totalSize)
	}
	if chunkCount <= 0 {
		return fmt.Errorf("%w: chunk count must be positive, got %d", ErrInvalidParameters, chunkCount)
	}
	if totalSize > limits.MaxArtifactSize {
		return fmt.Errorf("%w: total size %d exceeds maximum %d", ErrInvalidParameters, totalSize, limits.MaxArtifactSize)
	}
	if chunkCount > limits.MaxChunkCount {
		return fmt.Errorf("%w: chunk count %d exceeds maximum %d", ErrInvalidParameters, chunkCount, limits.MaxChunkCount)
	}
	return nil
}

// ValidateChunk checks one chunk's index and payload length against the
// session shape. Pure function of its inputs.
func ValidateChunk(index, chunkCount int, payloadLen, maxChunkBytes int64) error {
	if payloadLen == 0 {
		return fmt.Errorf("%w: empty payload", ErrInvalidChunk)
	}
	if index < 0 || index >= chunkCount {
		return fmt.Errorf("%w: index %d out of range [0, %d)", ErrInvalidChunk, index, chunkCount)
	}
	if payloadLen > maxChunkBytes {
		return fmt.Errorf("%w: payload of %d bytes exceeds per-chunk maximum %d", ErrInvalidChunk, payloadLen, maxChunkBytes)
	}
	return nil
}
