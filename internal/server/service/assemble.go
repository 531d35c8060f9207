package service

import (
	"context"
	"fmt"
	"io"

	"ferry/internal/server/database"
)

// assemble streams fragments chunk_0 .. chunk_{n-1} in ascending index
// order into a new artifact object, so artifact byte order always equals
// chunk-index order regardless of arrival order. The writer only commits
// on a clean Close; any read/write error or a byte-count mismatch against
// the declared total size aborts the writer and nothing becomes visible.
func (s *TransferService) assemble(ctx context.Context, session *database.UploadSession, artifactID, contentType string) (int64, error) {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := s.objects.NewWriter(wctx, session.OwnerID, artifactID, contentType)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrAssemblyFailed, err)
	}

	abort := func() {
		cancel()
		w.Close()
	}

	var written int64
	for i := 0; i < session.ChunkCount; i++ {
		n, err := s.appendFragment(w, session.ID, i)
		if err != nil {
			abort()
			return 0, fmt.Errorf("%w: chunk %d: %v", ErrAssemblyFailed, i, err)
		}
		written += n
	}

	if written != session.TotalSize {
		abort()
		return 0, fmt.Errorf("%w: declared %d, assembled %d", ErrSizeMismatch, session.TotalSize, written)
	}

	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("%w: commit: %v", ErrAssemblyFailed, err)
	}

	return written, nil
}

func (s *TransferService) appendFragment(w io.Writer, sessionID string, index int) (int64, error) {
	f, err := s.staging.OpenFragment(sessionID, index)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	return io.Copy(w, f)
}
