package service

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the service layer.
var (
	ErrInvalidParameters   = errors.New("invalid session parameters")
	ErrInvalidChunk        = errors.New("invalid chunk")
	ErrNotFound            = errors.New("not found")
	ErrAlreadyCompleted    = errors.New("upload already completed")
	ErrAssemblyFailed      = errors.New("artifact assembly failed")
	ErrSizeMismatch        = errors.New("assembled bytes do not match declared total size")
	ErrRangeNotSatisfiable = errors.New("requested range not satisfiable")
)

// IncompleteError is returned by Finalize when chunks are still missing.
// The missing index list lets a client resume precisely.
type IncompleteError struct {
	Missing []int32
}

func (e *IncompleteError) Error() string {
	parts := make([]string, len(e.Missing))
	for i, idx := range e.Missing {
		parts[i] = fmt.Sprintf("%d", idx)
	}
	return fmt.Sprintf("upload incomplete: missing chunks [%s]", strings.Join(parts, ", "))
}
