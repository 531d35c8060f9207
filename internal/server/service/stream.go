package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"ferry/internal/server/database"
	"ferry/internal/server/storage"
)

// StreamResult describes the response for one artifact download: status
// code, headers and the byte stream. Body is nil when Status is 416. The
// caller owns Body and must close it on every exit path.
type StreamResult struct {
	Status        int
	Filename      string
	ContentType   string
	Size          int64  // total artifact size
	ContentLength int64  // bytes carried by Body
	ContentRange  string // set when Status is 206
	Body          io.ReadCloser
}

// StreamService serves assembled artifacts, honoring HTTP Range requests.
// Committed artifacts are immutable, so concurrent serves need no
// synchronization.
type StreamService struct {
	artifacts ArtifactRecords
	objects   *storage.ObjectStore
}

// NewStreamService creates a new stream service.
func NewStreamService(artifacts ArtifactRecords, objects *storage.ObjectStore) *StreamService {
	return &StreamService{artifacts: artifacts, objects: objects}
}

// Serve resolves the artifact for (artifactID, ownerID) and returns a
// full (200) or partial (206) stream. An unsatisfiable range yields a 416
// result with no body; a malformed Range header is ignored.
func (s *StreamService) Serve(ctx context.Context, artifactID, ownerID, rangeHeader string) (*StreamResult, error) {
	record, err := s.artifacts.GetArtifactForOwner(ctx, artifactID, ownerID)
	if err != nil {
		if errors.Is(err, database.ErrArtifactNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	attrs, err := s.objects.Attributes(ctx, ownerID, artifactID)
	if err != nil {
		slog.Error("artifact record has no backing object", "artifact_id", artifactID, "error", err)
		return nil, ErrNotFound
	}
	size := attrs.Size

	result := &StreamResult{
		Filename:    record.Name,
		ContentType: record.ContentType,
		Size:        size,
	}

	if rangeHeader != "" {
		start, end, ok := parseRange(rangeHeader, size)
		if ok {
			if start >= size || end >= size || start > end {
				result.Status = 416
				return result, ErrRangeNotSatisfiable
			}

			body, err := s.objects.NewRangeReader(ctx, ownerID, artifactID, start, end-start+1)
			if err != nil {
				return nil, fmt.Errorf("failed to open range [%d, %d]: %w", start, end, err)
			}

			result.Status = 206
			result.ContentLength = end - start + 1
			result.ContentRange = fmt.Sprintf("bytes %d-%d/%d", start, end, size)
			result.Body = body
			return result, nil
		}
		slog.Warn("ignoring malformed range header", "artifact_id", artifactID, "range", rangeHeader)
	}

	body, err := s.objects.NewRangeReader(ctx, ownerID, artifactID, 0, -1)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact stream: %w", err)
	}

	result.Status = 200
	result.ContentLength = size
	result.Body = body
	return result, nil
}

// parseRange parses a single "bytes=start-end" header. A missing start
// defaults to 0 and a missing end to size-1. ok is false for anything
// syntactically malformed; satisfiability is the caller's concern.
func parseRange(header string, size int64) (start, end int64, ok bool) {
	spec, found := strings.CutPrefix(header, "bytes=")
	if !found || strings.Contains(spec, ",") {
		return 0, 0, false
	}

	startStr, endStr, found := strings.Cut(strings.TrimSpace(spec), "-")
	if !found || (startStr == "" && endStr == "") {
		return 0, 0, false
	}

	start = 0
	if startStr != "" {
		v, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil || v < 0 {
			return 0, 0, false
		}
		start = v
	}

	end = size - 1
	if endStr != "" {
		v, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || v < 0 {
			return 0, 0, false
		}
		end = v
	}

	return start, end, true
}
