package storage

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
)

// ObjectStore holds assembled artifacts in a blob bucket under
// {ownerID}/{artifactID}. Writers only publish on a successful Close, so a
// partially-written artifact is never visible to readers; committed
// objects are immutable and safe for concurrent range reads.
type ObjectStore struct {
	bucket *blob.Bucket
}

// NewObjectStore wraps an open bucket.
func NewObjectStore(bucket *blob.Bucket) *ObjectStore {
	return &ObjectStore{bucket: bucket}
}

// OpenBucket opens the artifact bucket from a gocloud URL ("s3://...",
// "file:///...") or, when no scheme is present, a local directory.
func OpenBucket(ctx context.Context, spec string) (*blob.Bucket, error) {
	if strings.Contains(spec, "://") {
		bucket, err := blob.OpenBucket(ctx, spec)
		if err != nil {
			return nil, fmt.Errorf("failed to open bucket %s: %w", spec, err)
		}
		return bucket, nil
	}

	if err := os.MkdirAll(spec, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory %s: %w", spec, err)
	}
	bucket, err := fileblob.OpenBucket(spec, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact directory %s: %w", spec, err)
	}
	return bucket, nil
}

// NewWriter opens a writer for a new artifact object. Cancel the supplied
// context before Close to abort without committing.
func (s *ObjectStore) NewWriter(ctx context.Context, ownerID, artifactID, contentType string) (*blob.Writer, error) {
	w, err := s.bucket.NewWriter(ctx, objectKey(ownerID, artifactID), &blob.WriterOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact writer: %w", err)
	}
	return w, nil
}

// Attributes returns metadata for a stored artifact, or an error if the
// backing object is missing.
func (s *ObjectStore) Attributes(ctx context.Context, ownerID, artifactID string) (*blob.Attributes, error) {
	attrs, err := s.bucket.Attributes(ctx, objectKey(ownerID, artifactID))
	if err != nil {
		return nil, fmt.Errorf("failed to stat artifact %s: %w", artifactID, err)
	}
	return attrs, nil
}

// NewRangeReader streams length bytes of an artifact starting at offset.
// length < 0 reads to the end.
func (s *ObjectStore) NewRangeReader(ctx context.Context, ownerID, artifactID string, offset, length int64) (*blob.Reader, error) {
	r, err := s.bucket.NewRangeReader(ctx, objectKey(ownerID, artifactID), offset, length, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact reader: %w", err)
	}
	return r, nil
}

// Delete removes an artifact object.
func (s *ObjectStore) Delete(ctx context.Context, ownerID, artifactID string) error {
	if err := s.bucket.Delete(ctx, objectKey(ownerID, artifactID)); err != nil {
		return fmt.Errorf("failed to delete artifact %s: %w", artifactID, err)
	}
	return nil
}

// Close releases the underlying bucket.
func (s *ObjectStore) Close() error {
	return s.bucket.Close()
}

func objectKey(ownerID, artifactID string) string {
	return ownerID + "/" + artifactID
}
