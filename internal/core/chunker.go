package core

import (
	"fmt"
	"io"
)

// Chunk describes one slice of a file to be uploaded.
type Chunk struct {
	Index  int
	Offset int64
	Length int64
}

// Plan is the fixed-size chunking of a file. All chunks carry ChunkSize
// bytes except the last, which carries the remainder.
type Plan struct {
	TotalSize int64
	ChunkSize int64
	Chunks    []Chunk
}

// NewPlan splits totalSize bytes into chunkSize slices.
func NewPlan(totalSize, chunkSize int64) (*Plan, error) {
	if totalSize <= 0 {
		return nil, fmt.Errorf("total size must be positive, got %d", totalSize)
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}

	count := int((totalSize + chunkSize - 1) / chunkSize)
	chunks := make([]Chunk, 0, count)
	for i := 0; i < count; i++ {
		offset := int64(i) * chunkSize
		length := chunkSize
		if offset+length > totalSize {
			length = totalSize - offset
		}
		chunks = append(chunks, Chunk{Index: i, Offset: offset, Length: length})
	}

	return &Plan{TotalSize: totalSize, ChunkSize: chunkSize, Chunks: chunks}, nil
}

// Count returns the number of chunks in the plan.
func (p *Plan) Count() int {
	return len(p.Chunks)
}

// Reader returns a reader over one chunk of the underlying file.
func (p *Plan) Reader(r io.ReaderAt, index int) (*io.SectionReader, error) {
	if index < 0 || index >= len(p.Chunks) {
		return nil, fmt.Errorf("chunk index %d out of range [0, %d)", index, len(p.Chunks))
	}
	c := p.Chunks[index]
	return io.NewSectionReader(r, c.Offset, c.Length), nil
}
