package core

import (
	"bytes"
	"io"
	"testing"
)

func TestNewPlan(t *testing.T) {
	t.Run("exact multiple", func(t *testing.T) {
		plan, err := NewPlan(100, 25)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if plan.Count() != 4 {
			t.Fatalf("expected 4 chunks, got %d", plan.Count())
		}
		for i, c := range plan.Chunks {
			if c.Index != i || c.Offset != int64(i)*25 || c.Length != 25 {
				t.Errorf("chunk %d = %+v", i, c)
			}
		}
	})

	t.Run("remainder in last chunk", func(t *testing.T) {
		plan, err := NewPlan(110, 50)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if plan.Count() != 3 {
			t.Fatalf("expected 3 chunks, got %d", plan.Count())
		}
		last := plan.Chunks[2]
		if last.Offset != 100 || last.Length != 10 {
			t.Errorf("last chunk = %+v, want offset 100 length 10", last)
		}
	})

	t.Run("file smaller than chunk size", func(t *testing.T) {
		plan, err := NewPlan(10, 1024)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if plan.Count() != 1 || plan.Chunks[0].Length != 10 {
			t.Errorf("plan = %+v", plan.Chunks)
		}
	})

	t.Run("invalid sizes", func(t *testing.T) {
		if _, err := NewPlan(0, 10); err == nil {
			t.Error("expected error for zero total size")
		}
		if _, err := NewPlan(10, 0); err == nil {
			t.Error("expected error for zero chunk size")
		}
	})
}

func TestPlanReader(t *testing.T) {
	data := []byte("abcdefghijklmnopqrstuvwxyz")
	plan, err := NewPlan(int64(len(data)), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"abcdefghij", "klmnopqrst", "uvwxyz"}
	for i, expected := range want {
		r, err := plan.Reader(bytes.NewReader(data), i)
		if err != nil {
			t.Fatalf("chunk %d: unexpected error: %v", i, err)
		}
		got, err := io.ReadAll(r)
		if err != nil {
			t.Fatalf("chunk %d: read failed: %v", i, err)
		}
		if string(got) != expected {
			t.Errorf("chunk %d = %q, want %q", i, got, expected)
		}
	}

	if _, err := plan.Reader(bytes.NewReader(data), 3); err == nil {
		t.Error("expected error for out-of-range index")
	}
	if _, err := plan.Reader(bytes.NewReader(data), -1); err == nil {
		t.Error("expected error for negative index")
	}
}
