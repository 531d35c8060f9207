package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"ferry/internal/server/database"
)

// seedArtifact stores an object and its record, size 150: 150 distinct
// position-dependent bytes so range slices are verifiable.
func seedArtifact(t *testing.T, env *testEnv) (string, []byte) {
	t.Helper()
	ctx := context.Background()

	data := make([]byte, 150)
	for i := range data {
		data[i] = byte(i)
	}

	w, err := env.objects.NewWriter(ctx, "owner1", "art1", "application/octet-stream")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w.Write(data)
	if err := w.Close(); err != nil {
		t.Fatalf("failed to store artifact: %v", err)
	}

	env.artifacts.CreateArtifact(ctx, &database.Artifact{
		ID:          "art1",
		OwnerID:     "owner1",
		Name:        "media.bin",
		ContentType: "application/octet-stream",
		Size:        150,
		CreatedAt:   time.Now().UTC(),
	})
	return "art1", data
}

func readBody(t *testing.T, res *StreamResult) []byte {
	t.Helper()
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return data
}

func TestServe_FullStream(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id, data := seedArtifact(t, env)

	res, err := env.streams.Serve(ctx, id, "owner1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != 200 {
		t.Errorf("expected 200, got %d", res.Status)
	}
	if res.ContentLength != 150 {
		t.Errorf("expected content length 150, got %d", res.ContentLength)
	}

	body := readBody(t, res)
	if string(body) != string(data) {
		t.Error("full stream does not match artifact bytes")
	}
}

func TestServe_PartialContent(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit range", func(t *testing.T) {
		env := newTestEnv(t)
		id, data := seedArtifact(t, env)

		res, err := env.streams.Serve(ctx, id, "owner1", "bytes=0-99")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Status != 206 {
			t.Errorf("expected 206, got %d", res.Status)
		}
		if res.ContentRange != "bytes 0-99/150" {
			t.Errorf("expected 'bytes 0-99/150', got %q", res.ContentRange)
		}
		if res.ContentLength != 100 {
			t.Errorf("expected content length 100, got %d", res.ContentLength)
		}

		body := readBody(t, res)
		if len(body) != 100 {
			t.Fatalf("expected exactly 100 bytes, got %d", len(body))
		}
		if string(body) != string(data[:100]) {
			t.Error("partial stream does not match artifact slice")
		}
	})

	t.Run("open-ended range defaults end to size-1", func(t *testing.T) {
		env := newTestEnv(t)
		id, data := seedArtifact(t, env)

		res, err := env.streams.Serve(ctx, id, "owner1", "bytes=100-")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.ContentRange != "bytes 100-149/150" {
			t.Errorf("expected 'bytes 100-149/150', got %q", res.ContentRange)
		}

		body := readBody(t, res)
		if string(body) != string(data[100:]) {
			t.Error("tail slice does not match")
		}
	})

	t.Run("missing start defaults to 0", func(t *testing.T) {
		env := newTestEnv(t)
		id, data := seedArtifact(t, env)

		res, err := env.streams.Serve(ctx, id, "owner1", "bytes=-49")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.ContentRange != "bytes 0-49/150" {
			t.Errorf("expected 'bytes 0-49/150', got %q", res.ContentRange)
		}

		body := readBody(t, res)
		if string(body) != string(data[:50]) {
			t.Error("head slice does not match")
		}
	})
}

func TestServe_RangeNotSatisfiable(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name   string
		header string
	}{
		{"start at size", "bytes=150-150"},
		{"start past size", "bytes=500-"},
		{"end past size", "bytes=0-150"},
		{"inverted range", "bytes=50-10"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			id, _ := seedArtifact(t, env)

			res, err := env.streams.Serve(ctx, id, "owner1", tc.header)
			if !errors.Is(err, ErrRangeNotSatisfiable) {
				t.Fatalf("expected ErrRangeNotSatisfiable, got %v", err)
			}
			if res == nil || res.Status != 416 {
				t.Errorf("expected a 416 result, got %+v", res)
			}
			if res.Body != nil {
				t.Error("416 must carry no body")
			}
		})
	}
}

func TestServe_MalformedRangeIgnored(t *testing.T) {
	ctx := context.Background()

	for _, header := range []string{"bytes=abc-def", "items=0-5", "bytes=-", "bytes=0-5,10-15"} {
		t.Run(header, func(t *testing.T) {
			env := newTestEnv(t)
			id, _ := seedArtifact(t, env)

			res, err := env.streams.Serve(ctx, id, "owner1", header)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Status != 200 {
				t.Errorf("expected full 200 response, got %d", res.Status)
			}
			readBody(t, res)
		})
	}
}

func TestServe_NotFound(t *testing.T) {
	ctx := context.Background()

	t.Run("no record", func(t *testing.T) {
		env := newTestEnv(t)

		if _, err := env.streams.Serve(ctx, "ghost", "owner1", ""); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("foreign owner", func(t *testing.T) {
		env := newTestEnv(t)
		id, _ := seedArtifact(t, env)

		if _, err := env.streams.Serve(ctx, id, "owner2", ""); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("backing object missing", func(t *testing.T) {
		env := newTestEnv(t)
		id, _ := seedArtifact(t, env)
		env.objects.Delete(ctx, "owner1", id)

		if _, err := env.streams.Serve(ctx, id, "owner1", ""); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		header string
		start  int64
		end    int64
		ok     bool
	}{
		{"bytes=0-99", 0, 99, true},
		{"bytes=100-", 100, 149, true},
		{"bytes=-49", 0, 49, true},
		{"bytes=0-0", 0, 0, true},
		{"bytes=200-300", 200, 300, true}, // satisfiability is Serve's call
		{"bytes=-", 0, 0, false},
		{"bytes=", 0, 0, false},
		{"0-99", 0, 0, false},
		{"bytes=a-b", 0, 0, false},
		{"bytes=0-5,10-15", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			start, end, ok := parseRange(tt.header, 150)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if start != tt.start || end != tt.end {
				t.Errorf("got [%d, %d], want [%d, %d]", start, end, tt.start, tt.end)
			}
		})
	}
}
