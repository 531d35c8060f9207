package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"ferry/internal/core"
)

// runUpload splits a local file into fixed-size chunks and uploads them,
// then finalizes the session into a downloadable artifact. Chunks already
// acknowledged by the server are skipped, so rerunning after an
// interruption resumes where the last run stopped.
func runUpload(args []string) int {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)

	file := fs.String("file", "", "Local file to upload (required)")
	server := fs.String("server", envOr("FERRY_SERVER", "http://localhost:8080"), "Ferry server base URL")
	owner := fs.String("owner", os.Getenv("FERRY_OWNER"), "Owner ID (required)")
	session := fs.String("session", "", "Resume an existing session instead of opening a new one")
	chunkSize := fs.Int64("chunk-size", 8*1024*1024, "Chunk size in bytes")
	workers := fs.Int("workers", 4, "Number of parallel chunk uploads")
	name := fs.String("name", "", "Artifact name (defaults to the file's base name)")
	contentType := fs.String("content-type", "application/octet-stream", "Artifact content type")
	timeout := fs.Duration("timeout", time.Minute, "Per-request timeout")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: ferry upload [options]

Split a local file into chunks, upload them and finalize the artifact.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}
	if *file == "" || *owner == "" {
		fmt.Fprintln(os.Stderr, "Error: -file and -owner are required")
		fs.Usage()
		return ExitInvalidArgs
	}

	f, err := os.Open(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot open %s: %v\n", *file, err)
		return ExitSourceError
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot stat %s: %v\n", *file, err)
		return ExitSourceError
	}

	plan, err := core.NewPlan(info.Size(), *chunkSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := core.NewClient(core.Options{
		BaseURL: *server,
		OwnerID: *owner,
		Timeout: *timeout,
	})

	sessionID := *session
	done := make(map[int]bool)
	if sessionID == "" {
		s, err := client.Initialize(ctx, info.Size(), plan.Count())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to open session: %v\n", err)
			return ExitServerError
		}
		sessionID = s.SessionID
		fmt.Printf("Session %s opened: %d chunks of %d bytes\n", sessionID, plan.Count(), *chunkSize)
	} else {
		status, err := client.Status(ctx, sessionID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to query session: %v\n", err)
			return ExitServerError
		}
		if status.ChunkCount != plan.Count() {
			fmt.Fprintf(os.Stderr, "Error: session expects %d chunks, plan has %d (wrong file or chunk size?)\n",
				status.ChunkCount, plan.Count())
			return ExitInvalidArgs
		}
		for _, idx := range status.ReceivedChunks {
			done[int(idx)] = true
		}
		fmt.Printf("Resuming session %s: %d/%d chunks already stored\n",
			sessionID, len(status.ReceivedChunks), plan.Count())
	}

	if err := uploadChunks(ctx, client, f, plan, sessionID, done, *workers); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Rerun with -session %s to resume.\n", sessionID)
		return ExitServerError
	}

	artifactName := *name
	if artifactName == "" {
		artifactName = filepath.Base(*file)
	}
	artifact, err := client.Finalize(ctx, sessionID, artifactName, *contentType)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: finalize failed: %v\n", err)
		return ExitServerError
	}

	fmt.Printf("Artifact %s (%d bytes) available at %s\n", artifact.ArtifactID, artifact.Size, artifact.DownloadURL)
	return ExitSuccess
}

// uploadChunks pushes every pending chunk through a small worker pool.
func uploadChunks(ctx context.Context, client *core.Client, f io.ReaderAt, plan *core.Plan, sessionID string, done map[int]bool, workers int) error {
	pending := make(chan int, plan.Count())
	for _, c := range plan.Chunks {
		if !done[c.Index] {
			pending <- c.Index
		}
	}
	close(pending)

	if workers < 1 {
		workers = 1
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range pending {
				mu.Lock()
				failed := firstErr != nil
				mu.Unlock()
				if failed || ctx.Err() != nil {
					return
				}

				r, err := plan.Reader(f, index)
				if err == nil {
					var payload []byte
					payload, err = io.ReadAll(r)
					if err == nil {
						_, err = client.PutChunk(ctx, sessionID, index, payload)
					}
				}
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("chunk %d: %w", index, err)
					}
					mu.Unlock()
					return
				}
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
