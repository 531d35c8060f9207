package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"ferry/internal/core"
)

// runStatus prints chunk progress for one upload session.
func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ExitOnError)

	session := fs.String("session", "", "Session ID to inspect (required)")
	server := fs.String("server", envOr("FERRY_SERVER", "http://localhost:8080"), "Ferry server base URL")
	owner := fs.String("owner", os.Getenv("FERRY_OWNER"), "Owner ID (required)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: ferry status [options]

Show chunk progress for an upload session.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}
	if *session == "" || *owner == "" {
		fmt.Fprintln(os.Stderr, "Error: -session and -owner are required")
		fs.Usage()
		return ExitInvalidArgs
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := core.NewClient(core.Options{BaseURL: *server, OwnerID: *owner})
	status, err := client.Status(ctx, *session)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitServerError
	}

	fmt.Printf("Session:  %s\n", status.SessionID)
	fmt.Printf("Progress: %d%% (%d/%d chunks)\n", status.Percent, len(status.ReceivedChunks), status.ChunkCount)
	if status.IsCompleted {
		fmt.Println("State:    completed")
	} else {
		fmt.Println("State:    receiving")
		if len(status.MissingChunks) > 0 {
			fmt.Printf("Missing:  %v\n", status.MissingChunks)
		}
	}
	return ExitSuccess
}
