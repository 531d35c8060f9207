package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"ferry/internal/core"
)

// runCancel discards an upload session and its staged chunks.
func runCancel(args []string) int {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)

	session := fs.String("session", "", "Session ID to cancel (required)")
	server := fs.String("server", envOr("FERRY_SERVER", "http://localhost:8080"), "Ferry server base URL")
	owner := fs.String("owner", os.Getenv("FERRY_OWNER"), "Owner ID (required)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: ferry cancel [options]

Discard an upload session and its staged chunks.

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
	if err := client.Cancel(ctx, *session); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitServerError
	}

	fmt.Printf("Session %s cancelled\n", *session)
	return ExitSuccess
}
