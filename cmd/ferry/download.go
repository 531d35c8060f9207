package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ferry/internal/core"
)

// runDownload fetches an artifact to a local file, or stdout with "-o -".
func runDownload(args []string) int {
	fs := flag.NewFlagSet("download", flag.ExitOnError)

	artifact := fs.String("artifact", "", "Artifact ID to download (required)")
	server := fs.String("server", envOr("FERRY_SERVER", "http://localhost:8080"), "Ferry server base URL")
	owner := fs.String("owner", os.Getenv("FERRY_OWNER"), "Owner ID (required)")
	output := fs.String("o", "", "Output path, or '-' for stdout (required)")
	byteRange := fs.String("range", "", "Byte range to fetch, e.g. 'bytes=0-1023'")
	timeout := fs.Duration("timeout", 10*time.Minute, "Overall download timeout")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: ferry download [options]

Fetch an artifact to a local file or stdout.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}
	if *artifact == "" || *owner == "" || *output == "" {
		fmt.Fprintln(os.Stderr, "Error: -artifact, -owner and -o are required")
		fs.Usage()
		return ExitInvalidArgs
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, timeoutCancel := context.WithTimeout(ctx, *timeout)
	defer timeoutCancel()

	client := core.NewClient(core.Options{BaseURL: *server, OwnerID: *owner, Timeout: *timeout})

	body, err := client.Download(ctx, *artifact, *byteRange)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: download failed: %v\n", err)
		return ExitServerError
	}
	defer body.Close()

	var dst io.Writer = os.Stdout
	if *output != "-" {
		f, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot create %s: %v\n", *output, err)
			return ExitGeneralError
		}
		defer f.Close()
		dst = f
	}

	n, err := io.Copy(dst, body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: copy failed after %d bytes: %v\n", n, err)
		return ExitGeneralError
	}

	if *output != "-" {
		fmt.Printf("Wrote %d bytes to %s\n", n, *output)
	}
	return ExitSuccess
}
