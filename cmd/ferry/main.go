package main

import (
	"fmt"
	"os"
)

// Exit codes
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitInvalidArgs  = 2
	ExitSourceError  = 3
	ExitServerError  = 4
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "upload":
		return runUpload(cmdArgs)
	case "status":
		return runStatus(cmdArgs)
	case "download":
		return runDownload(cmdArgs)
	case "cancel":
		return runCancel(cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: ferry <command> [options]

Commands:
  upload    Split a local file into chunks and upload it
  status    Show chunk progress for an upload session
  download  Fetch an artifact to a local file or stdout
  cancel    Discard an upload session and its staged chunks

Run 'ferry <command> -h' for command-specific help.`)
}
