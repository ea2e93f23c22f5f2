package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// Exit codes. A blocked transition is an answer, not a failure, so scripts
// can tell it apart from a broken state directory.
const (
	exitFailure = 1
	exitBlocked = 2
)

func main() {
	os.Exit(run(newRootCommand().Execute, os.Stderr))
}

func run(execute func() error, stderr io.Writer) int {
	err := execute()
	if err == nil {
		return 0
	}
	if !errors.Is(err, context.Canceled) {
		fmt.Fprintf(stderr, "gavel: %v\n", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errTransitionBlocked):
		return exitBlocked
	default:
		return exitFailure
	}
}
