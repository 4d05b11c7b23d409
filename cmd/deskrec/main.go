package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			// Interrupted recordings are finalized by the session before
			// Execute returns; exit with the conventional SIGINT status.
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "deskrec: %v\n", err)
		os.Exit(1)
	}
}
