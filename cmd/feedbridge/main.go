package main

import (
	"context"
	"fmt"
	"os"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
