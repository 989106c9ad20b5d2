// Command cabintwin runs the digital twin of a truck cabin sun visor. See
// 'cabintwin help' for the subcommands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-digitaltwin/cabintwin/internal/cmd"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx, version, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "cabintwin:", err)
		stop()
		os.Exit(1)
	}
}
