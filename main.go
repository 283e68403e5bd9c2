package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/markis/convstream/internal/args"
)

// main parses the command line and runs the selected command until it
// finishes or the user interrupts it.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:], args.PipedStdin(), os.Stdout)
	stop()

	if err != nil && !errors.Is(err, args.ErrHelp) {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
