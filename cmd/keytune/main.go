// Keytune configures hall-effect keyboards over their vendor HID interface.
//
// It pairs with one keyboard, keeps a supervised connection to it, exports
// and imports the full key configuration as a JSON snapshot, and can expose
// the keyboard to a remote UI through a small HTTP/WebSocket bridge.
//
// Usage:
//
//	keytune [command] [flags]
//
// Pass --simulate to any command to run it against an in-memory keyboard.
// See 'keytune --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/muurk/keytune/internal/errs"
	"github.com/muurk/keytune/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", errs.ShortMessage(err))
		os.Exit(1)
	}
}
