// Command mailauth checks whether a mail server accepts a username and
// password, then exits with a status describing the outcome.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/infodancer/mailauth/internal/config"
)

func main() {
	flags := config.ParseFlags()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, flags, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
