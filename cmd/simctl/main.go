package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"simrelease/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.NewRootCommand(nil).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "simctl:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
