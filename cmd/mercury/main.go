package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/waabox/mercury/internal/cli"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, cli.NewApp(version), os.Args[1:])
	stop()
	os.Exit(code)
}
