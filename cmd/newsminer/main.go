package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/daijiong1977/news-sub002/cmd/cmd"
	"github.com/daijiong1977/news-sub002/internal/logger"
)

func main() {
	logger.Init()

	// SIGINT/SIGTERM cancel the run; committed work survives and the next
	// run resumes from the database and checkpoint.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd.ExecuteContext(ctx)
}
