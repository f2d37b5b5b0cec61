package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/graphmesh/graphmesh/internal/app"
	"github.com/graphmesh/graphmesh/internal/config"
	"github.com/graphmesh/graphmesh/internal/queue"
	"github.com/graphmesh/graphmesh/internal/util"
	"github.com/graphmesh/graphmesh/pkg/logger"
	"github.com/graphmesh/graphmesh/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  debug,
		Prefix: "worker",
	})
	logger.Init(consoleLogger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", "err", err)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize application", "err", err)
	}
	defer a.Close(context.Background())

	que := queue.Init()
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open queue channel", "err", err)
	}
	if err := queue.SetupQueues(ch, []string{queue.IngestQueue}); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		logger.Fatal("Failed to set channel QoS", "err", err)
	}

	consumer := &queue.IngestConsumer{
		Engine:  a.Engine,
		Chunker: a.Chunker,
		Locks:   a.Locks,
	}

	logger.Info("Worker started", "queue", queue.IngestQueue)
	if err := consumer.Run(ctx, ch); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("Worker stopped", "err", err)
	}
	logger.Info("Worker shut down")
}
