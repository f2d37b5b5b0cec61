package main

import (
	_ "github.com/lib/pq"

	"github.com/graphmesh/graphmesh/internal/server"
	"github.com/graphmesh/graphmesh/internal/util"
	"github.com/graphmesh/graphmesh/pkg/logger"
	"github.com/graphmesh/graphmesh/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
