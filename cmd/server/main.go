package main

import (
	"github.com/nexuslab/nexus/internal/server"
	"github.com/nexuslab/nexus/internal/util"
	"github.com/nexuslab/nexus/pkg/logger"
	"github.com/nexuslab/nexus/pkg/logger/console"

	_ "github.com/lib/pq"
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
