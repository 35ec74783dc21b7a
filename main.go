package main

import (
	"os"

	_ "flowkeeper/cmd"
	"flowkeeper/cmd/root"
	"flowkeeper/internal/config"
	"flowkeeper/internal/logger"
)

func main() {
	logger.InitLogger(&config.Config.Log, "")

	if err := root.RootCmd.Execute(); err != nil {
		logger.Fatal(err)
	}
	os.Exit(root.ExitCode)
}
