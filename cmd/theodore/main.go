package main

import (
	"briefly/cmd/theodore/cmd"
	"briefly/internal/logger"
)

func main() {
	logger.Init()
	cmd.Execute()
}
