package main

import (
	"github.com/dkeye/Huddle/internal/cli"
	"github.com/dkeye/Huddle/internal/platform/logger"
)

func main() {
	logger.Setup("info", "console")
	cli.Execute()
}
