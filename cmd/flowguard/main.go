package main

import (
	"os"

	_ "FlowGuard/internal/classifier/remote"
	_ "FlowGuard/internal/classifier/rules"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

var allCommands []cli.Command

var configFlag = cli.StringFlag{
	Name:  "config, c",
	Usage: "load configuration from `FILE` (built-in defaults when empty)",
	Value: "",
}

func main() {
	app := cli.NewApp()
	app.Name = "flowguard"
	app.Usage = "Classify live network traffic flow by flow."
	app.Version = version
	app.Commands = allCommands

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("flowguard exited with an error")
	}
}
