package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[swapctl] %v\n", err)
	os.Exit(1)
}

func main() {
	app := cli.NewApp()
	app.Name = "swapctl"
	app.Usage = "control plane for a running swapd instance"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "rpcserver",
			Value: "localhost:9793",
			Usage: "host:port of swapd's REST API",
		},
	}
	app.Commands = []cli.Command{
		submarineCommand,
		reverseCommand,
		chainSwapCommand,
		statusCommand,
		refundCommand,
		claimCommand,
		claimSubmarineCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}
