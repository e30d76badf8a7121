// Command notary is the Network Notary's entrypoint: a thin shell around
// the urfave/cli/v2 command tree, mirroring the teacher's own root
// main.go (construct the app, run it, exit with its status).
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/urfave/cli/v2"

	"github.com/nwnotary/notary-server/cli/scan"
	"github.com/nwnotary/notary-server/cli/server"
	"github.com/nwnotary/notary-server/cli/sign"
	"github.com/nwnotary/notary-server/pkg/config"
)

func versionPrinter(c *cli.Context) {
	_, _ = fmt.Fprintf(c.App.Writer, "notary\nVersion: %s\nGoVersion: %s\n",
		config.Version, runtime.Version())
}

func newApp() *cli.App {
	cli.VersionPrinter = versionPrinter
	app := cli.NewApp()
	app.Name = "notary"
	app.Version = config.Version
	app.Usage = "Network Notary: observes and attests to TLS/SSH key history"
	app.ErrWriter = os.Stdout
	app.Commands = append(app.Commands, server.NewCommand(), scan.NewCommand(), sign.NewCommand())
	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
