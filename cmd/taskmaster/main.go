// Command taskmaster monitors the busiest processes on the host.
package main

import (
	"context"
	"os"

	"github.com/agbru/taskmaster/internal/app"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	// --version wins over any other flag, valid or not.
	if app.HasVersionFlag(args[1:]) {
		app.PrintVersion(os.Stdout)
		return 0
	}
	a, err := app.New(args, os.Stderr)
	if err != nil {
		return app.ExitCodeFor(err)
	}
	return a.Run(context.Background(), os.Stdout)
}
