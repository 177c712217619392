package commands

import (
	"fmt"

	"github.com/reeflective/console"
	"github.com/spf13/cobra"
)

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive signalrouterctl shell",
		Long:  "Launches a console REPL exposing every signalrouterctl subcommand, for live graph inspection during development and operations.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runShell()
		},
	}
}

// runShell wires the same subcommand tree rootCmd exposes one-shot into a
// persistent console menu, so "connection list" etc. work identically
// inside the shell and on the regular command line.
func runShell() error {
	app := console.New("signalrouterctl")

	menu := app.ActiveMenu()
	menu.Short = "signalrouterctl interactive shell"
	menu.SetCommands(shellCommandTree)

	if err := app.Start(); err != nil {
		return fmt.Errorf("start shell: %w", err)
	}
	return nil
}

// shellCommandTree builds a fresh root command per REPL read so per-run
// flag state (e.g. connection add's repeatable --source) never leaks
// between lines.
func shellCommandTree() *cobra.Command {
	cmd := &cobra.Command{Use: "signalrouterctl"}
	cmd.AddCommand(connectionCmd())
	cmd.AddCommand(linkCmd())
	cmd.AddCommand(queryCmd())
	cmd.AddCommand(monitorCmd())
	cmd.AddCommand(versionCmd())
	return cmd
}
