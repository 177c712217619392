// Command signalrouterctl is the CLI client for the signalrouter daemon.
package main

import "github.com/go-signalmap/router/cmd/signalrouterctl/commands"

func main() {
	commands.Execute()
}
