package main

import "github.com/agentdeck/agentdeck/cmd/agentdeck/commands"

func main() {
	commands.Execute()
}
