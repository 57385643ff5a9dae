package main

import "github.com/machinepulse/machinepulse/cmd/machinepulse/commands"

func main() {
	commands.Execute()
}
