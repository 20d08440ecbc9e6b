package main

import "github.com/bryanchriswhite/captain/cmd/captain/commands"

func main() {
	commands.Execute()
}
