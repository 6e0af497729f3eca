package main

import "github.com/menta2k/camera-capture/cmd/camera-capture/commands"

func main() {
	commands.Execute()
}
