package main

import "github.com/Zegnet/qandalf-agentic/cmd"

func main() {
	cmd.Execute()
}
