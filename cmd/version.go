package cmd

// Version is set at build time:
//
//	go build -ldflags "-X github.com/Zegnet/qandalf-agentic/cmd.Version=1.2.0"
var Version = "1.0"
