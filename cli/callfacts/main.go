package main

import (
	"os"

	callfactscmder "github.com/im-sanjay-sai/gemini-falir-agent/cmd/callfacts"
)

func main() {
	cmd := callfactscmder.NewCallfactsCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
