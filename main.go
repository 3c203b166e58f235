package main

import (
	"fmt"
	"os"

	"go.olrik.dev/devhub/cmd"
)

func main() {
	// If no command specified, default to listing devices
	if len(os.Args) == 1 {
		os.Args = []string{os.Args[0], "devices"}
	}

	root := cmd.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
