// Package main implements the loom CLI: developer tooling for binding
// manifests and for talking to a running engine's inspector.
package main

import (
	"fmt"
	"os"
)

// Command is one CLI subcommand.
type Command struct {
	Name  string
	Short string
	Usage string
	Run   func(args []string) error
}

var commands = []*Command{
	checkCmd,
	inspectCmd,
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" || args[0] == "-h" {
		printHelp()
		return
	}

	for _, cmd := range commands {
		if cmd.Name != args[0] {
			continue
		}
		if err := cmd.Run(args[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "loom %s: %v\n", cmd.Name, err)
			os.Exit(1)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "loom: unknown command %q\n\n", args[0])
	printHelp()
	os.Exit(1)
}

func printHelp() {
	fmt.Println("loom - tooling for the loom native-UI engine")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  loom <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	for _, cmd := range commands {
		fmt.Printf("  %-10s %s\n", cmd.Name, cmd.Short)
	}
}
