package main

import (
	"fmt"
	"os"
	"strings"
)

const (
	Version = "v0.1.0"
	License = "Apache-2.0"
)

func usage() {
	fmt.Fprintf(os.Stderr, `finassist %s - personal finance assistant

Usage:
  finassist [serve] [-listen addr]        run the HTTP API (default)
  finassist chat -user <id>               chat in the terminal
  finassist mcp -user <id>                serve the finance tools over MCP stdio
  finassist provider list                 show configured LLM providers
  finassist provider models [id]          list the models a provider offers
  finassist provider set <id> <field> <value>
                                          fields: enabled, base_url, apikey
  finassist version
`, Version)
}

func main() {
	cmd, args := "serve", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe(args)
	case "chat":
		err = runChat(args)
	case "mcp":
		err = runMCP(args)
	case "provider":
		err = runProvider(args)
	case "version":
		fmt.Printf("finassist %s (%s)\n", Version, License)
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
