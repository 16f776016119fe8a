package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/shiplens/internal/config"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// printBanner displays a friendly banner when run without args.
func printBanner() {
	fmt.Println(`
       _     _       _
   ___| |__ (_)_ __ | | ___ _ __  ___
  / __| '_ \| | '_ \| |/ _ \ '_ \/ __|
  \__ \ | | | | |_) | |  __/ | | \__ \
  |___/_| |_|_| .__/|_|\___|_| |_|___/
              |_|

  Shipment token observer and summarizer

  Usage: shiplens serve          start the daemon
         shiplens <command>      talk to a running daemon
         shiplens --help`)
}

func main() {
	if len(os.Args) < 2 {
		printBanner()
		return
	}

	// Handle --help/--version before config load
	if isHelpOrVersion() {
		app := newCLIApp(config.DefaultConfig(), "")
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		os.Exit(1)
	}

	baseDir := filepath.Join(homeDir, ".shiplens")

	cfg, err := config.Load(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	app := newCLIApp(cfg, baseDir)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
