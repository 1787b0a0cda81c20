package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"
)

type cliFlags struct {
	console bool
	config  string
}

// parseFlags parses command-line arguments (without the program name).
func parseFlags(args []string) (*cliFlags, error) {
	fs := flag.NewFlagSet("PrintServicio", flag.ContinueOnError)
	f := &cliFlags{}

	fs.BoolVarP(&f.console, "console", "c", false, "run in console mode (not as service)")
	fs.StringVar(&f.config, "config", "", "YAML file overriding environment settings")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: PrintServicio [--console] [--config FILE]")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return f, nil
}
