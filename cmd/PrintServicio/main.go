// Package main is the entry point of the Print Servicio: a local service that
// prints PDF and ZPL documents on installed printers.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/judwhite/go-svc"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/adcondev/print-servicio/internal/daemon"
)

func main() {
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Error ignored: Go runtime defaults apply if GOMAXPROCS is invalid.
	_, _ = maxprocs.Set(maxprocs.Logger(func(string, ...interface{}) {}))

	prg := &daemon.Program{ConfigPath: flags.config}

	if flags.console || isInteractive() {
		prg.Console = true
		runConsole(prg)
		return
	}

	// Run as OS service
	if err := svc.Run(prg, syscall.SIGINT, syscall.SIGTERM); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runConsole runs the program in console mode
func runConsole(prg *daemon.Program) {
	if err := prg.Init(nil); err != nil {
		fmt.Fprintf(os.Stderr, "Init failed: %v\n", err)
		os.Exit(1)
	}

	if err := prg.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Start failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("═══════════════════════════════════════════════════════")
	fmt.Println("  🖨️ PRINT SERVICIO - Console mode")
	fmt.Println("  Press Ctrl+C to stop...")
	fmt.Println("═══════════════════════════════════════════════════════")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\n🛑 Shutting down...")
	_ = prg.Stop()
}

// isInteractive checks if running from a terminal (not as service)
func isInteractive() bool {
	fileInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
