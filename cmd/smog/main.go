// Command smog is the CLI entry point: zero arguments starts an
// interactive REPL, one argument runs that file as a script, and any
// other argument count prints usage and exits non-zero.
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/kristofer/smog/pkg/compiler"
	"github.com/kristofer/smog/pkg/vm"
)

const (
	exitOK           = 0
	exitCompileError = 65
	exitRuntimeError = 70
	exitIOError      = 74
)

func main() {
	switch len(os.Args) {
	case 1:
		repl()
	case 2:
		os.Exit(runFile(os.Args[1]))
	default:
		fmt.Fprintln(os.Stderr, "Usage: smog [path]")
		os.Exit(64)
	}
}

// runFile reads, compiles, and executes one script, returning the process
// exit code §6 assigns to whichever stage failed (or 0 if none did).
func runFile(path string) int {
	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		return exitIOError
	}

	machine := vm.New()
	fn, ok := compiler.Compile(machine, string(source))
	if !ok {
		return exitCompileError
	}
	if err := machine.Run(fn); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitRuntimeError
	}
	return exitOK
}

// repl runs a persistent VM across lines of input, one line at a time,
// matching clox's REPL: each line is its own top-level program but
// globals survive because the VM instance does. The prompt and banner
// are suppressed when stdin isn't a terminal, so a piped script behaves
// like an unattended run rather than printing prompts into a pipe.
func repl() {
	machine := vm.New()
	interactive := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())

	if interactive {
		fmt.Println("smog")
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		if interactive {
			fmt.Print("> ")
		}
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		fn, ok := compiler.Compile(machine, line)
		if !ok {
			continue
		}
		if err := machine.Run(fn); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}
