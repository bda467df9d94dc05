package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/subcommands"

	"mira/compiler"
	"mira/vm"
)

// replCmd implements the REPL command
type replCmd struct {
	logs bool
}

func (*replCmd) Name() string     { return "repl" }
func (*replCmd) Synopsis() string { return "Start an interactive REPL session" }
func (*replCmd) Usage() string {
	return `mira repl:
  Start an interactive REPL session. Bindings survive across lines.
`
}

func (cmd *replCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&cmd.logs, "logs", false, "print the bytecode listing of every executed frame")
}

func (cmd *replCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	fmt.Println("\nWelcome to the Mira programming language!")
	fmt.Println("Type 'exit' to leave the session.")
	fmt.Println("")

	rl, err := readline.New(">>> ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 %s\n", err.Error())
		return subcommands.ExitFailure
	}
	defer rl.Close()

	// One scope for the whole session so bindings survive across lines.
	scope := vm.NewScope()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return subcommands.ExitSuccess
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "💥 %s\n", err.Error())
			return subcommands.ExitFailure
		}

		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.TrimSpace(line) == "exit" {
			return subcommands.ExitSuccess
		}

		bytecode, err := compiler.Compile(line)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}

		machine := vm.New(cmd.logs)
		if _, err := machine.Run(bytecode, scope, nil); err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
	}
}
