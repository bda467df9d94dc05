package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"mira/compiler"
	"mira/lexer"
	"mira/parser"
	"mira/vm"
)

// runCmd implements the run command
type runCmd struct {
	logs bool
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "Execute Mira code from a source file" }
func (*runCmd) Usage() string {
	return `mira run <file>:
  Compile and execute Mira code.
`
}

func (cmd *runCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&cmd.logs, "logs", false, "print the token stream and the bytecode listing of every executed frame")
}

func (cmd *runCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "💥 File not provided\n")
		return subcommands.ExitUsageError
	}
	filename := args[0]

	data, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 Failed to read file: %v\n", err)
		return subcommands.ExitFailure
	}

	tokens := lexer.New(string(data)).Scan()
	if cmd.logs {
		fmt.Print(lexer.Dump(tokens))
	}

	root, err := parser.Make(tokens).Parse()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	bytecode, err := compiler.NewGenerator(root).Generate()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	machine := vm.New(cmd.logs)
	if _, err := machine.Run(bytecode, vm.NewScope(), nil); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	return subcommands.ExitSuccess
}
