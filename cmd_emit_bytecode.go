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
)

type emitBytecodeCmd struct {
	outPath string
	dumpAST bool
}

func (*emitBytecodeCmd) Name() string { return "emit" }
func (*emitBytecodeCmd) Synopsis() string {
	return "Emit the bytecode listing for a source file"
}
func (*emitBytecodeCmd) Usage() string {
	return `mira emit <file>:
  Compile Mira code and print the human readable bytecode listing.
`
}

func (cmd *emitBytecodeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&cmd.outPath, "o", "", "also write the bytecode listing to the given file path")
	f.BoolVar(&cmd.dumpAST, "dumpAST", false, "print the AST as prettified JSON")
}

func (cmd *emitBytecodeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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
	root, err := parser.Make(tokens).Parse()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	if cmd.dumpAST {
		if err := parser.PrintASTJSON(root); err != nil {
			fmt.Fprintf(os.Stderr, "💥 Dump AST error:\n\t%s\n", err.Error())
			return subcommands.ExitFailure
		}
	}

	bytecode, err := compiler.NewGenerator(root).Generate()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	listing := bytecode.String()
	fmt.Println(listing)

	if cmd.outPath != "" {
		if err := os.WriteFile(cmd.outPath, []byte(listing), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "💥 Failed to write listing: %v\n", err)
			return subcommands.ExitFailure
		}
	}

	return subcommands.ExitSuccess
}
