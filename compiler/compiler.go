// This package contains the instruction model, the bytecode generator and
// the compiler façade for Mira. The façade orchestrates the pipeline
// lexer -> parser -> generator for a source string, and is invoked
// re-entrantly by the generator when a `using` statement splices imported
// bytecode.

package compiler

import (
	"mira/lexer"
	"mira/parser"
)

// Compile lexes, parses and lowers a source string to an instruction
// vector.
//
// There is no module cache: the same file imported twice is compiled
// twice and spliced twice.
func Compile(source string) (Instructions, error) {
	tokens := lexer.New(source).Scan()

	root, err := parser.Make(tokens).Parse()
	if err != nil {
		return nil, err
	}

	return NewGenerator(root).Generate()
}
