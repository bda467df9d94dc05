package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

type Opcode byte

// opcodes
// iota generates a distinct byte for each opcode
const (
	OP_PUSH Opcode = iota
	OP_GETGLOBAL
	OP_SETGLOBAL

	OP_LOADFUNC
	OP_CALL
	OP_RETURN
	OP_DELAY

	OP_OUTPUT

	OP_ADD
	OP_SUB
	OP_MUL
	OP_DIV

	OP_EQ
	OP_NOTEQ
	OP_BIGGER
	OP_SMALLER
	OP_BIGGER_OR_EQ
	OP_SMALLER_OR_EQ

	OP_AND
	OP_OR

	OP_IF

	OP_INDEXATION
	OP_SETINDEX
)

var opcodeNames = map[Opcode]string{
	OP_PUSH:          "PUSH",
	OP_GETGLOBAL:     "GETGLOBAL",
	OP_SETGLOBAL:     "SETGLOBAL",
	OP_LOADFUNC:      "LOADFUNC",
	OP_CALL:          "CALL",
	OP_RETURN:        "RETURN",
	OP_DELAY:         "DELAY",
	OP_OUTPUT:        "OUTPUT",
	OP_ADD:           "ADD",
	OP_SUB:           "SUB",
	OP_MUL:           "MUL",
	OP_DIV:           "DIV",
	OP_EQ:            "EQ",
	OP_NOTEQ:         "NOTEQ",
	OP_BIGGER:        "BIGGER",
	OP_SMALLER:       "SMALLER",
	OP_BIGGER_OR_EQ:  "BIGGER_OR_EQ",
	OP_SMALLER_OR_EQ: "SMALLER_OR_EQ",
	OP_AND:           "AND",
	OP_OR:            "OR",
	OP_IF:            "IF",
	OP_INDEXATION:    "INDEXATION",
	OP_SETINDEX:      "SETINDEX",
}

// String returns the human-readable name of the opcode, used in the
// bytecode listing and in runtime error messages.
func (code Opcode) String() string {
	name, ok := opcodeNames[code]
	if !ok {
		return "unknown"
	}
	return name
}

// Operand is a typed immediate carried by an instruction. The same types
// double as the VM's run-time values: PUSH places its operand on the
// evaluation stack unchanged.
type Operand interface {
	// String returns the printable form of the operand, the one OUTPUT
	// emits.
	String() string

	// Eq reports structural equality with another operand. Equality
	// holds only between same-tag operands, except that two nulls are
	// always equal.
	Eq(other Operand) bool
}

// NullOperand is the null value.
type NullOperand struct{}

func (operand NullOperand) String() string {
	return "NULL"
}

func (operand NullOperand) Eq(other Operand) bool {
	_, ok := other.(NullOperand)
	return ok
}

// BoolOperand is a boolean value.
type BoolOperand struct {
	Value bool
}

func (operand BoolOperand) String() string {
	if operand.Value {
		return "true"
	}
	return "false"
}

func (operand BoolOperand) Eq(other Operand) bool {
	casted, ok := other.(BoolOperand)
	return ok && operand.Value == casted.Value
}

// NumberOperand is a double-precision number value.
type NumberOperand struct {
	Value float64
}

func (operand NumberOperand) String() string {
	return strconv.FormatFloat(operand.Value, 'g', -1, 64)
}

func (operand NumberOperand) Eq(other Operand) bool {
	casted, ok := other.(NumberOperand)
	return ok && operand.Value == casted.Value
}

// StringOperand is a string value. It also carries the names GETGLOBAL,
// SETGLOBAL and CALL operate on.
type StringOperand struct {
	Value string
}

func (operand StringOperand) String() string {
	return operand.Value
}

func (operand StringOperand) Eq(other Operand) bool {
	casted, ok := other.(StringOperand)
	return ok && operand.Value == casted.Value
}

// ArrayOperand is an ordered sequence of operand values. Arrays are
// shared by reference: every instruction and stack slot holding the same
// array sees mutations through SETINDEX.
type ArrayOperand struct {
	Elements []Operand
}

func (operand *ArrayOperand) String() string {
	elements := make([]string, 0, len(operand.Elements))
	for _, element := range operand.Elements {
		elements = append(elements, element.String())
	}
	return "[ " + strings.Join(elements, ", ") + " ]"
}

func (operand *ArrayOperand) Eq(other Operand) bool {
	casted, ok := other.(*ArrayOperand)
	if !ok || len(operand.Elements) != len(casted.Elements) {
		return false
	}
	for i, element := range operand.Elements {
		if !element.Eq(casted.Elements[i]) {
			return false
		}
	}
	return true
}

// FuncDeclaration carries a function body as an embedded instruction
// vector together with the declared argument names and the identifier
// the function binds to.
type FuncDeclaration struct {
	Bytecode Instructions
	Args     []string
	ID       string
}

// FunctionOperand is the immediate of LOADFUNC.
type FunctionOperand struct {
	Decl FuncDeclaration
}

func (operand FunctionOperand) String() string {
	return operand.Decl.ID
}

func (operand FunctionOperand) Eq(other Operand) bool {
	return false
}

// IfOperand is the immediate of IF: the then-body and the optional
// else-body, each carried as an embedded instruction vector. Else is nil
// when the branch is absent.
type IfOperand struct {
	Then Instructions
	Else Instructions
}

func (operand IfOperand) String() string {
	return "IF_STMNT"
}

func (operand IfOperand) Eq(other Operand) bool {
	return false
}

// Instruction pairs an opcode with its optional typed immediate. Operand
// is nil for opcodes that take none.
type Instruction struct {
	Code    Opcode
	Operand Operand
}

// Instructions is an ordered instruction vector. There is no jump/offset
// model: nested function and conditional bodies are carried by value
// inside their parent instruction, so a program is a tree of sequences
// rather than a flat array with branch targets.
type Instructions []Instruction

// String renders the human-readable bytecode listing, the form the
// `-logs` flag prints on every frame entry.
func (instructions Instructions) String() string {
	var builder strings.Builder
	builder.WriteString("[ BYTECODE ]")
	for _, instruction := range instructions {
		operandStr := ""
		if instruction.Operand != nil {
			operandStr = instruction.Operand.String()
		}
		builder.WriteString(fmt.Sprintf("\n  > %d | %s %s", instruction.Code, instruction.Code, operandStr))
	}
	return builder.String()
}
