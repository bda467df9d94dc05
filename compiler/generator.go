package compiler

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"mira/ast"
	"mira/token"
)

// Generator walks the AST in source order and lowers it to an append-only
// instruction vector. Expression lowering pushes the expression's value
// onto the VM stack; statement lowering may leave the stack empty.
//
// Nested scopes (function bodies, conditional branches) are lowered by
// sub-generators into their own instruction vectors, carried as operands
// of LOADFUNC and IF.
type Generator struct {
	root     *ast.Block
	bytecode Instructions

	// arrayLinks memoizes the operand built for an array literal so the
	// same AST node lowered twice yields the same operand instance. The
	// map is shared with every sub-generator of one compilation.
	arrayLinks map[*ast.Array]*ArrayOperand
}

// NewGenerator creates a generator for the given parse root.
func NewGenerator(root *ast.Block) *Generator {
	return &Generator{
		root:       root,
		bytecode:   Instructions{},
		arrayLinks: map[*ast.Array]*ArrayOperand{},
	}
}

// subGenerator creates a generator for a nested body that shares this
// compilation's array links.
func (generator *Generator) subGenerator(root *ast.Block) *Generator {
	return &Generator{
		root:       root,
		bytecode:   Instructions{},
		arrayLinks: generator.arrayLinks,
	}
}

// Generate lowers the root block and returns the instruction vector.
// Lowering failures surface as a CompileError.
func (generator *Generator) Generate() (bytecode Instructions, err error) {
	// The visitor methods report failures by panicking with a
	// CompileError, recovered here at the package boundary.
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case CompileError:
				err = v
			default:
				panic(r)
			}
		}
	}()

	generator.root.Accept(generator)
	return generator.bytecode, nil
}

// generate runs a sub-generator and propagates its failure as a panic so
// the enclosing Generate can recover it.
func (generator *Generator) generate() Instructions {
	bytecode, err := generator.Generate()
	if err != nil {
		panic(err.(CompileError))
	}
	return bytecode
}

// emit appends an instruction to the generator's instruction vector.
func (generator *Generator) emit(code Opcode, operands ...Operand) {
	instruction := Instruction{Code: code}
	if len(operands) > 0 {
		instruction.Operand = operands[0]
	}
	generator.bytecode = append(generator.bytecode, instruction)
}

// operandFromNode eagerly lowers a node into an operand value, not via
// the stack. Identifiers lower to their name, literals to their value and
// array literals to a shared array immediate.
func (generator *Generator) operandFromNode(node ast.Node) Operand {
	switch casted := node.(type) {
	case *ast.Identifier:
		return StringOperand{Value: casted.Token.Value}

	case *ast.Literal:
		tok := casted.Token
		switch tok.Kind {
		case token.NUMBER:
			value, err := strconv.ParseFloat(tok.Value, 64)
			if err != nil {
				panic(CompileError{Message: fmt.Sprintf("invalid number literal '%s'", tok.Value)})
			}
			return NumberOperand{Value: value}
		case token.STRING:
			return StringOperand{Value: tok.Value}
		case token.TRUE:
			return BoolOperand{Value: true}
		case token.FALSE:
			return BoolOperand{Value: false}
		case token.NULL:
			return NullOperand{}
		}

	case *ast.Array:
		if linked, ok := generator.arrayLinks[casted]; ok {
			return linked
		}
		operand := &ArrayOperand{Elements: make([]Operand, 0, len(casted.Elements))}
		generator.arrayLinks[casted] = operand
		for _, element := range casted.Elements {
			operand.Elements = append(operand.Elements, generator.operandFromNode(element))
		}
		return operand
	}

	panic(CompileError{Message: "unsupported operand in array or literal position"})
}

func (generator *Generator) VisitBlock(block *ast.Block) any {
	for _, node := range block.Nodes {
		node.Accept(generator)
	}
	return nil
}

func (generator *Generator) VisitLiteral(literal *ast.Literal) any {
	generator.emit(OP_PUSH, generator.operandFromNode(literal))
	return nil
}

func (generator *Generator) VisitIdentifier(identifier *ast.Identifier) any {
	generator.emit(OP_GETGLOBAL, generator.operandFromNode(identifier))
	return nil
}

func (generator *Generator) VisitBinaryOperation(binary *ast.BinaryOperation) any {
	// Left is lowered first so for `x - y` the VM pops y as the right
	// operand.
	binary.Left.Accept(generator)
	binary.Right.Accept(generator)

	switch binary.Operator.Kind {
	case token.PLUS:
		generator.emit(OP_ADD)
	case token.MINUS:
		generator.emit(OP_SUB)
	case token.MUL:
		generator.emit(OP_MUL)
	case token.DIV:
		generator.emit(OP_DIV)
	}
	return nil
}

func (generator *Generator) VisitCondition(condition *ast.Condition) any {
	condition.Left.Accept(generator)
	condition.Right.Accept(generator)

	switch condition.Operator.Kind {
	case token.EQ:
		generator.emit(OP_EQ)
	case token.NOTEQ:
		generator.emit(OP_NOTEQ)
	case token.BIGGER:
		generator.emit(OP_BIGGER)
	case token.SMALLER:
		generator.emit(OP_SMALLER)
	case token.BIGGER_OR_EQ:
		generator.emit(OP_BIGGER_OR_EQ)
	case token.SMALLER_OR_EQ:
		generator.emit(OP_SMALLER_OR_EQ)
	case token.AND:
		generator.emit(OP_AND)
	case token.OR:
		generator.emit(OP_OR)
	}
	return nil
}

func (generator *Generator) VisitUnaryOperation(unary *ast.UnaryOperation) any {
	if unary.Operator.Kind == token.USING {
		generator.splice(unary.Operand)
		return nil
	}

	unary.Operand.Accept(generator)

	switch unary.Operator.Kind {
	case token.RETURN:
		generator.emit(OP_RETURN)
	case token.DELAY:
		generator.emit(OP_DELAY)
	case token.OUTPUT:
		generator.emit(OP_OUTPUT)
	}
	return nil
}

// splice implements `using "path"`: the file at path is read and compiled
// by a fresh compiler, and the imported instructions are PREPENDED to the
// current output in their original order. Imports therefore execute
// before the current unit's statements regardless of where `using`
// appears textually.
func (generator *Generator) splice(operand ast.Node) {
	literal, ok := operand.(*ast.Literal)
	if !ok || literal.Token.Kind != token.STRING {
		panic(CompileError{Message: "cannot import module, the operand of `using` must be a string literal"})
	}

	path := literal.Token.Value
	data, err := os.ReadFile(path)
	if err != nil {
		panic(CompileError{Message: errors.Wrapf(err, "cannot import module %q", path).Error()})
	}

	imported, err := Compile(string(data))
	if err != nil {
		panic(CompileError{Message: errors.Wrapf(err, "cannot import module %q", path).Error()})
	}

	generator.bytecode = append(imported, generator.bytecode...)
}

func (generator *Generator) VisitParenthesized(parenthesized *ast.Parenthesized) any {
	parenthesized.Wrapped.Accept(generator)
	return nil
}

func (generator *Generator) VisitAssignment(assignment *ast.Assignment) any {
	switch target := assignment.Target.(type) {
	case *ast.Identifier:
		assignment.Value.Accept(generator)
		generator.emit(OP_SETGLOBAL, StringOperand{Value: target.Token.Value})

	case *ast.Indexation:
		target.Where.Accept(generator)
		assignment.Value.Accept(generator)
		target.Index.Accept(generator)
		generator.emit(OP_SETINDEX)

	default:
		panic(CompileError{Message: "assignment target must be an identifier or an indexation"})
	}
	return nil
}

func (generator *Generator) VisitIndexation(indexation *ast.Indexation) any {
	indexation.Where.Accept(generator)
	indexation.Index.Accept(generator)
	generator.emit(OP_INDEXATION)
	return nil
}

func (generator *Generator) VisitArgs(args *ast.Args) any {
	for _, node := range args.Nodes {
		node.Accept(generator)
	}
	return nil
}

func (generator *Generator) VisitFnDefine(fnDefine *ast.FnDefine) any {
	argsIds := make([]string, 0, len(fnDefine.Args.Nodes))
	for _, arg := range fnDefine.Args.Nodes {
		identifier, ok := arg.(*ast.Identifier)
		if !ok {
			panic(CompileError{Message: "argument in function define statement must be an identifier"})
		}
		argsIds = append(argsIds, identifier.Token.Value)
	}

	body := generator.subGenerator(fnDefine.Block).generate()

	generator.emit(OP_LOADFUNC, FunctionOperand{
		Decl: FuncDeclaration{
			Bytecode: body,
			Args:     argsIds,
			ID:       fnDefine.ID.Token.Value,
		},
	})
	return nil
}

func (generator *Generator) VisitCall(call *ast.Call) any {
	// Args are lowered in reverse so the first argument ends up on top
	// of the stack and is popped first by CALL.
	for i := len(call.Args.Nodes) - 1; i >= 0; i-- {
		call.Args.Nodes[i].Accept(generator)
	}

	var fnId string
	switch calling := call.Calling.(type) {
	case *ast.Identifier:
		fnId = calling.Token.Value
	case *ast.FnDefine:
		fnId = calling.ID.Token.Value
	default:
		panic(CompileError{Message: "unknown object to call"})
	}

	generator.emit(OP_CALL, StringOperand{Value: fnId})
	return nil
}

func (generator *Generator) VisitArray(array *ast.Array) any {
	generator.emit(OP_PUSH, generator.operandFromNode(array))
	return nil
}

func (generator *Generator) VisitIfStatement(ifStatement *ast.IfStatement) any {
	ifStatement.Condition.Accept(generator)

	operand := IfOperand{Then: generator.subGenerator(ifStatement.Block).generate()}
	if ifStatement.ElseBlock != nil {
		operand.Else = generator.subGenerator(ifStatement.ElseBlock).generate()
	}

	generator.emit(OP_IF, operand)
	return nil
}
