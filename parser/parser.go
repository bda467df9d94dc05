// Recursive descent parser
// https://en.wikipedia.org/wiki/Recursive_descent_parser
//
// A recursive descent parser is a top-down parser because it starts from the
// top grammar rule and works its way down into the nested sub-expressions
// before reaching the leaves of the syntax tree (terminal rules).
//
// Expressions fold to the right: after a primary, a single binary or
// condition operator takes the REST of the expression as its right operand.
// There is no operator precedence, grouping must be explicit with
// parentheses: `2 + 3 * 4` reads as `2 + (3 * 4)`.

package parser

import (
	"fmt"
	"strings"

	"mira/ast"
	"mira/token"
)

var binaryOperatorKinds = []token.Kind{
	token.PLUS,
	token.MINUS,
	token.MUL,
	token.DIV,
}

var conditionOperatorKinds = []token.Kind{
	token.EQ,
	token.NOTEQ,
	token.BIGGER,
	token.SMALLER,
	token.BIGGER_OR_EQ,
	token.SMALLER_OR_EQ,
	token.AND,
	token.OR,
}

var literalKinds = []token.Kind{
	token.NUMBER,
	token.STRING,
	token.TRUE,
	token.FALSE,
	token.NULL,
}

var unaryOperatorKinds = []token.Kind{
	token.RETURN,
	token.DELAY,
	token.OUTPUT,
	token.USING,
}

type Parser struct {
	tokens   []token.Token
	position int
}

// Make initializes and returns a new Parser over the tokens created by
// the lexer. The token slice must end with an EOF token.
func Make(tokens []token.Token) *Parser {
	return &Parser{
		tokens:   tokens,
		position: 0,
	}
}

// Peeks the token at the parser's current position, without advancing.
func (parser *Parser) peek() token.Token {
	return parser.tokens[parser.position]
}

// Retrieves the token at the parser's previous position (position - 1).
func (parser *Parser) previous() token.Token {
	return parser.tokens[parser.position-1]
}

// Increments the parser's position by one unit and consumes the
// current token.
func (parser *Parser) advance() token.Token {
	if !parser.isFinished() {
		parser.position++
	}
	return parser.previous()
}

// Determines if the parser has consumed all the tokens.
func (parser *Parser) isFinished() bool {
	return parser.peek().Kind == token.EOF
}

// Determines if the provided kind matches the kind of the token at the
// parser's current position.
func (parser *Parser) checkKind(kind token.Kind) bool {
	if parser.isFinished() {
		return false
	}
	return parser.peek().Kind == kind
}

// match determines if the kind of the token at the current position
// matches any of the provided kinds. If a match is found the parser
// advances past the token.
func (parser *Parser) match(kinds ...token.Kind) bool {
	for _, kind := range kinds {
		if parser.checkKind(kind) {
			parser.advance()
			return true
		}
	}
	return false
}

// consume advances past the current token if its kind matches any of the
// provided kinds. A mismatch produces a SyntaxError naming the expected
// kinds and the observed token.
func (parser *Parser) consume(kinds ...token.Kind) (token.Token, error) {
	for _, kind := range kinds {
		if parser.checkKind(kind) {
			return parser.advance(), nil
		}
	}

	expected := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		expected = append(expected, string(kind))
	}
	observed := parser.peek()
	msg := fmt.Sprintf("expected %s but observed %s", strings.Join(expected, " or "), observed)
	return token.Token{}, CreateSyntaxError(observed.Start, msg)
}

// Parse parses the entire token stream into a Block node containing the
// top-level statements.
//
// Returns:
//   - *ast.Block: the parse root.
//   - error: the first SyntaxError encountered, parsing stops there.
func (parser *Parser) Parse() (*ast.Block, error) {
	block := &ast.Block{Nodes: []ast.Node{}}

	for {
		for parser.match(token.SEMICOLON) {
		}
		if parser.isFinished() {
			break
		}
		statement, err := parser.statement()
		if err != nil {
			return nil, err
		}
		block.Nodes = append(block.Nodes, statement)
	}

	return block, nil
}

// statement parses a single statement: an if statement or an expression.
func (parser *Parser) statement() (ast.Node, error) {
	if parser.match(token.IF) {
		return parser.ifStatement()
	}
	return parser.expression()
}

// expression parses a primary expression, folds any trailing indexation
// or call postfixes onto it, and then folds one trailing binary,
// condition or assignment operator with the rest of the expression as
// the right-hand side.
func (parser *Parser) expression() (ast.Node, error) {
	node, err := parser.primary()
	if err != nil {
		return nil, err
	}

	for {
		if parser.match(token.LSQUARE) {
			index, err := parser.expression()
			if err != nil {
				return nil, err
			}
			if _, err := parser.consume(token.RSQUARE); err != nil {
				return nil, err
			}
			node = &ast.Indexation{Where: node, Index: index}
			continue
		}
		if parser.match(token.LBRACKET) {
			args, err := parser.args(token.RBRACKET)
			if err != nil {
				return nil, err
			}
			node = &ast.Call{Calling: node, Args: args}
			continue
		}
		break
	}

	if parser.match(binaryOperatorKinds...) {
		operator := parser.previous()
		right, err := parser.expression()
		if err != nil {
			return nil, err
		}
		return &ast.BinaryOperation{Left: node, Right: right, Operator: operator}, nil
	}

	if parser.match(conditionOperatorKinds...) {
		operator := parser.previous()
		right, err := parser.expression()
		if err != nil {
			return nil, err
		}
		return &ast.Condition{Left: node, Right: right, Operator: operator}, nil
	}

	if parser.match(token.ASSIGN) {
		assignToken := parser.previous()
		value, err := parser.expression()
		if err != nil {
			return nil, err
		}
		switch node.(type) {
		case *ast.Identifier, *ast.Indexation:
			return &ast.Assignment{Target: node, Value: value}, nil
		default:
			return nil, CreateSyntaxError(assignToken.Start, "invalid assignment target")
		}
	}

	return node, nil
}

// primary parses the most basic forms of expressions: literals,
// identifiers, parenthesized expressions, array literals, function
// definitions and the unary prefix statements.
func (parser *Parser) primary() (ast.Node, error) {
	if parser.match(literalKinds...) {
		return &ast.Literal{Token: parser.previous()}, nil
	}

	if parser.match(token.ID) {
		return &ast.Identifier{Token: parser.previous()}, nil
	}

	if parser.match(token.LBRACKET) {
		wrapped, err := parser.expression()
		if err != nil {
			return nil, err
		}
		if _, err := parser.consume(token.RBRACKET); err != nil {
			return nil, err
		}
		return &ast.Parenthesized{Wrapped: wrapped}, nil
	}

	if parser.match(token.LSQUARE) {
		args, err := parser.args(token.RSQUARE)
		if err != nil {
			return nil, err
		}
		return &ast.Array{Elements: args.Nodes}, nil
	}

	if parser.match(token.DEF) {
		return parser.fnDefine()
	}

	if parser.match(unaryOperatorKinds...) {
		operator := parser.previous()
		operand, err := parser.expression()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryOperation{Operand: operand, Operator: operator}, nil
	}

	observed := parser.peek()
	return nil, CreateSyntaxError(observed.Start, fmt.Sprintf("unrecognised expression at %s", observed))
}

// args parses a comma-separated sequence of expressions terminated by the
// provided closing kind. The opening bracket has already been consumed.
func (parser *Parser) args(closing token.Kind) (*ast.Args, error) {
	args := &ast.Args{Nodes: []ast.Node{}}

	if parser.match(closing) {
		return args, nil
	}

	for {
		expression, err := parser.expression()
		if err != nil {
			return nil, err
		}
		args.Nodes = append(args.Nodes, expression)

		if parser.match(token.COMMA) {
			continue
		}
		if _, err := parser.consume(closing); err != nil {
			return nil, err
		}
		return args, nil
	}
}

// fnDefine parses `fn NAME ( args ) : ... end`. The `fn` keyword has
// already been consumed.
func (parser *Parser) fnDefine() (ast.Node, error) {
	idToken, err := parser.consume(token.ID)
	if err != nil {
		return nil, err
	}

	if _, err := parser.consume(token.LBRACKET); err != nil {
		return nil, err
	}
	args, err := parser.args(token.RBRACKET)
	if err != nil {
		return nil, err
	}

	block, err := parser.block()
	if err != nil {
		return nil, err
	}

	return &ast.FnDefine{
		ID:    &ast.Identifier{Token: idToken},
		Args:  args,
		Block: block,
	}, nil
}

// block parses `: ... end`, a sequence of statements between BEGIN
// and END.
func (parser *Parser) block() (*ast.Block, error) {
	if _, err := parser.consume(token.BEGIN); err != nil {
		return nil, err
	}

	block := &ast.Block{Nodes: []ast.Node{}}
	for {
		for parser.match(token.SEMICOLON) {
		}
		if parser.match(token.END) {
			return block, nil
		}
		if parser.isFinished() {
			return nil, CreateSyntaxError(parser.peek().Start, "expected END to close block")
		}
		statement, err := parser.statement()
		if err != nil {
			return nil, err
		}
		block.Nodes = append(block.Nodes, statement)
	}
}

// ifStatement parses `if cond : ... end` with an optional
// `else : ... ` branch before the closing END. The `if` keyword has
// already been consumed. The then branch is terminated by `else` or
// `end`; when an else branch is present a single `end` closes the whole
// statement.
func (parser *Parser) ifStatement() (ast.Node, error) {
	condition, err := parser.expression()
	if err != nil {
		return nil, err
	}

	if _, err := parser.consume(token.BEGIN); err != nil {
		return nil, err
	}

	thenBlock := &ast.Block{Nodes: []ast.Node{}}
	for {
		for parser.match(token.SEMICOLON) {
		}
		if parser.match(token.END) {
			return &ast.IfStatement{Condition: condition, Block: thenBlock}, nil
		}
		if parser.match(token.ELSE) {
			break
		}
		if parser.isFinished() {
			return nil, CreateSyntaxError(parser.peek().Start, "expected END to close if statement")
		}
		statement, err := parser.statement()
		if err != nil {
			return nil, err
		}
		thenBlock.Nodes = append(thenBlock.Nodes, statement)
	}

	elseBlock, err := parser.block()
	if err != nil {
		return nil, err
	}

	return &ast.IfStatement{
		Condition: condition,
		Block:     thenBlock,
		ElseBlock: elseBlock,
	}, nil
}
