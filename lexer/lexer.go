package lexer

import (
	"regexp"
	"sort"
	"strings"

	"mira/token"
)

// rule pairs a regular expression with the token kind its matches produce.
// The position of a rule in the table is its priority: earlier rules claim
// their source spans first.
type rule struct {
	pattern string
	kind    token.Kind
	re      *regexp.Regexp
}

// claimed marks a span of the source that has already produced a token.
type claimed struct {
	start int
	end   int
}

// Lexer turns a source string into an ordered sequence of tokens.
//
// The lexer is pattern driven: it owns a fixed, ordered table of
// (pattern, kind) rules and runs every rule over the whole source. A match
// is dropped when its span is entirely contained within a span an earlier
// match already claimed. A produced token is reclassified when its exact
// text equals another rule's pattern, which is how bare words such as
// `true` or `end` end up with their keyword kind rather than ID.
//
// Characters no rule matches produce no token at all. They surface as
// parse errors downstream.
type Lexer struct {
	source string
	rules  []rule
}

// New initializes and returns a new Lexer for the given source string.
func New(source string) *Lexer {
	lexer := &Lexer{
		source: source,
		rules: []rule{
			{pattern: `".+?"`, kind: token.STRING},
			{pattern: `'.+?'`, kind: token.STRING},

			{pattern: `true`, kind: token.TRUE},
			{pattern: `false`, kind: token.FALSE},
			{pattern: `null`, kind: token.NULL},

			{pattern: `;`, kind: token.SEMICOLON},
			{pattern: `\s+`, kind: token.WHITESPACE},

			{pattern: `\(`, kind: token.LBRACKET},
			{pattern: `\)`, kind: token.RBRACKET},

			{pattern: `\[`, kind: token.LSQUARE},
			{pattern: `\]`, kind: token.RSQUARE},

			{pattern: `\{`, kind: token.LCURLY},
			{pattern: `\}`, kind: token.RCURLY},

			{pattern: `,`, kind: token.COMMA},

			{pattern: `\+`, kind: token.PLUS},
			{pattern: `\-`, kind: token.MINUS},
			{pattern: `\/`, kind: token.DIV},
			{pattern: `\*`, kind: token.MUL},

			{pattern: `!=`, kind: token.NOTEQ},
			{pattern: `==`, kind: token.EQ},

			{pattern: `>=`, kind: token.BIGGER_OR_EQ},
			{pattern: `<=`, kind: token.SMALLER_OR_EQ},

			{pattern: `:=`, kind: token.ASSIGN},

			{pattern: `>`, kind: token.BIGGER},
			{pattern: `<`, kind: token.SMALLER},

			{pattern: `&`, kind: token.AND},
			{pattern: `\?`, kind: token.OR},

			{pattern: `:`, kind: token.BEGIN},
			{pattern: `end`, kind: token.END},
			{pattern: `fn`, kind: token.DEF},

			{pattern: `if`, kind: token.IF},
			{pattern: `else`, kind: token.ELSE},

			{pattern: `return`, kind: token.RETURN},
			{pattern: `delay`, kind: token.DELAY},
			{pattern: `output`, kind: token.OUTPUT},

			{pattern: `using`, kind: token.USING},

			{pattern: `[a-zA-Z_][a-zA-Z0-9_]*`, kind: token.ID},
			{pattern: `[+-]?([0-9]*[.])?[0-9]+`, kind: token.NUMBER},

			// DOT must rank below NUMBER so a fractional literal claims
			// its decimal point before the bare `.` rule sees it.
			{pattern: `\.`, kind: token.DOT},
		},
	}
	for i := range lexer.rules {
		lexer.rules[i].re = regexp.MustCompile(lexer.rules[i].pattern)
	}
	return lexer
}

// reclassify returns the kind a matched text should carry. When the exact
// text equals the pattern of a different rule, that rule's kind wins.
func (lexer *Lexer) reclassify(matched string, current rule) token.Kind {
	kind := current.kind
	for _, other := range lexer.rules {
		if other.pattern == matched && other.pattern != current.pattern {
			kind = other.kind
		}
	}
	return kind
}

// Scan performs lexical analysis on the source and returns the tokens
// sorted by start offset, with whitespace and newlines stripped and the
// quote pair removed from STRING tokens. A trailing EOF token is appended
// so the parser always has a token to peek at.
func (lexer *Lexer) Scan() []token.Token {

	busy := []claimed{}
	raw := []token.Token{}

	for _, r := range lexer.rules {
		for _, match := range r.re.FindAllStringIndex(lexer.source, -1) {
			start, end := match[0], match[1]

			blocked := false
			for _, c := range busy {
				if start >= c.start && end <= c.end {
					blocked = true
				}
			}
			if blocked {
				continue
			}
			busy = append(busy, claimed{start: start, end: end})

			matched := lexer.source[start:end]
			raw = append(raw, token.Create(lexer.reclassify(matched, r), matched, start, end))
		}
	}

	tokens := []token.Token{}
	for _, tok := range raw {
		if tok.Kind == token.WHITESPACE || tok.Kind == token.NEWLINE {
			continue
		}
		tokens = append(tokens, tok)
	}

	sort.SliceStable(tokens, func(i, j int) bool {
		return tokens[i].Start < tokens[j].Start
	})

	for i, tok := range tokens {
		if tok.Kind == token.STRING {
			tokens[i].Value = tok.Value[1 : len(tok.Value)-1]
		}
	}

	tokens = append(tokens, token.Create(token.EOF, "", len(lexer.source), len(lexer.source)))
	return tokens
}

// Dump renders the token stream the way the `-logs` flag reports it,
// one token per line.
func Dump(tokens []token.Token) string {
	var builder strings.Builder
	for _, tok := range tokens {
		builder.WriteString(tok.String())
		builder.WriteString("\n")
	}
	return builder.String()
}
