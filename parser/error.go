package parser

import "fmt"

// Defines the struct for all syntax errors in the Parser
type SyntaxError struct {
	Offset  int
	Message string
}

func CreateSyntaxError(offset int, message string) SyntaxError {
	return SyntaxError{
		Offset:  offset,
		Message: message,
	}
}

func (e SyntaxError) Error() string {
	return fmt.Sprintf("💥 Mira syntax error:\noffset:%d - %s", e.Offset, e.Message)
}
