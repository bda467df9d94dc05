package compiler

import "fmt"

type CompileError struct {
	Message string
}

func (e CompileError) Error() string {
	return fmt.Sprintf("💥 CompileError: %s", e.Message)
}
