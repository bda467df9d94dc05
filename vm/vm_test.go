package vm

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mira/compiler"
)

// runSource compiles and executes a program, returning everything the
// program wrote to the output sink together with the execution error.
func runSource(t *testing.T, source string) (string, error) {
	t.Helper()

	bytecode, err := compiler.Compile(source)
	require.NoError(t, err)

	machine := New(false)
	var buf bytes.Buffer
	machine.out = &buf

	_, err = machine.Run(bytecode, NewScope(), nil)
	return buf.String(), err
}

func TestRunScenarios(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{
			name:   "right-folded arithmetic",
			source: "x := 2 + 3 * 4; output x",
			want:   "OUTPUT: 14\n",
		},
		{
			name:   "subtraction operand order",
			source: "x := 10 - 3; output x",
			want:   "OUTPUT: 7\n",
		},
		{
			name:   "call with reversed arguments and own scope",
			source: "fn add(a, b) : return a + b end; output add(2, 5)",
			want:   "OUTPUT: 7\n",
		},
		{
			name:   "if takes the then branch",
			source: "if 3 > 2 : output 1 else : output 2 end",
			want:   "OUTPUT: 1\n",
		},
		{
			name:   "if takes the else branch",
			source: "if 2 > 3 : output 1 else : output 2 end",
			want:   "OUTPUT: 2\n",
		},
		{
			name:   "if writes back pre-existing bindings",
			source: "a := 0; if true : a := 5 end; output a",
			want:   "OUTPUT: 5\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := runSource(t, tt.source)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunIfDoesNotLeakNewBindings(t *testing.T) {
	_, err := runSource(t, "a := 0; if true : b := 5 end; output b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	var runtimeErr RuntimeError
	require.ErrorAs(t, err, &runtimeErr)
}

func TestRunArithmeticAndComparisons(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{name: "division keeps operand order", source: "output 10 / 4", want: "OUTPUT: 2.5\n"},
		{name: "multiplication", source: "output 6 * 7", want: "OUTPUT: 42\n"},
		{name: "bigger", source: "output 3 > 2", want: "OUTPUT: true\n"},
		{name: "smaller", source: "output 3 < 2", want: "OUTPUT: false\n"},
		{name: "bigger or equal", source: "output 2 >= 2", want: "OUTPUT: true\n"},
		{name: "smaller or equal", source: "output 2 <= 1", want: "OUTPUT: false\n"},
		{name: "equality between numbers", source: "output 1 == 1", want: "OUTPUT: true\n"},
		{name: "equality only between same tags", source: "output 1 == '1'", want: "OUTPUT: false\n"},
		{name: "null equals null", source: "output null == null", want: "OUTPUT: true\n"},
		{name: "inequality", source: "output 1 != 2", want: "OUTPUT: true\n"},
		{name: "logical and", source: "output true & false", want: "OUTPUT: false\n"},
		{name: "grouping overrides the right fold", source: "output (2 + 3) * 4", want: "OUTPUT: 20\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := runSource(t, tt.source)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunOrSelects(t *testing.T) {
	// OR does not short-circuit: both sides are already on the stack and
	// the opcode only selects. When the top is null or false the other
	// operand wins.
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{name: "top wins when truthy", source: "output false ? 5", want: "OUTPUT: 5\n"},
		{name: "other side wins when top is false", source: "output 3 ? false", want: "OUTPUT: 3\n"},
		{name: "other side wins when top is null", source: "output 7 ? null", want: "OUTPUT: 7\n"},
		{name: "both null stays null", source: "output null ? null", want: "OUTPUT: NULL\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := runSource(t, tt.source)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunFunctionsCloseOverDefinitionScope(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{
			name:   "function sees bindings from where it was defined",
			source: "x := 10; fn get() : return x end; output get()",
			want:   "OUTPUT: 10\n",
		},
		{
			name:   "arguments shadow the definition scope",
			source: "x := 1; fn echo(x) : return x end; output echo(5)",
			want:   "OUTPUT: 5\n",
		},
		{
			name:   "return propagates out of a conditional",
			source: "fn f(x) : if x > 1 : return 99 end; return 1 end; output f(5)",
			want:   "OUTPUT: 99\n",
		},
		{
			name:   "call result is null when the body never returns",
			source: "fn noop() : x := 1 end; output noop()",
			want:   "OUTPUT: NULL\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := runSource(t, tt.source)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunArrays(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{
			name:   "indexation reads an element",
			source: "a := [1, 2, 3]; output a[1]",
			want:   "OUTPUT: 2\n",
		},
		{
			name:   "setindex mutates the shared array",
			source: "a := [1, 2, 3]; a[1] := 9; output a[1]",
			want:   "OUTPUT: 9\n",
		},
		{
			name:   "array printable form",
			source: "output [1, 2]",
			want:   "OUTPUT: [ 1, 2 ]\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := runSource(t, tt.source)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunRuntimeErrors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		message string
	}{
		{name: "unknown name", source: "output missing", message: "GETGLOBAL: name 'missing' not found"},
		{name: "unknown function", source: "add(1, 2)", message: "CALL: function 'add' doesn't exist"},
		{name: "calling a value", source: "x := 1; x(2)", message: "CALL: function 'x' doesn't exist"},
		{name: "add requires numbers", source: "output 1 + true", message: "ADD: operands must be numbers"},
		{name: "comparison requires numbers", source: "output 'a' > 'b'", message: "BIGGER: operands must be numbers"},
		{name: "and requires booleans", source: "output 1 & true", message: "AND: operands must be booleans"},
		{name: "if condition must be a boolean", source: "if 1 : output 1 end", message: "IF: operands must be booleans"},
		{name: "indexation requires an array", source: "a := 1; output a[0]", message: "INDEXATION: container must be an array"},
		{name: "indexation out of range", source: "a := [1]; output a[5]", message: "INDEXATION: index 5 out of range"},
		{name: "setindex out of range", source: "a := [1]; a[3] := 2", message: "SETINDEX: index 3 out of range"},
		{name: "a function name is not a value", source: "fn f() : return 1 end; output f", message: "not bound to a value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runSource(t, tt.source)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)

			var runtimeErr RuntimeError
			require.ErrorAs(t, err, &runtimeErr)
		})
	}
}

func TestRunEmptyStackPop(t *testing.T) {
	machine := New(false)
	_, err := machine.Run(compiler.Instructions{{Code: compiler.OP_ADD}}, NewScope(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot pop from an empty stack")
}

func TestRunReturnOnEmptyStackYieldsNull(t *testing.T) {
	machine := New(false)
	result, err := machine.Run(compiler.Instructions{{Code: compiler.OP_RETURN}}, NewScope(), nil)
	require.NoError(t, err)
	assert.Equal(t, compiler.NullOperand{}, result)
}

func TestRunTopLevelReturn(t *testing.T) {
	bytecode, err := compiler.Compile("return 5")
	require.NoError(t, err)

	machine := New(false)
	result, err := machine.Run(bytecode, NewScope(), nil)
	require.NoError(t, err)
	assert.Equal(t, compiler.NumberOperand{Value: 5}, result)
}

func TestRunStackIsEmptyBetweenStatements(t *testing.T) {
	bytecode, err := compiler.Compile("x := 1; y := x + 2; output y; if true : output 1 end")
	require.NoError(t, err)

	machine := New(false)
	var buf bytes.Buffer
	machine.out = &buf

	_, err = machine.Run(bytecode, NewScope(), nil)
	require.NoError(t, err)
	assert.True(t, machine.stack.IsEmpty(), "evaluation stack must drain between top-level statements")
}

func TestRunIsDeterministic(t *testing.T) {
	source := "x := 2; fn double(n) : return n * 2 end; output double(x); if x > 1 : output x end"

	first, err := runSource(t, source)
	require.NoError(t, err)
	second, err := runSource(t, source)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRunDelayBlocks(t *testing.T) {
	started := time.Now()
	_, err := runSource(t, "delay 0.05")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(started), 40*time.Millisecond)
}

func TestRunPersistentScopeAcrossRuns(t *testing.T) {
	// The REPL reuses one scope for the whole session.
	scope := NewScope()
	machine := New(false)
	var buf bytes.Buffer
	machine.out = &buf

	first, err := compiler.Compile("x := 41")
	require.NoError(t, err)
	_, err = machine.Run(first, scope, nil)
	require.NoError(t, err)

	second, err := compiler.Compile("output x + 1")
	require.NoError(t, err)
	_, err = machine.Run(second, scope, nil)
	require.NoError(t, err)

	assert.Equal(t, "OUTPUT: 42\n", buf.String())
}

func TestRunLogsBytecodeListing(t *testing.T) {
	bytecode, err := compiler.Compile("output 1")
	require.NoError(t, err)

	machine := New(true)
	var buf bytes.Buffer
	machine.out = &buf

	_, err = machine.Run(bytecode, NewScope(), nil)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "[ BYTECODE ]")
	assert.Contains(t, buf.String(), "OUTPUT: 1\n")
}
