package vm

import (
	"fmt"
	"io"
	"os"
	"time"

	"mira/compiler"
)

// VM is the stack based virtual machine Mira bytecode gets executed on.
// It is a sequential interpreter: program order equals instruction order
// equals observable side-effect order, and every opcode is atomic with
// respect to the evaluation stack.
type VM struct {
	stack Stack
	logs  bool
	out   io.Writer
}

// New creates a VM. When logs is true the VM prints the bytecode listing
// of every instruction vector it enters.
func New(logs bool) *VM {
	return &VM{
		logs: logs,
		out:  os.Stdout,
	}
}

// pop removes the top of the evaluation stack, failing with a
// RuntimeError naming the opcode when the stack is empty.
func (vm *VM) pop(code compiler.Opcode) (compiler.Operand, error) {
	value, ok := vm.stack.Pop()
	if !ok {
		return nil, RuntimeError{Message: fmt.Sprintf("%s: cannot pop from an empty stack", code)}
	}
	return value, nil
}

// popNumber pops the top of the stack and asserts it is a number.
func (vm *VM) popNumber(code compiler.Opcode) (float64, error) {
	value, err := vm.pop(code)
	if err != nil {
		return 0, err
	}
	number, ok := value.(compiler.NumberOperand)
	if !ok {
		return 0, RuntimeError{Message: fmt.Sprintf("%s: operands must be numbers", code)}
	}
	return number.Value, nil
}

// popBool pops the top of the stack and asserts it is a boolean.
func (vm *VM) popBool(code compiler.Opcode) (bool, error) {
	value, err := vm.pop(code)
	if err != nil {
		return false, err
	}
	boolean, ok := value.(compiler.BoolOperand)
	if !ok {
		return false, RuntimeError{Message: fmt.Sprintf("%s: operands must be booleans", code)}
	}
	return boolean.Value, nil
}

// name extracts the string immediate naming the binding an instruction
// operates on.
func name(instruction compiler.Instruction) (string, error) {
	operand, ok := instruction.Operand.(compiler.StringOperand)
	if !ok {
		return "", RuntimeError{Message: fmt.Sprintf("%s: expected a name operand", instruction.Code)}
	}
	return operand.Value, nil
}

// Run executes an instruction vector as one frame against the given
// scope. On entry every binding of parent not already shadowed by scope
// is copied into scope; functions carry the scope they were defined in as
// their parent, which is what realizes closure semantics.
//
// The returned operand is non-nil only when a RETURN terminated the
// frame. Any failing opcode terminates execution with a RuntimeError,
// there is no recovery.
func (vm *VM) Run(bytecode compiler.Instructions, scope *Scope, parent *Scope) (compiler.Operand, error) {
	if vm.logs {
		fmt.Fprintln(vm.out, bytecode.String())
	}

	if parent != nil {
		scope.merge(parent)
	}

	for _, instruction := range bytecode {
		switch instruction.Code {

		case compiler.OP_PUSH:
			if instruction.Operand == nil {
				return nil, RuntimeError{Message: "PUSH: no operand"}
			}
			vm.stack.Push(instruction.Operand)

		case compiler.OP_GETGLOBAL:
			id, err := name(instruction)
			if err != nil {
				return nil, err
			}
			member, ok := scope.members[id]
			if !ok {
				return nil, RuntimeError{Message: fmt.Sprintf("GETGLOBAL: name '%s' not found", id)}
			}
			value, ok := member.(compiler.Operand)
			if !ok {
				return nil, RuntimeError{Message: fmt.Sprintf("GETGLOBAL: name '%s' is not bound to a value", id)}
			}
			vm.stack.Push(value)

		case compiler.OP_SETGLOBAL:
			id, err := name(instruction)
			if err != nil {
				return nil, err
			}
			value, err := vm.pop(instruction.Code)
			if err != nil {
				return nil, err
			}
			scope.members[id] = value

		case compiler.OP_ADD, compiler.OP_SUB, compiler.OP_MUL, compiler.OP_DIV:
			// The top of the stack is the right operand: for `x - y`
			// the generator emits <x> <y> SUB and the VM computes x - y.
			right, err := vm.popNumber(instruction.Code)
			if err != nil {
				return nil, err
			}
			left, err := vm.popNumber(instruction.Code)
			if err != nil {
				return nil, err
			}
			var result float64
			switch instruction.Code {
			case compiler.OP_ADD:
				result = left + right
			case compiler.OP_SUB:
				result = left - right
			case compiler.OP_MUL:
				result = left * right
			case compiler.OP_DIV:
				result = left / right
			}
			vm.stack.Push(compiler.NumberOperand{Value: result})

		case compiler.OP_EQ:
			one, err := vm.pop(instruction.Code)
			if err != nil {
				return nil, err
			}
			two, err := vm.pop(instruction.Code)
			if err != nil {
				return nil, err
			}
			vm.stack.Push(compiler.BoolOperand{Value: one.Eq(two)})

		case compiler.OP_NOTEQ:
			one, err := vm.pop(instruction.Code)
			if err != nil {
				return nil, err
			}
			two, err := vm.pop(instruction.Code)
			if err != nil {
				return nil, err
			}
			vm.stack.Push(compiler.BoolOperand{Value: !one.Eq(two)})

		case compiler.OP_BIGGER, compiler.OP_SMALLER, compiler.OP_BIGGER_OR_EQ, compiler.OP_SMALLER_OR_EQ:
			right, err := vm.popNumber(instruction.Code)
			if err != nil {
				return nil, err
			}
			left, err := vm.popNumber(instruction.Code)
			if err != nil {
				return nil, err
			}
			var result bool
			switch instruction.Code {
			case compiler.OP_BIGGER:
				result = left > right
			case compiler.OP_SMALLER:
				result = left < right
			case compiler.OP_BIGGER_OR_EQ:
				result = left >= right
			case compiler.OP_SMALLER_OR_EQ:
				result = left <= right
			}
			vm.stack.Push(compiler.BoolOperand{Value: result})

		case compiler.OP_AND:
			one, err := vm.popBool(instruction.Code)
			if err != nil {
				return nil, err
			}
			two, err := vm.popBool(instruction.Code)
			if err != nil {
				return nil, err
			}
			vm.stack.Push(compiler.BoolOperand{Value: one && two})

		case compiler.OP_OR:
			// Both sides were already evaluated, OR only selects: when
			// the top is null or false the other operand wins.
			b, err := vm.pop(instruction.Code)
			if err != nil {
				return nil, err
			}
			a, err := vm.pop(instruction.Code)
			if err != nil {
				return nil, err
			}
			selected := b
			if isFalsy(b) {
				selected = a
			}
			vm.stack.Push(selected)

		case compiler.OP_LOADFUNC:
			operand, ok := instruction.Operand.(compiler.FunctionOperand)
			if !ok {
				return nil, RuntimeError{Message: "LOADFUNC: no function operand"}
			}
			scope.members[operand.Decl.ID] = Function{Decl: operand.Decl, Scope: scope}

		case compiler.OP_CALL:
			id, err := name(instruction)
			if err != nil {
				return nil, err
			}
			member, ok := scope.members[id]
			if !ok {
				return nil, RuntimeError{Message: fmt.Sprintf("CALL: function '%s' doesn't exist", id)}
			}
			function, ok := member.(Function)
			if !ok {
				return nil, RuntimeError{Message: fmt.Sprintf("CALL: function '%s' doesn't exist", id)}
			}

			// The first argument was pushed last by the reversed
			// lowering rule, so it is popped first and matched to the
			// first declared name.
			newScope := NewScope()
			for _, argId := range function.Decl.Args {
				arg, err := vm.pop(instruction.Code)
				if err != nil {
					return nil, err
				}
				newScope.members[argId] = arg
			}

			result, err := vm.Run(function.Decl.Bytecode, newScope, function.Scope)
			if err != nil {
				return nil, err
			}
			if result == nil {
				result = compiler.NullOperand{}
			}
			vm.stack.Push(result)

		case compiler.OP_RETURN:
			if vm.stack.IsEmpty() {
				return compiler.NullOperand{}, nil
			}
			return vm.pop(instruction.Code)

		case compiler.OP_DELAY:
			seconds, err := vm.popNumber(instruction.Code)
			if err != nil {
				return nil, err
			}
			time.Sleep(time.Duration(seconds * float64(time.Second)))

		case compiler.OP_OUTPUT:
			value, err := vm.pop(instruction.Code)
			if err != nil {
				return nil, err
			}
			fmt.Fprintln(vm.out, "OUTPUT: "+value.String())

		case compiler.OP_IF:
			operand, ok := instruction.Operand.(compiler.IfOperand)
			if !ok {
				return nil, RuntimeError{Message: "IF: no operand"}
			}
			condition, err := vm.popBool(instruction.Code)
			if err != nil {
				return nil, err
			}

			body := operand.Then
			if !condition {
				body = operand.Else
			}
			if len(body) == 0 {
				continue
			}

			// The branch runs in a fresh child scope. Afterwards every
			// name that already existed in this scope prior to entry is
			// written back; names introduced by the child are discarded.
			child := NewScope()
			result, err := vm.Run(body, child, scope)
			if err != nil {
				return nil, err
			}
			for memberName, member := range child.members {
				if _, ok := scope.members[memberName]; ok {
					scope.members[memberName] = member
				}
			}
			if result != nil {
				return result, nil
			}

		case compiler.OP_INDEXATION:
			index, err := vm.popNumber(instruction.Code)
			if err != nil {
				return nil, err
			}
			container, err := vm.pop(instruction.Code)
			if err != nil {
				return nil, err
			}
			array, ok := container.(*compiler.ArrayOperand)
			if !ok {
				return nil, RuntimeError{Message: "INDEXATION: container must be an array"}
			}
			position := int(index)
			if position < 0 || position >= len(array.Elements) {
				return nil, RuntimeError{Message: fmt.Sprintf("INDEXATION: index %d out of range", position)}
			}
			vm.stack.Push(array.Elements[position])

		case compiler.OP_SETINDEX:
			index, err := vm.popNumber(instruction.Code)
			if err != nil {
				return nil, err
			}
			value, err := vm.pop(instruction.Code)
			if err != nil {
				return nil, err
			}
			container, err := vm.pop(instruction.Code)
			if err != nil {
				return nil, err
			}
			array, ok := container.(*compiler.ArrayOperand)
			if !ok {
				return nil, RuntimeError{Message: "SETINDEX: container must be an array"}
			}
			position := int(index)
			if position < 0 || position >= len(array.Elements) {
				return nil, RuntimeError{Message: fmt.Sprintf("SETINDEX: index %d out of range", position)}
			}
			array.Elements[position] = value

		default:
			return nil, RuntimeError{Message: fmt.Sprintf("unknown opcode %d", instruction.Code)}
		}
	}

	return nil, nil
}

// isFalsy reports whether OR treats the operand as absent: null or the
// boolean false.
func isFalsy(operand compiler.Operand) bool {
	if _, ok := operand.(compiler.NullOperand); ok {
		return true
	}
	if boolean, ok := operand.(compiler.BoolOperand); ok {
		return !boolean.Value
	}
	return false
}
