package vm

import "regvm/pkg/bytecode"

// hostRetAddr marks a frame pushed directly by CallFunction: its RET is
// the one runUntilReturn halts on, rather than resuming some caller ip.
const hostRetAddr = -1

// LoadImage installs img as the VM's current program and returns a Value
// wrapping its top-level program function, ready to be passed to
// CallFunction as the entry point (§2, §4.6).
func (vm *VM) LoadImage(img *bytecode.Image) Value {
	vm.image = img
	fn := newScriptFunction(img.Name, img, img.EntryOffset, img.EntryDeclArgc, img.EntryNRegs, true, nil)
	return functionValue(fn)
}

// pushAndCopyArgs prepares a new frame for callee and copies args in:
// the first min(decl_argc, len(args)) go into the callee's named
// parameter registers, and anything beyond decl_argc goes into the
// variadic overflow region at [nregs, nregs+extra_argc) (§4.2). It is
// shared by host calls (CallFunction) and script-to-script calls
// (OpCall).
func (vm *VM) pushAndCopyArgs(callee *FunctionObject, args []Value, retAddr, retSlot int) {
	extraArgc := 0
	if len(args) > callee.DeclArgc {
		extraArgc = len(args) - callee.DeclArgc
	}
	vm.stack.pushFrame(callee, extraArgc, len(args), retAddr, retSlot)

	named := callee.DeclArgc
	if named > len(args) {
		named = len(args)
	}
	for i := 0; i < named; i++ {
		vm.stack.Set(i, args[i])
	}
	for i := callee.DeclArgc; i < len(args); i++ {
		vm.stack.Set(callee.NRegs+(i-callee.DeclArgc), args[i])
	}
}

// CallFunction is the host entry point (§4.3, §6): it invokes fn with
// args and runs the dispatcher to completion, returning the result or the
// first error raised. If fn is not a Function-variant Value, this reports
// "attempt to call non-function value" and fails without touching the
// stack — the same check CALL performs for script-to-script and native
// calls, extended to the host boundary itself.
func (vm *VM) CallFunction(fn Value, args []Value) (Value, error) {
	if fn.tag != TagFunction {
		err := newVMError(vm, "attempt to call non-function value")
		vm.lastErr = err
		return Nil, err
	}

	if vm.lastErr != nil {
		vm.unwind()
		vm.lastErr = nil
	}

	callee := fn.AsFunction()

	if callee.Native {
		vm.stack.pushNativePseudoframe(callee.Name, hostRetAddr, -1)
		v, err := callee.NativeFn(vm, args, vm.ctx)
		if err != nil {
			// Left on the stack for StackTrace; unwound by the next call.
			vm.lastErr = err
			return Nil, err
		}
		vm.stack.popFrame()
		return v, nil
	}

	if vm.stack.Depth() >= vm.maxCallDepth {
		err := newVMError(vm, "max call depth %d exceeded", vm.maxCallDepth)
		vm.lastErr = err
		return Nil, err
	}

	if callee.TopPrg {
		vm.ensureSymtabLoaded(callee)
	}

	savedIP := vm.ip
	savedImage := vm.image
	vm.image = callee.Image
	vm.pushAndCopyArgs(callee, args, hostRetAddr, -1)
	vm.ip = callee.Entry

	result, err := vm.runUntilReturn()

	vm.ip = savedIP
	vm.image = savedImage
	vm.lastErr = err
	return result, err
}

// runUntilReturn drives the dispatcher until the frame marked with
// hostRetAddr returns, surfacing its value, or until an error is raised.
func (vm *VM) runUntilReturn() (Value, error) {
	for {
		val, done, err := vm.step()
		if err != nil {
			return Nil, err
		}
		if done {
			return val, nil
		}
	}
}
