package vm

import (
	"io"
	"os"

	"regvm/pkg/bytecode"
	"regvm/pkg/errors"

	"github.com/sirupsen/logrus"
)

const defaultMaxCallDepth = 256

// VM is one instance of the engine: one global table, one value stack, and
// whatever image is currently executing (§2). A VM is not safe for
// concurrent use (§5) — callers needing isolation run one VM per
// goroutine.
type VM struct {
	stack   *Stack
	globals map[string]Value
	image   *bytecode.Image

	ip int // word offset of the instruction currently being decoded

	maxCallDepth int
	logger       *logrus.Logger
	stdout       io.Writer
	ctx          any
	lastErr      error
}

// New constructs a VM with baseStackCap cells of initial stack capacity.
// A nil logger installs a silent logrus.Logger; a nil stdout defaults to
// os.Stdout.
func New(baseStackCap, maxCallDepth int, logger *logrus.Logger, stdout io.Writer) *VM {
	if maxCallDepth <= 0 {
		maxCallDepth = defaultMaxCallDepth
	}
	if logger == nil {
		logger = logrus.New()
		logger.Out = io.Discard
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	return &VM{
		stack:        NewStack(baseStackCap),
		globals:      make(map[string]Value),
		maxCallDepth: maxCallDepth,
		logger:       logger,
		stdout:       stdout,
	}
}

// SetGlobal installs a host value under name in the global table (§6),
// retaining it. Used both by the host boundary and by GLBVAL.
func (vm *VM) SetGlobal(name string, v Value) {
	retainValue(v)
	if old, ok := vm.globals[name]; ok {
		releaseValue(old)
	}
	vm.globals[name] = v
}

// DefineGlobal installs name in the global table, as GLBVAL does; it is an
// error to redefine an existing name (§4.4).
func (vm *VM) DefineGlobal(name string, v Value) error {
	if _, exists := vm.globals[name]; exists {
		return newVMError(vm, "re-definition of global '%s'", name)
	}
	vm.SetGlobal(name, v)
	return nil
}

// InstallGroup installs a native function group or pre-built value group
// (§6) under libName, or directly into the global table when libName is
// "". A non-empty libName nests entries under a library sub-table,
// creating it on first use and reusing it on subsequent calls, mirroring
// the original engine's addlib_cfuncs/addlib_values namespacing. Every
// Value in entries is expected to carry its constructor's single fresh
// reference; InstallGroup retains its own copy and releases that one.
func (vm *VM) InstallGroup(libName string, entries map[string]Value) error {
	if libName == "" {
		for name, v := range entries {
			vm.SetGlobal(name, v)
			releaseValue(v)
		}
		return nil
	}

	lib, ok := vm.globals[libName]
	if !ok {
		lib = ArrayValue()
		vm.globals[libName] = lib
	} else if lib.tag != TagArray {
		return newVMError(vm, "global %q is already defined and is not a library table", libName)
	}

	arr := lib.AsArray()
	for name, v := range entries {
		arr.SetProp(name, v)
		releaseValue(v)
	}
	return nil
}

// Global looks up name in the global table.
func (vm *VM) Global(name string) (Value, bool) {
	v, ok := vm.globals[name]
	return v, ok
}

// SetContext installs the host-opaque value threaded to every native
// callback (§6).
func (vm *VM) SetContext(ctx any) { vm.ctx = ctx }

// Context returns the current host context.
func (vm *VM) Context() any { return vm.ctx }

// Stdout returns the writer native functions like print should write to.
func (vm *VM) Stdout() io.Writer { return vm.stdout }

// StackTrace captures the current call stack, innermost frame first
// (§6): one function name per active frame down to the host base.
func (vm *VM) StackTrace() []string { return vm.stack.Trace() }

// StackDepth reports the number of active frames, including the
// synthetic bottom frame.
func (vm *VM) StackDepth() int { return vm.stack.Depth() }

// LastError returns the message of the most recently raised runtime
// error, or "" if the last call succeeded (§6).
func (vm *VM) LastError() string {
	if vm.lastErr == nil {
		return ""
	}
	return vm.lastErr.Error()
}

// SetLastError lets a host inject a custom error, e.g. from a native
// callback that wants the same post-mortem surface as a VM-raised one.
func (vm *VM) SetLastError(err error) { vm.lastErr = err }

// unwind pops every frame above the host base. It is called at the start
// of CallFunction when the previous call ended in error, since the
// dispatcher leaves frames intact at the failure site for post-mortem
// inspection (§4.3) rather than unwinding them itself.
func (vm *VM) unwind() {
	for vm.stack.Depth() > 1 {
		vm.stack.popFrame()
	}
}

func newVMError(vm *VM, format string, args ...any) error {
	err := errors.New(vm.ip, format, args...)
	vm.logger.WithFields(logrus.Fields{"addr": vm.ip}).Error(err.Error())
	return err
}

func newNativeError(vm *VM, format string, args ...any) error {
	err := errors.NewNative(format, args...)
	vm.logger.WithError(err).Error("native call failed")
	return err
}
