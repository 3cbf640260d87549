// Package errors defines the runtime error type surfaced by the dispatcher.
//
// Unlike a source-level interpreter, this engine has no lexer/parser producing
// line/column positions: every error site is a bytecode address, so the single
// error type here carries an instruction offset instead of a source position.
package errors

import "fmt"

// NativeAddr is the sentinel instruction offset used when an error originates
// inside a native callback rather than at a dispatched instruction.
const NativeAddr = -1

// VMError is the error type returned by the dispatcher and the host call
// entry points. Addr is the word offset of the instruction word that raised
// the error, or NativeAddr for errors raised from native code.
type VMError struct {
	Addr int
	Msg  string
}

func (e *VMError) Error() string {
	if e.Addr == NativeAddr {
		return fmt.Sprintf("runtime error in native code: %s", e.Msg)
	}
	return fmt.Sprintf("runtime error at address 0x%08x: %s", uint32(e.Addr), e.Msg)
}

// New constructs a VMError at a given bytecode address.
func New(addr int, format string, args ...any) *VMError {
	return &VMError{Addr: addr, Msg: fmt.Sprintf(format, args...)}
}

// NewNative constructs a VMError attributed to native code.
func NewNative(format string, args ...any) *VMError {
	return &VMError{Addr: NativeAddr, Msg: fmt.Sprintf(format, args...)}
}
