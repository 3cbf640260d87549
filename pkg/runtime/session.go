// Package runtime wraps VM construction, standard-library installation,
// and program execution behind a small Session type, mirroring how a
// production embedder of this engine would wire things up.
package runtime

import (
	"io"
	"os"

	"regvm/pkg/bytecode"
	"regvm/pkg/stdlib"
	"regvm/pkg/vm"

	"github.com/sirupsen/logrus"
)

// Config layers the knobs a host application tunes before constructing a
// Session. DefaultConfig returns sane defaults matching §4.1/§4.9.
type Config struct {
	StackBaseCapacity int
	MaxCallDepth      int
	Stdout            io.Writer
	Logger            *logrus.Logger
}

// DefaultConfig returns the documented defaults: an 8-slot base stack, a
// 256-frame call-depth guard, stdout, and a logrus.Logger at Info level.
func DefaultConfig() Config {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	return Config{
		StackBaseCapacity: 8,
		MaxCallDepth:      256,
		Stdout:            os.Stdout,
		Logger:            logger,
	}
}

// Session owns one VM, the library installed into it, and the last error
// observed from a Run call, for post-mortem inspection (§6).
type Session struct {
	vm      *vm.VM
	image   *bytecode.Image
	entry   vm.Value
	lastErr error
}

// New constructs a Session from cfg, installing the standard library
// immediately.
func New(cfg Config) *Session {
	machine := vm.New(cfg.StackBaseCapacity, cfg.MaxCallDepth, cfg.Logger, cfg.Stdout)
	stdlib.Install(machine, cfg.Stdout)
	cfg.Logger.Info("session constructed")
	return &Session{vm: machine}
}

// SetContext installs the host-opaque context threaded to native calls.
func (s *Session) SetContext(ctx any) { s.vm.SetContext(ctx) }

// Load installs img as the program to run and returns a Value wrapping
// its entry function, ready to be passed to Run.
func (s *Session) Load(img *bytecode.Image) vm.Value {
	s.image = img
	s.entry = s.vm.LoadImage(img)
	return s.entry
}

// Run invokes fn with args, recording any error for LastError/StackTrace.
func (s *Session) Run(fn vm.Value, args []vm.Value) (vm.Value, error) {
	result, err := s.vm.CallFunction(fn, args)
	s.lastErr = err
	return result, err
}

// RunEntry runs the program loaded via Load with args, a convenience for
// the common "run the top-level program" case.
func (s *Session) RunEntry(args []vm.Value) (vm.Value, error) {
	return s.Run(s.entry, args)
}

// LastError returns the formatted message of the most recent Run error,
// or the empty string if the last Run succeeded.
func (s *Session) LastError() string {
	if s.lastErr == nil {
		return ""
	}
	return s.lastErr.Error()
}

// StackTrace captures the call stack at the point of the last error,
// innermost frame first (§6).
func (s *Session) StackTrace() []string { return s.vm.StackTrace() }

// VM exposes the underlying VM for callers that need host-embedding
// operations Session doesn't wrap directly (SetGlobal, Global, ...).
func (s *Session) VM() *vm.VM { return s.vm }
