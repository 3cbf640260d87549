package runtime_test

import (
	"bytes"
	"strings"
	"testing"

	"regvm/pkg/bytecode"
	"regvm/pkg/runtime"

	"gotest.tools/v3/assert"
)

func TestSessionRunsProgramAndCallsStdlib(t *testing.T) {
	var out bytes.Buffer
	cfg := runtime.DefaultConfig()
	cfg.Stdout = &out
	sess := runtime.New(cfg)

	b := bytecode.NewBuilder("prog", 0, 3)
	entry := b.EntryFunc()
	printIdx := b.AddStub("print")
	entry.LdSym(0, printIdx)
	entry.LoadInt(1, 7)
	entry.Call(2, 0, 1)
	entry.Ret(2)
	img := b.Build()

	top := sess.Load(img)
	_, err := sess.Run(top, nil)
	assert.NilError(t, err)
	assert.Equal(t, strings.TrimSpace(out.String()), "7")
}

func TestSessionSurfacesRuntimeErrorAndTrace(t *testing.T) {
	cfg := runtime.DefaultConfig()
	cfg.Stdout = &bytes.Buffer{}
	sess := runtime.New(cfg)

	b := bytecode.NewBuilder("prog", 0, 2)
	entry := b.EntryFunc()
	entry.LoadInt(0, 1)
	entry.LoadInt(1, 0)
	entry.Div(0, 0, 1)
	entry.Ret(0)
	img := b.Build()

	top := sess.Load(img)
	_, err := sess.Run(top, nil)
	assert.ErrorContains(t, err, "division by zero")
	assert.Equal(t, sess.LastError(), err.Error())
	assert.DeepEqual(t, sess.StackTrace(), []string{"prog"})
}

func TestMaxCallDepthGuard(t *testing.T) {
	cfg := runtime.DefaultConfig()
	cfg.Stdout = &bytes.Buffer{}
	cfg.MaxCallDepth = 4
	sess := runtime.New(cfg)

	b := bytecode.NewBuilder("recurse", 0, 2)
	self := b.EntryFunc().Function(0, 1)
	selfIdx := b.AddFuncDef("self", self)
	self.LdSym(0, selfIdx)
	self.Call(0, 0)
	self.Ret(0)
	self.EndFunction()

	entry := b.EntryFunc()
	entry.LdSym(0, selfIdx)
	entry.Call(1, 0)
	entry.Ret(1)
	img := b.Build()

	top := sess.Load(img)
	_, err := sess.Run(top, nil)
	assert.ErrorContains(t, err, "max call depth")
}
