// Command vmrun is a small batch-mode host for the engine: it loads a
// bytecode image, either a built-in demo or a file given via -image, runs
// it, and reports the result or the formatted runtime error and stack
// trace.
package main

import (
	"flag"
	"fmt"
	"os"

	"regvm/pkg/bytecode"
	"regvm/pkg/runtime"
)

func main() {
	imagePath := flag.String("image", "", "path to a serialized bytecode image (defaults to the built-in demo)")
	flag.Parse()

	var img *bytecode.Image
	if *imagePath != "" {
		data, err := os.ReadFile(*imagePath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "vmrun:", err)
			os.Exit(-1)
		}
		img, err = bytecode.Decode(data)
		if err != nil {
			fmt.Fprintln(os.Stderr, "vmrun:", err)
			os.Exit(-1)
		}
	} else {
		img = demoImage()
	}

	cfg := runtime.DefaultConfig()
	sess := runtime.New(cfg)
	entry := sess.Load(img)

	if _, err := sess.Run(entry, nil); err != nil {
		fmt.Fprintln(os.Stderr, "runtime error:", err)
		fmt.Fprintln(os.Stderr, "stack trace:")
		for _, line := range sess.StackTrace() {
			fmt.Fprintln(os.Stderr, "  at", line)
		}
		os.Exit(-1)
	}
}

// demoImage assembles a tiny program with the image builder: a two-arg
// script function add(a, b), called with (2, 3), its result passed to the
// native print function.
func demoImage() *bytecode.Image {
	b := bytecode.NewBuilder("demo", 0, 6)
	entryFn := b.EntryFunc()

	addFn := entryFn.Function(2, 3)
	addFn.Add(2, 0, 1)
	addFn.Ret(2)
	addFn.EndFunction()

	addIdx := b.AddFuncDef("add", addFn)
	printIdx := b.AddStub("print")

	entryFn.LdSym(0, addIdx)
	entryFn.LoadInt(1, 2)
	entryFn.LoadInt(2, 3)
	entryFn.Call(3, 0, 1, 2)
	entryFn.LdSym(4, printIdx)
	entryFn.Call(5, 4, 3)
	entryFn.Ret(5)

	return b.Build()
}
