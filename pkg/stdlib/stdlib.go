// Package stdlib is the minimal native function/value library installed
// into a VM's global symbol table at session construction. It exists to
// exercise the host/native call boundary end-to-end, not to be a complete
// standard library.
package stdlib

import (
	"fmt"
	"io"
	"strings"
	"time"

	"regvm/pkg/vm"

	"github.com/dlclark/regexp2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Install registers every native function and value this package provides
// into machine, writing print's output to w. Global-table installs keep
// the original bare names (print, len, upper, ...); the same string/regex
// functions and constants are additionally nested under the "strings" and
// "math" library tables (§6's "install ... under an optional library
// name"), so either access style works from a script.
func Install(machine *vm.VM, w io.Writer) {
	mustInstall(machine, "", map[string]vm.Value{
		"print": vm.NewNativeFunction("print", printFn(w)),
		"len":   vm.NewNativeFunction("len", lenFn),
		"clock": vm.NewNativeFunction("clock", clockFn),
		"upper": vm.NewNativeFunction("upper", upperFn),
		"lower": vm.NewNativeFunction("lower", lowerFn),
		"match": vm.NewNativeFunction("match", matchFn),
		"PI":    vm.FloatValue(3.14159265358979323846),
		"E":     vm.FloatValue(2.71828182845904523536),
	})

	mustInstall(machine, "strings", map[string]vm.Value{
		"upper": vm.NewNativeFunction("upper", upperFn),
		"lower": vm.NewNativeFunction("lower", lowerFn),
		"match": vm.NewNativeFunction("match", matchFn),
	})

	mustInstall(machine, "math", map[string]vm.Value{
		"pi": vm.FloatValue(3.14159265358979323846),
		"e":  vm.FloatValue(2.71828182845904523536),
	})
}

// mustInstall wraps VM.InstallGroup for the fixed, collision-free set of
// names this package installs at session construction: a failure here
// would mean a prior session already defined "strings" or "math" as a
// non-table global, which never happens on a freshly constructed VM.
func mustInstall(machine *vm.VM, libName string, entries map[string]vm.Value) {
	if err := machine.InstallGroup(libName, entries); err != nil {
		panic(err)
	}
}

func printFn(w io.Writer) vm.NativeFunc {
	return func(_ *vm.VM, args []vm.Value, _ any) (vm.Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.String()
		}
		fmt.Fprintln(w, strings.Join(parts, " "))
		return vm.Nil, nil
	}
}

func lenFn(_ *vm.VM, args []vm.Value, _ any) (vm.Value, error) {
	if len(args) != 1 {
		return vm.Nil, fmt.Errorf("len expects 1 argument, got %d", len(args))
	}
	switch args[0].Tag() {
	case vm.TagString:
		return vm.IntValue(int64(len(args[0].AsString()))), nil
	case vm.TagArray:
		return vm.IntValue(int64(args[0].AsArray().Len())), nil
	default:
		return vm.Nil, fmt.Errorf("len is not defined for %s", args[0].Tag())
	}
}

func clockFn(_ *vm.VM, _ []vm.Value, _ any) (vm.Value, error) {
	return vm.FloatValue(float64(time.Now().UnixNano()) / 1e6), nil
}

func upperFn(_ *vm.VM, args []vm.Value, _ any) (vm.Value, error) {
	s, err := soleString("upper", args)
	if err != nil {
		return vm.Nil, err
	}
	return vm.StringValue(cases.Upper(language.Und).String(s)), nil
}

func lowerFn(_ *vm.VM, args []vm.Value, _ any) (vm.Value, error) {
	s, err := soleString("lower", args)
	if err != nil {
		return vm.Nil, err
	}
	return vm.StringValue(cases.Lower(language.Und).String(s)), nil
}

func matchFn(_ *vm.VM, args []vm.Value, _ any) (vm.Value, error) {
	if len(args) != 2 || args[0].Tag() != vm.TagString || args[1].Tag() != vm.TagString {
		return vm.Nil, fmt.Errorf("match expects (string, pattern)")
	}
	re, err := regexp2.Compile(args[1].AsString(), regexp2.None)
	if err != nil {
		return vm.Nil, fmt.Errorf("invalid pattern: %w", err)
	}
	ok, err := re.MatchString(args[0].AsString())
	if err != nil {
		return vm.Nil, fmt.Errorf("match failed: %w", err)
	}
	return vm.BoolValue(ok), nil
}

func soleString(name string, args []vm.Value) (string, error) {
	if len(args) != 1 || args[0].Tag() != vm.TagString {
		return "", fmt.Errorf("%s expects 1 string argument", name)
	}
	return args[0].AsString(), nil
}
