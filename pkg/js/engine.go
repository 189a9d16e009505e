// Package js evaluates browser viewport scripts against a simulated window.
package js

import (
	"fmt"
	"log/slog"

	"github.com/dop251/goja"
)

// Engine executes JavaScript against a simulated browser window.
type Engine struct {
	vm  *goja.Runtime
	win *window
}

// New creates a new JS engine with a fresh goja runtime and a window described by state.
func New(state WindowState, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	vm := goja.New()
	e := &Engine{vm: vm}

	// Register console API
	c := &consoleAPI{log: logger}
	c.register(vm)

	e.win = registerWindow(vm, state)
	return e
}

// Call evaluates fn, which must be a function expression such as `(y) => window.scroll(0, y)`,
// and invokes it with args. The result is exported to a Go value; undefined and null become nil.
func (e *Engine) Call(fn string, args ...any) (any, error) {
	v, err := e.vm.RunString("(" + fn + ")")
	if err != nil {
		return nil, fmt.Errorf("compile script: %w", err)
	}
	callable, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("script is not a function: %s", fn)
	}

	jsArgs := make([]goja.Value, len(args))
	for i, a := range args {
		jsArgs[i] = e.vm.ToValue(a)
	}
	res, err := callable(goja.Undefined(), jsArgs...)
	if err != nil {
		return nil, fmt.Errorf("run script: %w", err)
	}
	if goja.IsUndefined(res) || goja.IsNull(res) {
		return nil, nil
	}
	return res.Export(), nil
}

// ScrollY reports the window's current vertical scroll offset.
func (e *Engine) ScrollY() int {
	return e.win.scrollY
}
