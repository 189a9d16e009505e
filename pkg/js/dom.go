package js

import (
	"github.com/dop251/goja"
)

// WindowState describes the simulated browser window.
type WindowState struct {
	// DevicePixelRatio is exposed as window.devicePixelRatio; 0 leaves it undefined.
	DevicePixelRatio float64
	InnerWidth       int
	InnerHeight      int
	// ScrollHeight is the document height; scrolling stops at ScrollHeight-InnerHeight.
	ScrollHeight int
	ScrollY      int
	ClientTop    int
	// HideInnerHeight leaves window.innerHeight undefined, as broken drivers report it.
	HideInnerHeight bool
}

// window holds the mutable scroll state behind the JS `window` global.
type window struct {
	vm      *goja.Runtime
	obj     *goja.Object
	docEl   *goja.Object
	state   WindowState
	scrollY int
}

func registerWindow(vm *goja.Runtime, state WindowState) *window {
	w := &window{vm: vm, state: state}

	w.obj = vm.NewObject()
	if state.DevicePixelRatio != 0 {
		w.obj.Set("devicePixelRatio", state.DevicePixelRatio)
	}
	w.obj.Set("innerWidth", state.InnerWidth)
	if !state.HideInnerHeight {
		w.obj.Set("innerHeight", state.InnerHeight)
	}
	w.obj.Set("scroll", w.scroll)
	w.obj.Set("scrollTo", w.scroll)

	w.docEl = vm.NewObject()
	w.docEl.Set("clientTop", state.ClientTop)
	w.docEl.Set("scrollHeight", state.ScrollHeight)

	doc := vm.NewObject()
	doc.Set("documentElement", w.docEl)

	vm.Set("window", w.obj)
	vm.Set("document", doc)

	w.setScroll(state.ScrollY)
	return w
}

// scroll implements window.scroll(x, y), clamping y the way browsers do at the document end.
func (w *window) scroll(call goja.FunctionCall) goja.Value {
	w.setScroll(int(call.Argument(1).ToInteger()))
	return goja.Undefined()
}

func (w *window) setScroll(y int) {
	maxY := max(w.state.ScrollHeight-w.state.InnerHeight, 0)
	w.scrollY = min(max(y, 0), maxY)
	w.obj.Set("pageYOffset", w.scrollY)
	w.obj.Set("scrollY", w.scrollY)
	w.docEl.Set("scrollTop", w.scrollY)
}
