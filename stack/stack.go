// Package stack captures the call path of an intercepted request.
package stack

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

const maxDepth = 128

// Inspector captures stacks and strips frames belonging to the instrumentation itself.
type Inspector struct {
	// Markers are function name prefixes (usually "import/path.") of frames to drop.
	Markers []string
}

// Capture returns the current goroutine's stack, outermost caller first. skip counts frames
// above the caller of Capture to omit, as with runtime.Callers.
func (i Inspector) Capture(skip int) []string {
	pcs := make([]uintptr, maxDepth)
	n := runtime.Callers(skip+2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var inner []string
	for {
		f, more := frames.Next()
		if !i.internal(f.Function) {
			inner = append(inner, Format(f))
		}
		if !more {
			break
		}
	}

	out := make([]string, len(inner))
	for j, f := range inner {
		out[len(inner)-1-j] = f
	}
	return out
}

// Clean drops frames matching any marker from an already captured trace.
func (i Inspector) Clean(trace []string) []string {
	out := make([]string, 0, len(trace))
	for _, f := range trace {
		if i.internal(functionOf(f)) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func (i Inspector) internal(function string) bool {
	for _, m := range i.Markers {
		if m != "" && strings.HasPrefix(function, m) {
			return true
		}
	}
	return false
}

// Format renders a frame the way the runtime prints goroutine traces.
func Format(f runtime.Frame) string {
	return fmt.Sprintf("%s\n\t%s:%d", f.Function, f.File, f.Line)
}

func functionOf(frame string) string {
	fn, _, _ := strings.Cut(frame, "\n")
	return fn
}

// PackageOf returns the "import/path." prefix of the function holding pc, suitable as a Marker.
func PackageOf(pc uintptr) string {
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return ""
	}
	name := fn.Name()
	// the package path ends at the first '.' after the last '/'
	slash := strings.LastIndex(name, "/")
	dot := strings.Index(name[slash+1:], ".")
	if dot < 0 {
		return name
	}
	return name[:slash+1+dot+1]
}

// MethodFrame names method on the dynamic type of v the way a captured frame would, eg.
// "net/http.(*Transport).RoundTrip". It lets a value that is not yet on the stack be matched by
// the same markers. It returns "" for nil and unnamed types.
func MethodFrame(v interface{}, method string) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return ""
	}
	ptr := t.Kind() == reflect.Pointer
	if ptr {
		t = t.Elem()
	}
	if t.Name() == "" || t.PkgPath() == "" {
		return ""
	}
	if ptr {
		return fmt.Sprintf("%s.(*%s).%s", t.PkgPath(), t.Name(), method)
	}
	return fmt.Sprintf("%s.%s.%s", t.PkgPath(), t.Name(), method)
}
