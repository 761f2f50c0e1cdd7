package logger

import (
	"reflect"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// ownPackage is the import path of this package, taken from a function in it
// so renaming the module needs no change here.
var ownPackage = func() string {
	name := runtime.FuncForPC(reflect.ValueOf(Logger).Pointer()).Name()
	return name[:strings.LastIndex(name, ".")]
}()

// callsiteHook points Entry.Caller at the first frame outside logrus and the
// Entry wrappers, so file:line names the component that logged.
type callsiteHook struct{}

func (h *callsiteHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *callsiteHook) Fire(entry *logrus.Entry) error {
	var pcs [24]uintptr
	n := runtime.Callers(4, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !skipFrame(frame.Function) {
			entry.Caller = &frame
			return nil
		}
		if !more {
			return nil
		}
	}
}

func skipFrame(fn string) bool {
	if strings.Contains(fn, "sirupsen/logrus") {
		return true
	}
	if !strings.HasPrefix(fn, ownPackage+".") {
		return false
	}
	// Only the wrappers are skipped; report.go and cloudwatch.go log from
	// their own call sites.
	return strings.Contains(fn, ".(*Entry).") || strings.Contains(fn, ".(*Log).")
}
