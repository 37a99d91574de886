package log

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// patternFormatter renders a logrus entry by substituting a handful of
// placeholders into a literal template (the gateway's log.pattern config
// key), rather than fixing a field order the way logrus's built-in
// TextFormatter does. Operators running this gateway alongside other SRS
// tooling expect to line the formats up exactly.
type patternFormatter struct {
	pattern string
	timeFmt string
}

// placeholders the template may reference. %field renders whatever
// WithField/WithDevice/WithSSRC attached to the entry (device id, ssrc,
// stream id, ...), not a fixed schema.
const (
	placeholderTime      = "%time"
	placeholderLevel     = "%level"
	placeholderField     = "%field"
	placeholderMessage   = "%msg"
	placeholderCaller    = "%caller"
	placeholderFunc      = "%func"
	placeholderGoroutine = "%goroutine"
)

func (f *patternFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	out := f.pattern
	out = strings.Replace(out, placeholderTime, entry.Time.Format(f.timeFmt), 1)
	out = strings.Replace(out, placeholderLevel, entry.Level.String(), 1)
	out = strings.Replace(out, placeholderField, formatEntryFields(entry), 1)
	out = strings.Replace(out, placeholderMessage, entry.Message, 1)
	out = strings.Replace(out, placeholderCaller, callSite(entry), 1)
	out = strings.Replace(out, placeholderFunc, callerFunc(entry), 1)
	out = strings.Replace(out, placeholderGoroutine, currentGoroutineID(), 1)
	return []byte(out), nil
}

// callSite renders "package/file.go:line" for the call that produced
// entry, falling back to a raw runtime.Caller walk when logrus wasn't
// configured to record one (SetReportCaller(false)).
func callSite(entry *logrus.Entry) string {
	if entry.HasCaller() {
		return fmt.Sprintf("%s/%s:%d", packageOf(entry.Caller.Function), baseName(entry.Caller.File), entry.Caller.Line)
	}
	if _, file, line, ok := runtime.Caller(8); ok {
		return fmt.Sprintf("unknown/%s:%d", baseName(file), line)
	}
	return "unknown"
}

// callerFunc renders just the function/method name, trimming the package
// path callSite already carries.
func callerFunc(entry *logrus.Entry) string {
	if entry.HasCaller() {
		return lastSegment(entry.Caller.Function, ".")
	}
	pc, _, _, ok := runtime.Caller(8)
	if !ok {
		return "unknown"
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "unknown"
	}
	return lastSegment(fn.Name(), ".")
}

// currentGoroutineID extracts the numeric id logrus entries can be
// correlated by when several device driver goroutines interleave writes to
// the same sink; there's no exported API for this so it parses the header
// line runtime.Stack(false) always emits ("goroutine 17 [running]:").
func currentGoroutineID() string {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	header := strings.TrimPrefix(string(buf[:n]), "goroutine ")
	fields := strings.Fields(header)
	if len(fields) == 0 {
		return "unknown"
	}
	return fields[0]
}

func formatEntryFields(entry *logrus.Entry) string {
	fields := make([]string, 0, len(entry.Data))
	for key, val := range entry.Data {
		s, ok := val.(string)
		if !ok {
			s = fmt.Sprint(val)
		}
		fields = append(fields, key+"="+s)
	}
	return strings.Join(fields, ",")
}

func baseName(path string) string {
	if i := strings.LastIndex(path, "/"); i != -1 {
		return path[i+1:]
	}
	return path
}

func lastSegment(s, sep string) string {
	if i := strings.LastIndex(s, sep); i != -1 {
		return s[i+1:]
	}
	return s
}

// packageOf pulls the trailing package name out of a fully-qualified
// function name (runtime's Caller.Function looks like
// "firestige.xyz/otus/internal/sipconn.(*Transaction).TriggerInvite").
func packageOf(fullFunc string) string {
	if fullFunc == "" {
		return ""
	}
	last := fullFunc[strings.LastIndex(fullFunc, "/")+1:]
	if dot := strings.Index(last, "."); dot != -1 {
		return last[:dot]
	}
	return last
}
