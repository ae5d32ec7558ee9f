// Package logging configures logrus the same way for every command.
package logging

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
)

// Formatter prints "[LEVEL] message" followed by any fields as key=value.
type Formatter struct{}

func (f *Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", strings.ToUpper(entry.Level.String()), entry.Message)
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

// ParseLevel maps debug, info, warn and error to logrus levels.
func ParseLevel(level string) (logrus.Level, bool) {
	switch level {
	case "debug":
		return logrus.DebugLevel, true
	case "info":
		return logrus.InfoLevel, true
	case "warn":
		return logrus.WarnLevel, true
	case "error":
		return logrus.ErrorLevel, true
	default:
		return logrus.InfoLevel, false
	}
}

// Configure sets the formatter and level on the standard logger, which the
// library packages log through, and on every logger given.
func Configure(level string, loggers ...*logrus.Logger) {
	lvl, ok := ParseLevel(level)
	all := append([]*logrus.Logger{logrus.StandardLogger()}, loggers...)
	for _, l := range all {
		l.SetFormatter(new(Formatter))
		l.SetLevel(lvl)
	}
	if !ok {
		all[len(all)-1].Warn("Unknown log level, defaulting to info")
	}
}
