// Package logging configures the process-wide logrus logger used for
// diagnostics. User-facing command output is written directly by the
// commands; this logger only carries warnings and debug traces.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// DebugEnv enables debug logging when set to "1".
const DebugEnv = "LANES_DEBUG"

var std = newLogger(os.Stderr)

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.WarnLevel)
	l.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp:       true,
		DisableLevelTruncation: true,
	})
	return l
}

// Setup sets the log level. Debug output is enabled by verbose or by
// LANES_DEBUG=1.
func Setup(verbose bool) {
	if verbose || os.Getenv(DebugEnv) == "1" {
		std.SetLevel(logrus.DebugLevel)
		return
	}
	std.SetLevel(logrus.WarnLevel)
}

// Logger returns the shared logger.
func Logger() *logrus.Logger {
	return std
}

// ForSession returns an entry tagged with the session and project.
func ForSession(projectRoot, sessionID string) *logrus.Entry {
	return std.WithFields(logrus.Fields{
		"project": projectRoot,
		"session": sessionID,
	})
}
