// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Options selects verbosity and output format.
type Options struct {
	Verbose bool
	Quiet   bool

	// Format is "text" or "json".
	Format string
}

// Level maps the verbosity switches to a logrus level. Quiet wins over
// verbose.
func (o Options) Level() logrus.Level {
	switch {
	case o.Quiet:
		return logrus.WarnLevel
	case o.Verbose:
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}

// New returns a logger writing to out.
func New(out io.Writer, opts Options) *logrus.Logger {
	logger := logrus.New()
	Configure(logger, out, opts)
	return logger
}

// Configure applies opts to logger.
func Configure(logger *logrus.Logger, out io.Writer, opts Options) {
	logger.SetOutput(out)
	logger.SetLevel(opts.Level())

	if opts.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:          true,
		DisableLevelTruncation: true,
	})
}
