// Package logging builds the go-kit loggers handed to optimizer passes and
// the vectorized runtime.
package logging

import (
	"fmt"
	"io"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// New returns a logfmt logger writing to w that drops records below
// levelName (debug, info, warn or error).
func New(w io.Writer, levelName string) (log.Logger, error) {
	lvl, err := level.Parse(levelName)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", levelName, err)
	}
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
	return level.NewFilter(logger, level.Allow(lvl)), nil
}

// OrNop returns l, or a logger that discards everything when l is nil.
func OrNop(l log.Logger) log.Logger {
	if l == nil {
		return log.NewNopLogger()
	}
	return l
}

// With attaches a component key to l.
func With(l log.Logger, component string) log.Logger {
	return log.With(OrNop(l), "component", component)
}
