// Package log builds the process logger.
package log

import (
	"io"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	dslog "github.com/grafana/dskit/log"
	"github.com/pkg/errors"
)

// New returns a logfmt logger writing to w that drops lines below lvl.
// lvl is one of debug, info, warn or error.
func New(w io.Writer, lvl string) (log.Logger, error) {
	var l dslog.Level
	if err := l.Set(lvl); err != nil {
		return nil, errors.Wrapf(err, "log level %q", lvl)
	}
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = level.NewFilter(logger, l.Option)
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.Caller(3))
	return logger, nil
}

// NewNop returns a logger that discards everything.
func NewNop() log.Logger {
	return log.NewNopLogger()
}
