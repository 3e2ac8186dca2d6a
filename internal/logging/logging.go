// Package logging sets up the process-wide slog handler: tint's colorized
// handler on a TTY, plain JSON otherwise, matching cmd/server and cmd/client
// in the teacher repo.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Setup builds and installs the default slog logger, writing to w (typically
// os.Stdout). level controls the minimum log level for both handler kinds.
func Setup(w io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(newHandler(w, level))
	slog.SetDefault(logger)
	return logger
}

func newHandler(w io.Writer, level slog.Level) slog.Handler {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.DateTime,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key != "msg" && a.Value.Kind() == slog.KindString {
					a.Value = slog.StringValue("'" + a.Value.String() + "'")
				}
				return a
			},
		})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}
