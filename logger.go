package tuntcp

import (
	"context"
	"log/slog"

	"tuntcp/internal"
	"tuntcp/tcp"
)

// logger mirrors package tcp's embedded logging helper: a thin wrapper so
// call sites never need to nil-check a possibly-absent *slog.Logger.
type logger struct {
	log *slog.Logger
}

func (l logger) debug(msg string, attrs ...slog.Attr) {
	if l.log != nil {
		l.log.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
	}
}

func (l logger) error(msg string, attrs ...slog.Attr) {
	if l.log != nil {
		l.log.LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
	}
}

// quad logs msg with both the human-readable Quad string and its raw
// numeric address/port attrs, for log aggregation that filters on fields
// rather than substrings.
func (l logger) quad(lvl slog.Level, msg string, q tcp.Quad) {
	if l.log == nil {
		return
	}
	l.log.LogAttrs(context.Background(), lvl, msg,
		slog.String("quad", q.String()),
		internal.SlogAddr4("local_addr", &q.LocalAddr),
		slog.Uint64("local_port", uint64(q.LocalPort)),
		internal.SlogAddr4("remote_addr", &q.RemoteAddr),
		slog.Uint64("remote_port", uint64(q.RemotePort)),
	)
}
