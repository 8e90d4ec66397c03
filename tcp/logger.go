package tcp

import (
	"context"
	"log/slog"
)

// levelTrace sits one notch below slog's Debug level, for the very
// high-volume per-segment tracing that would otherwise drown out ordinary
// debug logging.
const levelTrace = slog.LevelDebug - 2

// logger is embedded in Conn to give it terse, consistently-named logging
// helpers without requiring every call site to nil-check the logger.
type logger struct {
	log *slog.Logger
}

func (l logger) enabled(lvl slog.Level) bool {
	return l.log != nil && l.log.Handler().Enabled(context.Background(), lvl)
}

func (l logger) logAttrs(lvl slog.Level, msg string, attrs ...slog.Attr) {
	if l.log != nil {
		l.log.LogAttrs(context.Background(), lvl, msg, attrs...)
	}
}

func (l logger) debug(msg string, attrs ...slog.Attr) { l.logAttrs(slog.LevelDebug, msg, attrs...) }
func (l logger) trace(msg string, attrs ...slog.Attr) { l.logAttrs(levelTrace, msg, attrs...) }
func (l logger) error(msg string, attrs ...slog.Attr) { l.logAttrs(slog.LevelError, msg, attrs...) }

func (l logger) traceSeg(msg string, seg Segment) {
	if !l.enabled(levelTrace) {
		return
	}
	l.trace(msg,
		slog.Uint64("seg.seq", uint64(seg.SEQ)),
		slog.Uint64("seg.ack", uint64(seg.ACK)),
		slog.Uint64("seg.wnd", uint64(seg.WND)),
		slog.String("seg.flags", seg.Flags.String()),
		slog.Uint64("seg.datalen", uint64(seg.DATALEN)),
	)
}
