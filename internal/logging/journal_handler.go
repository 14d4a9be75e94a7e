package logging

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// SyslogIdentifier tags every journal entry, for journalctl -t.
const SyslogIdentifier = "gst-variable-rtsp-server"

// JournalHandler writes records to journald as structured entries. Each
// attribute becomes a field: upper case, groups joined with "_".
type JournalHandler struct {
	level  slog.Leveler
	fields map[string]string
	prefix string
	send   func(msg string, priority journal.Priority, vars map[string]string) error
}

// NewJournalHandler returns a handler for records at or above level.
func NewJournalHandler(level slog.Leveler) *JournalHandler {
	return &JournalHandler{level: level, send: journal.Send}
}

// JournalAvailable reports whether the journald socket is reachable.
func JournalAvailable() bool {
	return journal.Enabled()
}

func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *JournalHandler) Handle(_ context.Context, rec slog.Record) error {
	vars := make(map[string]string, len(h.fields)+rec.NumAttrs()+1)
	for k, v := range h.fields {
		vars[k] = v
	}
	vars["SYSLOG_IDENTIFIER"] = SyslogIdentifier
	rec.Attrs(func(a slog.Attr) bool {
		putField(vars, h.prefix, a)
		return true
	})
	return h.send(rec.Message, priority(rec.Level), vars)
}

func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := make(map[string]string, len(h.fields)+len(attrs))
	for k, v := range h.fields {
		fields[k] = v
	}
	for _, a := range attrs {
		putField(fields, h.prefix, a)
	}
	return &JournalHandler{level: h.level, fields: fields, prefix: h.prefix, send: h.send}
}

func (h *JournalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &JournalHandler{level: h.level, fields: h.fields, prefix: h.prefix + fieldName(name) + "_", send: h.send}
}

func priority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	}
	return journal.PriDebug
}

func putField(vars map[string]string, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += fieldName(a.Key) + "_"
		}
		for _, member := range a.Value.Group() {
			putField(vars, prefix, member)
		}
		return
	}

	var s string
	switch a.Value.Kind() {
	case slog.KindFloat64:
		s = strconv.FormatFloat(a.Value.Float64(), 'g', -1, 64)
	case slog.KindTime:
		s = a.Value.Time().Format(time.RFC3339Nano)
	default:
		s = a.Value.String()
	}
	vars[prefix+fieldName(a.Key)] = s
}

// fieldName maps an attribute key onto journald's field alphabet: upper
// case letters, digits and underscores, never starting with "_".
func fieldName(key string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, key)
	return strings.TrimLeft(name, "_")
}
