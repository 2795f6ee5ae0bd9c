package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"
	"unicode"
)

const (
	ansiReset   = "\033[0m"
	ansiDim     = "\033[2m"
	ansiRed     = "\033[31m"
	ansiGreen   = "\033[32m"
	ansiYellow  = "\033[33m"
	ansiMagenta = "\033[35m"
	ansiCyan    = "\033[36m"
)

// PrettyOptions configures a PrettyHandler.
type PrettyOptions struct {
	// Level is the minimum level written. Nil means slog.LevelInfo.
	Level slog.Leveler
	// NoColor disables ANSI escapes.
	NoColor bool
}

// PrettyHandler writes one human-readable line per record:
//
//	15:04:05.000 INFO  caption done model=tiny beams=3 elapsed=3.002ms
//
// Durations are rounded to microseconds and floats keep six significant
// digits so scores and probabilities stay short.
type PrettyHandler struct {
	out    *lockedWriter
	level  slog.Leveler
	color  bool
	prefix string // dotted group path, with trailing dot
	pre    []byte // attrs added through WithAttrs, already rendered
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewPrettyHandler returns a handler writing to w.
func NewPrettyHandler(w io.Writer, opts *PrettyOptions) *PrettyHandler {
	h := &PrettyHandler{out: &lockedWriter{w: w}, level: slog.LevelInfo, color: true}
	if opts != nil {
		if opts.Level != nil {
			h.level = opts.Level
		}
		h.color = !opts.NoColor
	}
	return h
}

// colorFor reports whether w should get ANSI colors: only real files, and
// only when NO_COLOR is unset.
func colorFor(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	_, isFile := w.(*os.File)
	return isFile
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, 256)

	if !r.Time.IsZero() {
		buf = h.paint(buf, ansiDim, r.Time.Format("15:04:05.000"))
		buf = append(buf, ' ')
	}
	label, color := levelLabel(r.Level)
	buf = h.paint(buf, color, label)
	buf = append(buf, ' ')
	buf = append(buf, r.Message...)

	buf = append(buf, h.pre...)
	r.Attrs(func(a slog.Attr) bool {
		buf = h.appendAttr(buf, h.prefix, a)
		return true
	})
	buf = append(buf, '\n')

	h.out.mu.Lock()
	defer h.out.mu.Unlock()
	_, err := h.out.w.Write(buf)
	return err
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	c := h.clone()
	for _, a := range attrs {
		c.pre = c.appendAttr(c.pre, c.prefix, a)
	}
	return c
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	c.prefix += name + "."
	return c
}

func (h *PrettyHandler) clone() *PrettyHandler {
	c := *h
	c.pre = append([]byte(nil), h.pre...)
	return &c
}

func (h *PrettyHandler) paint(buf []byte, color, s string) []byte {
	if !h.color || color == "" {
		return append(buf, s...)
	}
	buf = append(buf, color...)
	buf = append(buf, s...)
	return append(buf, ansiReset...)
}

// appendAttr renders " key=value", flattening group values into dotted keys.
func (h *PrettyHandler) appendAttr(buf []byte, prefix string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return buf
	}
	if a.Value.Kind() == slog.KindGroup {
		sub := prefix
		if a.Key != "" {
			sub += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			buf = h.appendAttr(buf, sub, ga)
		}
		return buf
	}

	buf = append(buf, ' ')
	buf = h.paint(buf, ansiCyan, prefix+a.Key)
	buf = append(buf, '=')
	return appendValue(buf, a.Value)
}

func appendValue(buf []byte, v slog.Value) []byte {
	switch v.Kind() {
	case slog.KindString:
		return appendString(buf, v.String())
	case slog.KindInt64:
		return strconv.AppendInt(buf, v.Int64(), 10)
	case slog.KindUint64:
		return strconv.AppendUint(buf, v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.AppendFloat(buf, v.Float64(), 'g', 6, 64)
	case slog.KindBool:
		return strconv.AppendBool(buf, v.Bool())
	case slog.KindDuration:
		return append(buf, v.Duration().Round(time.Microsecond).String()...)
	case slog.KindTime:
		return v.Time().AppendFormat(buf, time.RFC3339)
	default:
		if err, ok := v.Any().(error); ok {
			return appendString(buf, err.Error())
		}
		return appendString(buf, fmt.Sprint(v.Any()))
	}
}

func appendString(buf []byte, s string) []byte {
	if needsQuoting(s) {
		return strconv.AppendQuote(buf, s)
	}
	return append(buf, s...)
}

// needsQuoting reports whether s would be ambiguous unquoted in a
// key=value line.
func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if r == '=' || r == '"' || unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return true
		}
	}
	return false
}

// levelLabel returns a five-column label and its color. Levels between the
// named ones print as e.g. "INFO+2" like slog does.
func levelLabel(l slog.Level) (string, string) {
	switch l {
	case slog.LevelDebug:
		return "DEBUG", ansiMagenta
	case slog.LevelInfo:
		return "INFO ", ansiGreen
	case slog.LevelWarn:
		return "WARN ", ansiYellow
	case slog.LevelError:
		return "ERROR", ansiRed
	}
	switch {
	case l >= slog.LevelError:
		return l.String(), ansiRed
	case l >= slog.LevelWarn:
		return l.String(), ansiYellow
	case l >= slog.LevelInfo:
		return l.String(), ansiGreen
	default:
		return l.String(), ansiMagenta
	}
}
