package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const tsLayout = "2006-01-02T15:04:05.000Z07:00"

var defaultOrder = []string{
	"ts", "level", "component", "event", "status", "rid",
	"update_id", "chat_id", "user_id", "handler",
	"state", "state_from", "state_to", "kind", "action", "country", "side",
	"policy", "endpoint", "job_id", "attempts",
	"http_code", "method", "path", "duration_ms", "err", "err_code",
}

func keyOrder(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "default" {
		return defaultOrder
	}
	var out []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	if len(out) == 0 {
		return defaultOrder
	}
	return out
}

type handlerOptions struct {
	level  slog.Leveler
	out    *sink
	errOut *sink
	json   bool
	order  []string
}

// handler renders flat lines. Groups become dotted key prefixes.
type handler struct {
	opts   *handlerOptions
	fixed  []field
	prefix string
}

type field struct {
	key string
	val any
}

func newHandler(opts handlerOptions) *handler {
	if opts.level == nil {
		opts.level = slog.LevelInfo
	}
	if opts.order == nil {
		opts.order = defaultOrder
	}
	return &handler{opts: &opts}
}

func (h *handler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.opts.level.Level()
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.fixed = append([]field(nil), h.fixed...)
	for _, a := range attrs {
		c.fixed = appendAttr(c.fixed, h.prefix, a)
	}
	return &c
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	fs := make([]field, 0, 8+len(h.fixed)+r.NumAttrs())
	fs = append(fs,
		field{"ts", r.Time.UTC().Format(tsLayout)},
		field{"level", r.Level.String()},
	)
	fs = append(fs, h.fixed...)
	r.Attrs(func(a slog.Attr) bool {
		fs = appendAttr(fs, h.prefix, a)
		return true
	})

	m := MetaFrom(ctx)
	if m.RID != "" {
		fs = append(fs, field{"rid", m.RID})
	}
	if m.UpdateID != 0 {
		fs = append(fs, field{"update_id", int64(m.UpdateID)})
	}
	if m.ChatID != 0 {
		fs = append(fs, field{"chat_id", m.ChatID})
	}
	if m.UserID != 0 {
		fs = append(fs, field{"user_id", m.UserID})
	}
	if m.Handler != "" {
		fs = append(fs, field{"handler", m.Handler})
	}
	event := r.Message
	if event == "" {
		event = "log"
	}
	fs = append(fs, field{"event", event}, field{"component", CompApp})

	line := h.encode(arrange(fs, h.opts.order))
	if r.Level >= slog.LevelError && h.opts.errOut != nil {
		if err := h.opts.errOut.Write(line); err != nil {
			return err
		}
	}
	return h.opts.out.Write(line)
}

func appendAttr(fs []field, prefix string, a slog.Attr) []field {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, g := range v.Group() {
			fs = appendAttr(fs, p, g)
		}
		return fs
	}
	if a.Key == "" {
		return fs
	}
	key, val, ok := plain(prefix+a.Key, v)
	if !ok {
		return fs
	}
	return append(fs, field{key, val})
}

// plain converts a value to a JSON friendly scalar. Durations are written in
// whole milliseconds under a key ending in _ms.
func plain(key string, v slog.Value) (string, any, bool) {
	switch v.Kind() {
	case slog.KindString:
		s := strings.TrimSpace(v.String())
		return key, s, s != ""
	case slog.KindInt64:
		return key, v.Int64(), true
	case slog.KindUint64:
		return key, v.Uint64(), true
	case slog.KindFloat64:
		return key, v.Float64(), true
	case slog.KindBool:
		return key, v.Bool(), true
	case slog.KindDuration:
		return msKey(key), RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := v.Any().(type) {
	case nil:
		return key, nil, false
	case error:
		return key, x.Error(), true
	case time.Duration:
		return msKey(key), RoundMS(x).Milliseconds(), true
	case fmt.Stringer:
		s := x.String()
		return key, s, s != ""
	default:
		return key, fmt.Sprint(x), true
	}
}

func msKey(key string) string {
	if strings.HasSuffix(key, "_ms") {
		return key
	}
	return key + "_ms"
}

// arrange keeps the first value of every key, puts ordered keys first and
// leaves the rest in the order they were added.
func arrange(fs []field, order []string) []field {
	first := make(map[string]int, len(fs))
	uniq := fs[:0:0]
	for _, f := range fs {
		if _, seen := first[f.key]; seen {
			continue
		}
		first[f.key] = len(uniq)
		uniq = append(uniq, f)
	}
	out := make([]field, 0, len(uniq))
	used := make([]bool, len(uniq))
	for _, k := range order {
		if i, ok := first[k]; ok {
			out = append(out, uniq[i])
			used[i] = true
		}
	}
	for i, f := range uniq {
		if !used[i] {
			out = append(out, f)
		}
	}
	return out
}

func (h *handler) encode(fs []field) []byte {
	var b bytes.Buffer
	if h.opts.json {
		b.WriteByte('{')
		for i, f := range fs {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(f.key))
			b.WriteByte(':')
			data, err := json.Marshal(f.val)
			if err != nil {
				data, _ = json.Marshal(fmt.Sprint(f.val))
			}
			b.Write(data)
		}
		b.WriteString("}\n")
		return b.Bytes()
	}
	for i, f := range fs {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(f.key)
		b.WriteByte('=')
		b.WriteString(kvValue(f.val))
	}
	b.WriteByte('\n')
	return b.Bytes()
}

func kvValue(v any) string {
	s, ok := v.(string)
	if !ok {
		return fmt.Sprint(v)
	}
	if !utf8.ValidString(s) || strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '"' || r == '=' }) {
		return strconv.Quote(s)
	}
	return s
}
