package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

const consoleTimeLayout = "2006-01-02 15:04:05"

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.In(time.Local).Format(consoleTimeLayout)
}

// consoleHandler renders records for humans: a one-line header naming the
// lane, meeting and stage, then indented fields. Info records only repeat a
// field when its value changed since the last record about the same subject.
type consoleHandler struct {
	mu        *sync.Mutex
	out       io.Writer
	level     *slog.LevelVar
	addSource bool
	preset    []slog.Attr
	groups    []string
	seen      map[string]map[string]string
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &consoleHandler{
		mu:        &sync.Mutex{},
		out:       w,
		level:     lvl,
		addSource: addSource,
		seen:      make(map[string]map[string]string),
	}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// consoleLine is one record split into its header parts and its fields.
type consoleLine struct {
	at        time.Time
	level     slog.Level
	message   string
	component string
	lane      string
	meetingID string
	stage     string
	source    *slog.Source
	fields    []kv
	all       []kv
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	if record.Level < h.level.Level() {
		return nil
	}
	line := h.split(record)

	var buf bytes.Buffer
	buf.Grow(256 + len(line.all)*32)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writeHeader(&buf, line)
	if line.level < slog.LevelInfo {
		writeRawFields(&buf, line.all)
	} else {
		h.writeSummaryFields(&buf, line)
	}
	_, err := h.out.Write(buf.Bytes())
	return err
}

// recordSource mirrors slog.Record.Source (Go 1.25+) for older toolchains.
func recordSource(r slog.Record) *slog.Source {
	if r.PC == 0 {
		return nil
	}
	fs := runtime.CallersFrames([]uintptr{r.PC})
	f, _ := fs.Next()
	return &slog.Source{Function: f.Function, File: f.File, Line: f.Line}
}

func (h *consoleHandler) split(record slog.Record) consoleLine {
	line := consoleLine{
		at:      record.Time,
		level:   record.Level,
		message: strings.TrimSpace(record.Message),
		source:  recordSource(record),
	}
	if line.at.IsZero() {
		line.at = time.Now()
	}
	if line.message == "" {
		line.message = "(no message)"
	}

	collected := make([]kv, 0, record.NumAttrs()+len(h.preset))
	flattenAttrs(&collected, h.groups, h.preset)
	record.Attrs(func(attr slog.Attr) bool {
		flattenAttr(&collected, h.groups, attr)
		return true
	})

	line.fields = make([]kv, 0, len(collected))
	for _, item := range collected {
		switch item.key {
		case FieldComponent:
			if line.component == "" {
				line.component = attrString(item.value)
			}
			continue
		case FieldMeetingID:
			if line.meetingID == "" {
				line.meetingID = attrString(item.value)
			}
		case FieldStage:
			if line.stage == "" {
				line.stage = attrString(item.value)
			}
		case FieldLane:
			if line.lane == "" {
				line.lane = attrString(item.value)
			}
		}
		line.fields = append(line.fields, item)
	}
	line.fields = dedupeKVsByKey(line.fields)
	line.all = dedupeKVsByKey(collected)
	return line
}

func (h *consoleHandler) writeHeader(buf *bytes.Buffer, line consoleLine) {
	buf.WriteString(formatTimestamp(line.at))
	buf.WriteByte(' ')
	buf.WriteString(levelLabel(line.level))
	if line.component != "" {
		buf.WriteString(" [" + line.component + "]")
	}
	if subject := FormatSubject(line.lane, line.meetingID, line.stage); subject != "" {
		buf.WriteString(" " + subject)
	}
	buf.WriteString(" - " + line.message)
	if h.addSource && line.source != nil {
		buf.WriteString(" [" + filepath.Base(line.source.File) + ":" + strconv.Itoa(line.source.Line) + "]")
	}
	buf.WriteByte('\n')
}

func (h *consoleHandler) writeSummaryFields(buf *bytes.Buffer, line consoleLine) {
	fields, hidden := selectInfoFields(line.fields, 0, true)
	key := infoSummaryKey(line.component, line.meetingID, line.stage, line.fields)
	fields = h.dropUnchanged(key, fields, line.level)
	for _, field := range fields {
		buf.WriteString("    - " + field.label + ": " + field.value + "\n")
	}
	switch {
	case hidden == 1:
		buf.WriteString("    + 1 more field hidden\n")
	case hidden > 1:
		buf.WriteString("    + " + strconv.Itoa(hidden) + " more fields hidden\n")
	}
}

func writeRawFields(buf *bytes.Buffer, attrs []kv) {
	for _, item := range attrs {
		if item.key == "" {
			continue
		}
		buf.WriteString("    " + item.key + ": " + formatValue(item.value) + "\n")
	}
}

// dropUnchanged removes info fields whose value matches the last one printed
// for key. Warnings and errors always print every field but still refresh
// what was last seen.
func (h *consoleHandler) dropUnchanged(key string, fields []infoField, level slog.Level) []infoField {
	if key == "" || len(fields) == 0 {
		return fields
	}
	last, ok := h.seen[key]
	if !ok {
		last = make(map[string]string)
		h.seen[key] = last
	}
	kept := fields[:0:0]
	for _, field := range fields {
		if level <= slog.LevelInfo {
			if prev, ok := last[field.label]; ok && prev == field.value {
				continue
			}
		}
		last[field.label] = field.value
		kept = append(kept, field)
	}
	return kept
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := h.clone()
	clone.preset = append(clone.preset, attrs...)
	return clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	clone := h.clone()
	clone.groups = append(clone.groups, name)
	return clone
}

// clone shares the writer lock and the seen-field cache with h.
func (h *consoleHandler) clone() *consoleHandler {
	return &consoleHandler{
		mu:        h.mu,
		out:       h.out,
		level:     h.level,
		addSource: h.addSource,
		preset:    append([]slog.Attr(nil), h.preset...),
		groups:    append([]string(nil), h.groups...),
		seen:      h.seen,
	}
}

type kv struct {
	key   string
	value slog.Value
}

// dedupeKVsByKey keeps the first position of each key with its last value.
func dedupeKVsByKey(attrs []kv) []kv {
	if len(attrs) < 2 {
		return attrs
	}
	index := make(map[string]int, len(attrs))
	out := make([]kv, 0, len(attrs))
	for _, item := range attrs {
		if item.key == "" {
			continue
		}
		if pos, ok := index[item.key]; ok {
			out[pos].value = item.value
			continue
		}
		index[item.key] = len(out)
		out = append(out, item)
	}
	return out
}

func flattenAttrs(dst *[]kv, prefix []string, attrs []slog.Attr) {
	for _, attr := range attrs {
		flattenAttr(dst, prefix, attr)
	}
}

// flattenAttr expands groups into dotted keys.
func flattenAttr(dst *[]kv, prefix []string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	value := attr.Value.Resolve()
	if value.Kind() == slog.KindGroup {
		next := prefix
		if attr.Key != "" {
			next = append(append([]string(nil), prefix...), attr.Key)
		}
		flattenAttrs(dst, next, value.Group())
		return
	}
	key := attr.Key
	switch {
	case len(prefix) > 0 && key != "":
		key = strings.Join(prefix, ".") + "." + key
	case len(prefix) > 0:
		key = strings.Join(prefix, ".")
	}
	*dst = append(*dst, kv{key: key, value: value})
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	}
	return "DEBUG"
}
