/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package log provides centralized slog-based logging for templatecanvas.
// It wraps slog with a small configuration surface, a console handler meant
// for humans, an optional rotating JSON file, per-component level overrides
// and an enricher that copies the session and template identifiers carried
// by a context onto every record.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"templatecanvas/internal/version"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Environment keys read by FromEnv.
const (
	EnvLevel      = "TCV_LOG_LEVEL"
	EnvFormat     = "TCV_LOG_FORMAT"
	EnvSource     = "TCV_LOG_SOURCE"
	EnvFile       = "TCV_LOG_FILE"
	EnvComponents = "TCV_LOG_COMPONENTS"
)

// Options controls logger initialization. FromEnv fills it from the
// TCV_LOG_* variables. Defaults: INFO level, console format, no source.
//
// Components raises or lowers the level of single components, so
// "session=debug,binding=warn" traces the controller while keeping the
// per-object binding warnings quiet.
type Options struct {
	Level      string
	Format     string // "console" or "json"
	AddSource  bool
	File       string // optional path for file logging (rotated)
	Components map[string]string

	// Console overrides stderr; tests point it at a buffer.
	Console io.Writer
}

// root is the state Init installs. Component loggers are cut from it.
type root struct {
	handler slog.Handler // ungated, carries app/ver
	level   slog.Level
	byComp  map[string]slog.Level
	logger  *slog.Logger
}

var (
	rootMu sync.RWMutex
	cur    *root
)

// L returns the default application logger, initializing from env if needed.
func L() *slog.Logger { return current().logger }

func current() *root {
	rootMu.RLock()
	r := cur
	rootMu.RUnlock()
	if r != nil {
		return r
	}
	Init(FromEnv())
	rootMu.RLock()
	defer rootMu.RUnlock()
	return cur
}

// Init configures the global logger and sets slog.Default as well.
func Init(opts Options) {
	lvl := parseLevel(opts.Level)
	byComp := make(map[string]slog.Level, len(opts.Components))
	floor := lvl
	for name, v := range opts.Components {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		l := parseLevel(v)
		byComp[name] = l
		floor = min(floor, l)
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	// Sinks accept everything down to the lowest configured level; the gates
	// below decide per logger.
	var sinks []slog.Handler
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		sinks = append(sinks, slog.NewJSONHandler(console, &slog.HandlerOptions{Level: floor, AddSource: opts.AddSource}))
	} else {
		sinks = append(sinks, &prettyTextHandler{opts: prettyOpts{Level: floor, AddSource: opts.AddSource}, w: console, mu: &sync.Mutex{}})
	}
	if strings.TrimSpace(opts.File) != "" {
		w := &lj.Logger{Filename: opts.File, MaxSize: 10, MaxBackups: 3, MaxAge: 28, Compress: true}
		sinks = append(sinks, slog.NewJSONHandler(w, &slog.HandlerOptions{Level: floor, AddSource: opts.AddSource}))
	}
	var h slog.Handler = sinks[0]
	if len(sinks) > 1 {
		h = multiHandler(sinks...)
	}
	h = withEnricher(h).WithAttrs([]slog.Attr{
		slog.String("app", "templatecanvas"),
		slog.String("ver", version.Version),
	})

	r := &root{handler: h, level: lvl, byComp: byComp}
	r.logger = slog.New(&gate{next: h, level: lvl})

	rootMu.Lock()
	cur = r
	rootMu.Unlock()
	slog.SetDefault(r.logger)
}

// FromEnv builds Options from environment variables.
func FromEnv() Options {
	return Options{
		Level:      getenv(EnvLevel, "info"),
		Format:     getenv(EnvFormat, "console"),
		AddSource:  strings.EqualFold(getenv(EnvSource, "false"), "true"),
		File:       os.Getenv(EnvFile),
		Components: ParseComponents(os.Getenv(EnvComponents)),
	}
}

// ParseComponents reads "name=level" pairs separated by commas. Malformed
// pairs are skipped.
func ParseComponents(s string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(s, ",") {
		name, lvl, ok := strings.Cut(pair, "=")
		name, lvl = strings.TrimSpace(name), strings.TrimSpace(lvl)
		if !ok || name == "" || lvl == "" {
			continue
		}
		out[strings.ToLower(name)] = strings.ToLower(lvl)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// WithComponent returns a logger for one package, gated at the component's
// own level when Options.Components names it.
func WithComponent(name string) *slog.Logger {
	r := current()
	lvl, ok := r.byComp[strings.ToLower(name)]
	if !ok {
		lvl = r.level
	}
	return slog.New(&gate{next: r.handler, level: lvl}).With(slog.String("component", name))
}

// WithOperation annotates the logger with an operation name.
func WithOperation(l *slog.Logger, op string) *slog.Logger { return l.With(slog.String("op", op)) }

// Warnings logs each non-fatal warning at WARN. Resource and binding
// resolution failures travel as values and end up here.
func Warnings(ctx context.Context, l *slog.Logger, warnings []string) {
	for _, w := range warnings {
		l.WarnContext(ctx, w)
	}
}

type ctxKey int

const (
	sessionKey ctxKey = iota
	templateKey
)

// WithSession stores a session identifier in ctx; the enricher emits it as "session".
func WithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey, id)
}

// WithTemplate stores the active template id in ctx; emitted as "template".
func WithTemplate(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, templateKey, id)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// gate drops records below level before they reach the shared sinks.
type gate struct {
	next  slog.Handler
	level slog.Level
}

func (g *gate) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= g.level && g.next.Enabled(ctx, l)
}

func (g *gate) Handle(ctx context.Context, r slog.Record) error { return g.next.Handle(ctx, r) }

func (g *gate) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &gate{next: g.next.WithAttrs(attrs), level: g.level}
}

func (g *gate) WithGroup(name string) slog.Handler {
	return &gate{next: g.next.WithGroup(name), level: g.level}
}

// multiHandler fans out log records to multiple handlers.
func multiHandler(handlers ...slog.Handler) slog.Handler { return &multi{hs: handlers} }

type multi struct{ hs []slog.Handler }

func (m *multi) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.hs {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multi) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range m.hs {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *multi) WithAttrs(attrs []slog.Attr) slog.Handler {
	res := make([]slog.Handler, len(m.hs))
	for i, h := range m.hs {
		res[i] = h.WithAttrs(attrs)
	}
	return &multi{hs: res}
}

func (m *multi) WithGroup(name string) slog.Handler {
	res := make([]slog.Handler, len(m.hs))
	for i, h := range m.hs {
		res[i] = h.WithGroup(name)
	}
	return &multi{hs: res}
}

func withEnricher(h slog.Handler) slog.Handler { return &enrich{next: h} }

// enrich copies context-carried identifiers onto the record.
type enrich struct{ next slog.Handler }

func (e *enrich) Enabled(ctx context.Context, level slog.Level) bool {
	return e.next.Enabled(ctx, level)
}

func (e *enrich) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		if v, ok := ctx.Value(sessionKey).(string); ok && v != "" {
			r.AddAttrs(slog.String("session", v))
		}
		if v, ok := ctx.Value(templateKey).(string); ok && v != "" {
			r.AddAttrs(slog.String("template", v))
		}
	}
	return e.next.Handle(ctx, r)
}

func (e *enrich) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &enrich{next: e.next.WithAttrs(attrs)}
}
func (e *enrich) WithGroup(name string) slog.Handler { return &enrich{next: e.next.WithGroup(name)} }

// prettyTextHandler prints one line per record:
//
//	ts LVL [component] msg key=val...
//
// The app and ver attributes are left to the JSON sinks.
type prettyTextHandler struct {
	opts      prettyOpts
	w         io.Writer
	mu        *sync.Mutex
	component string
	attrs     []slog.Attr
	groups    []string
}

type prettyOpts struct {
	Level     slog.Leveler
	AddSource bool
}

func (h *prettyTextHandler) Enabled(_ context.Context, level slog.Level) bool {
	if h.opts.Level == nil {
		return level >= slog.LevelInfo
	}
	return level >= h.opts.Level.Level()
}

func (h *prettyTextHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString(ts.Format(time.TimeOnly))
	b.WriteByte(' ')
	b.WriteString(levelString(r.Level))
	if h.component != "" {
		b.WriteString(" [")
		b.WriteString(h.component)
		b.WriteByte(']')
	}
	if r.Message != "" {
		b.WriteByte(' ')
		b.WriteString(r.Message)
	}
	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	for _, a := range h.attrs {
		writeAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, prefix, a)
		return true
	})
	if h.opts.AddSource {
		if src := r.Source(); src != nil && src.File != "" {
			b.WriteString(" src=")
			b.WriteString(src.File)
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(src.Line))
		}
	}
	b.WriteByte('\n')
	if h.mu != nil {
		h.mu.Lock()
		defer h.mu.Unlock()
	}
	_, err := io.WriteString(h.w, b.String())
	return err
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(attrValueString(a.Value))
}

func (h *prettyTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	n := *h
	n.attrs = append([]slog.Attr(nil), h.attrs...)
	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	for _, a := range attrs {
		switch {
		case prefix == "" && a.Key == "component":
			n.component = a.Value.String()
		case prefix == "" && (a.Key == "app" || a.Key == "ver"):
		default:
			a.Key = prefix + a.Key
			n.attrs = append(n.attrs, a)
		}
	}
	return &n
}

func (h *prettyTextHandler) WithGroup(name string) slog.Handler {
	n := *h
	n.attrs = append([]slog.Attr(nil), h.attrs...)
	n.groups = append(append([]string(nil), h.groups...), name)
	return &n
}

func levelString(l slog.Level) string {
	switch l {
	case slog.LevelDebug:
		return "DBG"
	case slog.LevelInfo:
		return "INF"
	case slog.LevelWarn:
		return "WRN"
	case slog.LevelError:
		return "ERR"
	default:
		return l.String()
	}
}

func attrValueString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if strings.ContainsAny(s, " \t\"=") {
			return strconv.Quote(s)
		}
		return s
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindDuration:
		return v.Duration().String()
	default:
		return v.String()
	}
}
