/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package telemetry sends opt-in, anonymous usage events and crash reports.
// Events describe what the editor did in counts (elements loaded, bindings
// applied, records rendered) and never carry template content, record values
// or resource locators.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	applog "templatecanvas/internal/log"
	"templatecanvas/internal/version"
)

// Environment keys read by FromEnv.
const (
	EnvOptIn     = "TCV_TELEMETRY_OPT_IN"
	EnvEventsURL = "TCV_TELEMETRY_URL"
	EnvCrashURL  = "TCV_CRASH_UPLOAD_URL"
	EnvTimeoutMs = "TCV_TELEMETRY_TIMEOUT_MS"
	EnvDebug     = "TCV_TELEMETRY_DEBUG"
)

const (
	defaultTimeout = 1500 * time.Millisecond
	queueSize      = 64
)

// Config holds runtime configuration for telemetry and crash uploads.
// Everything is off unless OptIn is set, and an empty URL turns the matching
// upload into a no-op.
type Config struct {
	OptIn        bool
	EventsURL    string
	CrashURL     string
	Timeout      time.Duration
	DebugLogging bool
}

// FromEnv reads the TCV_TELEMETRY_* and TCV_CRASH_UPLOAD_URL variables.
func FromEnv() Config {
	cfg := Config{
		OptIn:        parseBool(os.Getenv(EnvOptIn)),
		EventsURL:    strings.TrimSpace(os.Getenv(EnvEventsURL)),
		CrashURL:     strings.TrimSpace(os.Getenv(EnvCrashURL)),
		Timeout:      defaultTimeout,
		DebugLogging: os.Getenv(EnvDebug) != "",
	}
	if ms := strings.TrimSpace(os.Getenv(EnvTimeoutMs)); ms != "" {
		if v, err := time.ParseDuration(ms + "ms"); err == nil && v > 0 {
			cfg.Timeout = v
		}
	}
	return cfg
}

// FromSettings starts from FromEnv and lets the config file opt in and name
// the events endpoint. Environment values win when set.
func FromSettings(optIn bool, eventsURL string) Config {
	cfg := FromEnv()
	if os.Getenv(EnvOptIn) == "" {
		cfg.OptIn = optIn
	}
	if cfg.EventsURL == "" {
		cfg.EventsURL = strings.TrimSpace(eventsURL)
	}
	return cfg
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Event names sent by the editor.
const (
	EventTemplateLoaded  = "template_loaded"
	EventBindingsApplied = "bindings_applied"
	EventRenderFinished  = "render_finished"
)

// event is one queued payload. Props are flattened next to the envelope
// fields when encoded.
type event struct {
	Name    string
	TS      time.Time
	Session string
	Props   map[string]any
}

func (e event) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Props)+6)
	for k, v := range e.Props {
		m[k] = v
	}
	m["name"] = e.Name
	m["ts"] = e.TS.UTC().Format(time.RFC3339Nano)
	m["session"] = e.Session
	m["version"] = version.String()
	m["os"] = runtime.GOOS
	m["arch"] = runtime.GOARCH
	return json.Marshal(m)
}

// Stats counts what a client did with its events.
type Stats struct {
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
}

// Client queues events and posts them from one background goroutine, so an
// editing command never waits on the network. A full queue drops events.
type Client struct {
	cfg     Config
	log     *slog.Logger
	cli     *http.Client
	session string
	q       chan event
	once    sync.Once
	closed  chan struct{}

	sent, failed, dropped atomic.Int64
}

var (
	defaultOnce   sync.Once
	defaultClient *Client
)

// InitDefault installs a client built from FromEnv on first use.
func InitDefault() {
	defaultOnce.Do(func() { NewDefault(FromEnv()) })
}

// NewDefault replaces the package-level client.
func NewDefault(cfg Config) { defaultClient = New(cfg) }

// Default returns the package-level client, initializing it from env on first use.
func Default() *Client { InitDefault(); return defaultClient }

// New constructs a client with its own anonymous session id.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := &Client{
		cfg:     cfg,
		log:     applog.WithComponent("telemetry"),
		cli:     &http.Client{Timeout: cfg.Timeout},
		session: uuid.NewString(),
		q:       make(chan event, queueSize),
		closed:  make(chan struct{}),
	}
	go c.run()
	return c
}

// Enabled reports whether events are both opted in and have somewhere to go.
func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

// Enabled reports the state of the package-level client.
func Enabled() bool { return Default().Enabled() }

// Stats returns the send counters.
func (c *Client) Stats() Stats {
	return Stats{Sent: c.sent.Load(), Failed: c.failed.Load(), Dropped: c.dropped.Load()}
}

// Event queues name with props. Props that could identify content are
// removed first; see allowed.
func (c *Client) Event(name string, props map[string]any) {
	if !c.Enabled() || name == "" {
		return
	}
	ev := event{Name: name, TS: time.Now(), Session: c.session, Props: make(map[string]any, len(props))}
	for k, v := range props {
		if allowed(v) {
			ev.Props[k] = v
		} else if c.cfg.DebugLogging {
			c.log.Debug("telemetry prop dropped", slog.String("event", name), slog.String("prop", k))
		}
	}
	select {
	case c.q <- ev:
	default:
		c.dropped.Add(1)
	}
}

// Event queues on the package-level client.
func Event(name string, props map[string]any) { Default().Event(name, props) }

// TemplateLoaded reports a finished template load.
func (c *Client) TemplateLoaded(elements, warnings int, ok bool) {
	c.Event(EventTemplateLoaded, map[string]any{"elements": elements, "warnings": warnings, "ok": ok})
}

// BindingsApplied reports one data record applied to the canvas.
func (c *Client) BindingsApplied(applied, warnings int) {
	c.Event(EventBindingsApplied, map[string]any{"applied": applied, "warnings": warnings})
}

// RenderFinished reports a batch render.
func (c *Client) RenderFinished(records, failed int, formats []string) {
	c.Event(EventRenderFinished, map[string]any{"records": records, "failed": failed, "formats": formats})
}

// token matches the short enum-like strings an event may carry (formats,
// outcome names). Anything longer or with path or URL characters is dropped.
var token = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,32}$`)

func allowed(v any) bool {
	switch x := v.(type) {
	case bool, int, int32, int64, uint, uint32, uint64, float32, float64:
		return true
	case string:
		return token.MatchString(x)
	case []string:
		for _, s := range x {
			if !token.MatchString(s) {
				return false
			}
		}
		return true
	}
	return false
}

// Flush waits up to half a second for queued events to go out.
func (c *Client) Flush(ctx context.Context) {
	deadline := time.Now().Add(500 * time.Millisecond)
	for len(c.q) > 0 && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(25 * time.Millisecond):
		}
	}
}

// Close stops the background goroutine. Queued events are discarded.
func (c *Client) Close() { c.once.Do(func() { close(c.closed) }) }

func (c *Client) run() {
	for {
		select {
		case <-c.closed:
			return
		case ev := <-c.q:
			c.post(ev)
		}
	}
}

func (c *Client) post(ev event) {
	buf, err := json.Marshal(ev)
	if err != nil {
		c.failed.Add(1)
		return
	}
	if err := c.upload(c.cfg.EventsURL, "application/json", buf); err != nil {
		c.failed.Add(1)
		if c.cfg.DebugLogging {
			c.log.Debug("telemetry send failed", slog.String("event", ev.Name), slog.Any("err", err))
		}
		return
	}
	c.sent.Add(1)
}

func (c *Client) upload(url, contentType string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.cli.Do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// UploadCrash posts a rendered crash report to the crash URL when opted in.
// The upload runs in the background.
func (c *Client) UploadCrash(report []byte) {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return
	}
	body := append([]byte(nil), report...)
	go func() {
		if err := c.upload(c.cfg.CrashURL, "text/plain; charset=utf-8", body); err != nil && c.cfg.DebugLogging {
			c.log.Debug("crash upload failed", slog.Any("err", err))
		}
	}()
}

// UploadCrash uploads through the package-level client.
func UploadCrash(report []byte) { Default().UploadCrash(report) }
