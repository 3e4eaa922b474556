/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic in a command-line entry point into a report
// file and a best-effort save of the open session.
package crash

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	applog "templatecanvas/internal/log"
	"templatecanvas/internal/storage"
	"templatecanvas/internal/telemetry"
	"templatecanvas/internal/version"
	"templatecanvas/internal/workspace"
)

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// Target names what to save when a panic is caught. Workspace may be set
// after Recover has been deferred.
type Target struct {
	Workspace *workspace.Workspace
}

// Recover captures a panic, logs an error with stacktrace, writes an error
// report file, and saves the open session: its state into the state store
// and its scene as a template file next to the report.
//
// Usage: defer crash.Recover(&target)
func Recover(t *Target) {
	if r := recover(); r != nil {
		l := applog.WithComponent("crash")
		stack := debug.Stack()
		l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

		ws := t.workspace()
		reportPath, _ := writeReport(ws, r, stack)
		if ws != nil {
			if path, err := autosave(ws, filepath.Dir(reportPath)); err != nil {
				l.Error("autosave after crash failed", slog.Any("err", err))
			} else {
				l.Info("autosave after crash written", slog.String("path", path))
			}
		}

		if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath); err != nil {
			l.Error("failed to write crash message to stderr", slog.Any("err", err))
		}
		if _, err := fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH); err != nil {
			l.Error("failed to write version info to stderr", slog.Any("err", err))
		}
		// Exit with a non-zero code to indicate failure in CLI context.
		exitFn(2)
	}
}

func (t *Target) workspace() *workspace.Workspace {
	if t == nil {
		return nil
	}
	return t.Workspace
}

// reportDir is the backups directory next to the state store, or the temp dir.
func reportDir(ws *workspace.Workspace) string {
	if ws != nil && ws.Store != nil {
		dir := filepath.Join(filepath.Dir(ws.Store.Path()), storage.BackupsDirName)
		if err := os.MkdirAll(dir, 0o755); err == nil {
			return dir
		}
	}
	return os.TempDir()
}

func writeReport(ws *workspace.Workspace, panicVal any, stack []byte) (string, error) {
	stamp := time.Now().Format("20060102-150405")
	path := filepath.Join(reportDir(ws), fmt.Sprintf("crash-%s.log", stamp))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return path, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			applog.WithComponent("crash").Error("failed to close crash report file", slog.Any("err", err), slog.String("path", path))
		}
	}()

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "templatecanvas Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if ws != nil {
		st := ws.Session.State()
		_, _ = fmt.Fprintf(&buf, "Template: %s (%s, %d objects)\n", st.TemplateID, st.Status, len(st.Objects))
		if ws.Store != nil {
			_, _ = fmt.Fprintf(&buf, "StateDB: %s\n", ws.Store.Path())
		}
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	if _, err := f.Write(buf.Bytes()); err != nil {
		return path, err
	}
	_ = f.Sync()

	// optionally upload the crash report (opt-in)
	if ws != nil && ws.Telemetry != nil {
		ws.Telemetry.UploadCrash(buf.Bytes())
	} else {
		telemetry.UploadCrash(buf.Bytes())
	}
	return path, nil
}

// autosave persists the session into the store when one is open and always
// writes the scene as a template file into dir.
func autosave(ws *workspace.Workspace, dir string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if ws.Store != nil {
		if err := ws.Autosave(ctx); err != nil {
			applog.WithComponent("crash").Error("persist session failed", slog.Any("err", err))
		}
	}
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.template.json", time.Now().Format("20060102-150405")))
	if err := storage.SaveTemplateFile(path, ws.Session.CurrentTemplate()); err != nil {
		return "", err
	}
	return path, nil
}
