/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package shell is a line-oriented editor for one workspace. It runs
// interactively on a readline terminal or non-interactively over a script.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"templatecanvas/internal/workspace"
)

// ErrExit is returned by Execute for exit and quit.
var ErrExit = errors.New("exit requested")

// Shell dispatches command lines to the workspace session.
type Shell struct {
	ws  *workspace.Workspace
	out io.Writer
}

func New(ws *workspace.Workspace, out io.Writer) *Shell {
	if out == nil {
		out = os.Stdout
	}
	return &Shell{ws: ws, out: out}
}

// Run reads commands from a readline terminal until exit or EOF. Errors of
// single commands are printed and the loop continues.
func (s *Shell) Run(ctx context.Context, historyFile string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "tcv> ",
		HistoryFile:     historyFile,
		AutoComplete:    completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer func() { _ = rl.Close() }()
	s.out = rl.Stdout()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			_, _ = fmt.Fprintln(s.out, "Use 'exit' or 'quit' to leave.")
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.Execute(ctx, line); err != nil {
			if errors.Is(err, ErrExit) {
				return nil
			}
			_, _ = fmt.Fprintln(s.out, "Error:", err)
		}
	}
}

// RunScript executes r line by line. Blank lines and lines starting with #
// are skipped. The first failing command stops the script.
func (s *Shell) RunScript(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := s.Execute(ctx, line); err != nil {
			if errors.Is(err, ErrExit) {
				return nil
			}
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	return sc.Err()
}

// Execute runs one command line.
func (s *Shell) Execute(ctx context.Context, line string) error {
	args := ParseArgs(strings.TrimSpace(line))
	if len(args) == 0 {
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command: %s", args[0])
	}
	if len(args)-1 < cmd.min {
		return fmt.Errorf("usage: %s", cmd.usage)
	}
	if rawTail[args[0]] {
		return cmd.run(ctx, s, []string{tail(line)})
	}
	return cmd.run(ctx, s, args[1:])
}

// tail returns line without its first word, untouched by quote handling.
func tail(line string) string {
	line = strings.TrimSpace(line)
	i := strings.IndexAny(line, " \t")
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(line[i:])
}

// ParseArgs splits input on spaces; double quotes group words and are removed.
func ParseArgs(input string) []string {
	var args []string
	var cur strings.Builder
	inQuotes, quoted := false, false
	for _, ch := range input {
		switch {
		case ch == '"':
			inQuotes = !inQuotes
			quoted = true
		case (ch == ' ' || ch == '\t') && !inQuotes:
			if cur.Len() > 0 || quoted {
				args = append(args, cur.String())
				cur.Reset()
			}
			quoted = false
		default:
			cur.WriteRune(ch)
		}
	}
	if cur.Len() > 0 || quoted {
		args = append(args, cur.String())
	}
	return args
}

func (s *Shell) printf(format string, a ...any) {
	_, _ = fmt.Fprintf(s.out, format, a...)
}

func (s *Shell) warn(warnings []string) {
	for _, w := range warnings {
		s.printf("warning: %s\n", w)
	}
}

func completer() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(commandOrder))
	for _, name := range commandOrder {
		items = append(items, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(items...)
}
