/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"syncd/pkg/cli"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive session against the coordinator",
	Long:  "Start a line-editing REPL: every nodes/files/conflicts/events subcommand works as a bare line, with history and tab completion, without re-dialing the coordinator address each time.",
	RunE:  runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

// shellCompleter offers the same subcommand tree cobra already knows
// about, so completion never drifts out of sync with the real commands.
func shellCompleter() *readline.PrefixCompleter {
	items := []readline.PrefixCompleterInterface{
		readline.PcItem("exit"),
		readline.PcItem("help"),
	}
	for _, cmd := range rootCmd.Commands() {
		if !cmd.IsAvailableCommand() {
			continue
		}
		children := make([]readline.PrefixCompleterInterface, 0, len(cmd.Commands()))
		for _, sub := range cmd.Commands() {
			children = append(children, readline.PcItem(sub.Name()))
		}
		items = append(items, readline.PcItem(cmd.Name(), children...))
	}
	return readline.NewPrefixCompleter(items...)
}

func historyFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".syncd-ctl_history"
	}
	return filepath.Join(home, ".syncd-ctl_history")
}

func runShell(cmd *cobra.Command, args []string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "syncd-ctl> ",
		HistoryFile:     historyFilePath(),
		AutoComplete:    shellCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("shell: init readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(rl.Stdout(), "syncd-ctl %s, connected to %s (type 'help' or 'exit')\n", ctlVersion, coordAddr)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		if line == "help" {
			line = "--help"
		}

		if err := runShellLine(line); err != nil {
			if cliErr, ok := err.(*cli.CLIError); ok {
				cliErr.Print()
				continue
			}
			fmt.Fprintln(rl.Stderr(), cli.Error(err.Error()))
		}
	}
}

// runShellLine dispatches one REPL line through the same cobra command
// tree the non-interactive binary uses, so shell behavior never diverges
// from `syncd-ctl nodes list` run directly from a shell.
func runShellLine(line string) error {
	fields, err := splitShellLine(line)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}

	rootCmd.SetArgs(fields)
	return rootCmd.Execute()
}

// splitShellLine does shell-style word splitting with support for quoted
// arguments (so `files history "my file.txt"` works), without pulling in a
// full shlex dependency for one job.
func splitShellLine(line string) ([]string, error) {
	var fields []string
	var cur strings.Builder
	var quote rune
	inField := false

	flush := func() {
		if inField {
			fields = append(fields, cur.String())
			cur.Reset()
			inField = false
		}
	}

	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inField = true
		case r == ' ' || r == '\t':
			flush()
		default:
			inField = true
			cur.WriteRune(r)
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("shell: unterminated quote in %q", line)
	}
	flush()
	return fields, nil
}
