package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
)

const (
	shellPrompt = "uren> "
	historyName = ".history"
)

// lineReader is the input side of the shell: liner on a terminal, a plain
// scanner for pipes and tests.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(line string)
	Close() error
}

type scanReader struct {
	sc *bufio.Scanner
}

func (r *scanReader) Prompt(string) (string, error) {
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return "", err
		}

		return "", io.EOF
	}

	return r.sc.Text(), nil
}

func (r *scanReader) AppendHistory(string) {}

func (r *scanReader) Close() error { return nil }

type linerReader struct {
	state   *liner.State
	history string
}

func newLinerReader(history string, complete liner.Completer) *linerReader {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	state.SetCompleter(complete)

	if f, err := os.Open(history); err == nil {
		_, _ = state.ReadHistory(f)
		_ = f.Close()
	}

	return &linerReader{state: state, history: history}
}

func (r *linerReader) Prompt(prompt string) (string, error) {
	line, err := r.state.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", io.EOF
	}

	return line, err
}

func (r *linerReader) AppendHistory(line string) { r.state.AppendHistory(line) }

func (r *linerReader) Close() error {
	if f, err := os.Create(r.history); err == nil {
		_, _ = r.state.WriteHistory(f)
		_ = f.Close()
	}

	return r.state.Close()
}

// ShellCmd returns the shell command.
func ShellCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("shell", flag.ContinueOnError),
		Usage: "shell",
		Short: "Run commands interactively",
		Long: `Read commands line by line and run them against one open store.

Lines are split like a POSIX shell, so quote arguments with spaces:
  add -p work -s "2024-03-01 09:00" -D 1h -m "code review"

'help' lists commands, 'exit' or Ctrl-D leaves. On a terminal, tab completes
command names and, after -p, project names. History is kept in the data dir.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			return execShell(ctx, o, a)
		},
	}
}

func execShell(ctx context.Context, o *IO, a *app) error {
	a.inRepl = true
	defer func() { a.inRepl = false }()

	st, err := a.store(ctx)
	if err != nil {
		return err
	}

	var lr lineReader

	interactive := o.in == os.Stdin && liner.TerminalSupported()
	if interactive {
		lr = newLinerReader(filepath.Join(st.DataDir(), historyName), func(line string) []string {
			return a.complete(ctx, line)
		})
	} else {
		in := o.in
		if in == nil {
			in = strings.NewReader("")
		}

		lr = &scanReader{sc: bufio.NewScanner(in)}
	}
	defer lr.Close()

	failed := 0

	for ctx.Err() == nil {
		line, err := lr.Prompt(shellPrompt)
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		lr.AppendHistory(line)

		args, err := shellquote.Split(line)
		if err != nil {
			o.ErrPrintln("error:", err)
			failed++

			continue
		}

		switch args[0] {
		case "exit", "quit":
			return shellResult(failed, interactive)
		case "help":
			printUsage(o, a.commands())
			continue
		}

		cmd := a.lookup(args[0])
		if cmd == nil {
			o.ErrPrintln("error: unknown command:", args[0])
			failed++

			continue
		}

		// Commands in the shell never read stdin; it carries the command lines.
		if code := cmd.Run(ctx, NewIO(nil, o.out, o.errOut), args[1:]); code != 0 {
			failed++
		}
	}

	return shellResult(failed, interactive)
}

// shellResult fails a scripted session in which any command failed.
func shellResult(failed int, interactive bool) error {
	if failed > 0 && !interactive {
		return fmt.Errorf("%d command(s) failed", failed)
	}

	return nil
}

// complete offers command names for the first word and project names after
// -p or --project.
func (a *app) complete(ctx context.Context, line string) []string {
	fields := strings.Fields(line)
	trailing := strings.HasSuffix(line, " ")

	var (
		head, word string
		options    []string
	)

	switch {
	case len(fields) == 0 || (len(fields) == 1 && !trailing):
		if len(fields) == 1 {
			word = fields[0]
		}

		for _, cmd := range a.commands() {
			options = append(options, cmd.Name())
		}

		options = append(options, "help", "exit")
	default:
		prev := fields[len(fields)-1]
		if !trailing {
			word = prev
			prev = ""

			if len(fields) > 1 {
				prev = fields[len(fields)-2]
			}
		}

		if prev != "-p" && prev != "--project" {
			return nil
		}

		st, err := a.store(ctx)
		if err != nil {
			return nil
		}

		options, _ = st.Projects()
	}

	head = strings.TrimSuffix(line, word)

	var out []string

	for _, opt := range options {
		if strings.HasPrefix(opt, word) {
			out = append(out, head+opt)
		}
	}

	sort.Strings(out)

	return out
}
