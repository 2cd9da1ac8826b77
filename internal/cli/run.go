// Package cli implements the uren command line: global flag parsing, config
// loading, logging setup and the command table shared by one-shot commands
// and the interactive shell.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/calvinalkan/uren/internal/config"
	"github.com/calvinalkan/uren/internal/store"
	"github.com/calvinalkan/uren/internal/timer"

	flag "github.com/spf13/pflag"
)

// app is the state shared by every command of one invocation. The store is
// opened on first use and held (with its lock) until Run returns.
type app struct {
	cfg    *config.Config
	env    map[string]string
	log    *slog.Logger
	st     *store.Store
	inRepl bool
}

func (a *app) store(ctx context.Context) (*store.Store, error) {
	if a.st != nil {
		return a.st, nil
	}

	st, err := store.Open(ctx, store.Options{
		DataDir: a.cfg.DataDirAbs,
		Backend: a.cfg.BackendKind(),
		Logger:  a.log,
	})
	if err != nil {
		return nil, err
	}

	if st.Created() {
		a.log.Info("index created", "data_dir", a.cfg.DataDirAbs, "entries", st.Rebuilt())
	}

	a.st = st

	return st, nil
}

func (a *app) timer(ctx context.Context) (*timer.Timer, *store.Store, error) {
	st, err := a.store(ctx)
	if err != nil {
		return nil, nil, err
	}

	return timer.New(st.Dir(), nil), st, nil
}

func (a *app) close() error {
	if a.st == nil {
		return nil
	}

	err := a.st.Close()
	a.st = nil

	return err
}

// commands returns a fresh command table. Flag sets hold parsed values, so
// every dispatch gets new ones.
func (a *app) commands() []*Command {
	cmds := []*Command{
		AddCmd(a),
		LsCmd(a),
		SumCmd(a),
		ProjectsCmd(a),
		ShowCmd(a),
		EditCmd(a),
		RmCmd(a),
		TimerCmd(a),
		ReindexCmd(a),
		PrintConfigCmd(a.cfg),
	}

	if !a.inRepl {
		cmds = append(cmds, ShellCmd(a))
	}

	return cmds
}

func (a *app) lookup(name string) *Command {
	for _, cmd := range a.commands() {
		if cmd.Name() == name {
			return cmd
		}
	}

	return nil
}

// Run is the main entry point. Returns exit code.
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	if sigCh != nil {
		go func() {
			select {
			case sig := <-sigCh:
				cancel(fmt.Errorf("received %s", sig))
			case <-ctx.Done():
			}
		}()
	}

	globalFlags := flag.NewFlagSet("uren", flag.ContinueOnError)
	globalFlags.SetInterspersed(false)
	globalFlags.Usage = func() {}
	globalFlags.SetOutput(&strings.Builder{})

	flagHelp := globalFlags.BoolP("help", "h", false, "Show help")
	flagCwd := globalFlags.StringP("cwd", "C", "", "Run as if started in `dir`")
	flagConfig := globalFlags.StringP("config", "c", "", "Use specified config `file`")
	flagDataDir := globalFlags.StringP("data-dir", "d", "", "Override data directory")
	flagBackend := globalFlags.String("backend", "", "Index backend (bolt|pebble|memory)")
	flagVerbose := globalFlags.BoolP("verbose", "v", false, "Log debug output to stderr")

	if len(args) > 0 {
		args = args[1:]
	}

	err := globalFlags.Parse(args)
	if err != nil {
		fprintln(errOut, "error:", err)
		fprintln(errOut)
		printUsage(errOut, nil)

		return 1
	}

	cfg, err := config.Load(config.Input{
		WorkDirOverride: *flagCwd,
		ConfigPath:      *flagConfig,
		DataDirOverride: *flagDataDir,
		BackendOverride: *flagBackend,
		Verbose:         *flagVerbose,
		Env:             env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	a := &app{
		cfg: &cfg,
		env: env,
		log: slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: cfg.Level})),
	}

	defer func() {
		if err := a.close(); err != nil {
			fprintln(errOut, "error: close store:", err)
		}
	}()

	commandAndArgs := globalFlags.Args()

	if *flagHelp || len(commandAndArgs) == 0 {
		printUsage(out, a.commands())
		return 0
	}

	cmd := a.lookup(commandAndArgs[0])
	if cmd == nil {
		fprintln(errOut, "error: unknown command:", commandAndArgs[0])
		printUsage(errOut, a.commands())

		return 1
	}

	code := cmd.Run(ctx, NewIO(in, out, errOut), commandAndArgs[1:])

	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		fprintln(errOut, "interrupted:", cause)
	}

	return code
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer, cmds []*Command) {
	fprintln(w, `uren - file-backed time tracking

Usage: uren [flags] <command> [args]

Flags:
  -C, --cwd <dir>        Run as if started in <dir>
  -c, --config <file>    Use specified config file
  -d, --data-dir <dir>   Override data directory
      --backend <name>   Index backend (bolt|pebble|memory)
  -v, --verbose          Log debug output to stderr
  -h, --help             Show help`)

	if len(cmds) == 0 {
		return
	}

	fprintln(w)
	fprintln(w, "Commands:")

	for _, cmd := range cmds {
		fprintln(w, cmd.HelpLine())
	}

	fprintln(w)
	fprintln(w, "Run 'uren <command> --help' for more information on a command.")
}
