package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/calvinalkan/uren/internal/store"
	"github.com/calvinalkan/uren/internal/timer"

	flag "github.com/spf13/pflag"
)

var errTimerAction = errors.New("timer action required: start, stop, status or cancel")

// TimerCmd returns the timer command.
func TimerCmd(a *app) *Command {
	fs := flag.NewFlagSet("timer", flag.ContinueOnError)
	fs.StringP("project", "p", "", "Project to book the stopped timer to (stop)")
	addContentFlags(fs)

	return &Command{
		Flags: fs,
		Usage: "timer <start|stop|status|cancel> [flags]",
		Short: "Run a stopwatch and book it as an entry",
		Long: `Start a stopwatch, check on it, and turn it into an entry.

  timer start                  Start the timer
  timer status                 Show when it started and how long it runs
  timer stop -p <project>      Save [start, now] as an entry and stop
  timer cancel                 Stop without saving

A timer shorter than one minute cannot be saved; it keeps running.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return errTimerAction
			}

			t, st, err := a.timer(ctx)
			if err != nil {
				return err
			}

			switch args[0] {
			case "start":
				started, err := t.Start()
				if err != nil {
					return err
				}

				o.Println("Started at", formatTime(started))

				return nil
			case "status":
				return execTimerStatus(o, t)
			case "stop":
				return execTimerStop(o, fs, t, st)
			case "cancel":
				started, err := t.Stop()
				if err != nil {
					return err
				}

				o.Println("Cancelled timer started at", formatTime(started))

				return nil
			default:
				return fmt.Errorf("%w (got %q)", errTimerAction, args[0])
			}
		},
	}
}

func execTimerStatus(o *IO, t *timer.Timer) error {
	started, ok, err := t.Started()
	if err != nil {
		return err
	}

	if !ok {
		o.Println("not running")
		return nil
	}

	elapsed, _, err := t.Elapsed()
	if err != nil {
		return err
	}

	o.Printf("running since %s (%s)\n", formatTime(started), formatMinutes(int64(elapsed/time.Minute)))

	return nil
}

// execTimerStop saves the entry before removing the marker, so a rejected
// entry leaves the timer running.
func execTimerStop(o *IO, fs *flag.FlagSet, t *timer.Timer, st *store.Store) error {
	project, _ := fs.GetString("project")
	if strings.TrimSpace(project) == "" {
		return errProjectRequired
	}

	content, _, err := readContent(o, fs)
	if err != nil {
		return err
	}

	started, ok, err := t.Started()
	if err != nil {
		return err
	}

	if !ok {
		return timer.ErrNotRunning
	}

	pkey, err := saveEntry(st, store.Entry{Project: project, Start: started, End: time.Now().UTC()}, content, store.Key{})
	if err != nil {
		return err
	}

	if _, err := t.Stop(); err != nil {
		return fmt.Errorf("entry %s saved: %w", pkey.Token(), err)
	}

	o.Println(pkey.Token())

	return nil
}
