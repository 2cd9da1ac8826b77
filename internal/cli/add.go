package cli

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/calvinalkan/uren/internal/store"

	flag "github.com/spf13/pflag"
)

// AddCmd returns the add command.
func AddCmd(a *app) *Command {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	fs.StringP("project", "p", "", "Project name (required)")
	fs.StringP("start", "s", "", "Start time (required)")
	fs.StringP("end", "e", "", "End time (default: now)")
	fs.DurationP("duration", "D", 0, "Length of the entry instead of --end (e.g. 1h30m)")
	addContentFlags(fs)

	return &Command{
		Flags: fs,
		Usage: "add -p <project> -s <start> [flags]",
		Short: "Record a time entry",
		Long: `Record a time entry for a project.

Times are UTC and accept YYYY-MM-DD, YYYY-MM-DD HH:MM or RFC 3339.
Seconds are dropped. Prints the key of the new entry.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			return execAdd(ctx, o, a, fs)
		},
	}
}

func execAdd(ctx context.Context, o *IO, a *app, fs *flag.FlagSet) error {
	project, _ := fs.GetString("project")
	if strings.TrimSpace(project) == "" {
		return errProjectRequired
	}

	if !fs.Changed("start") {
		return errStartRequired
	}

	start, err := timeFlag(fs, "start")
	if err != nil {
		return err
	}

	end, err := timeFlag(fs, "end")
	if err != nil {
		return err
	}

	if d, _ := fs.GetDuration("duration"); fs.Changed("duration") {
		if fs.Changed("end") {
			return errEndAndDuration
		}

		end = start.Add(d)
	} else if end.IsZero() {
		end = time.Now().UTC()
	}

	content, _, err := readContent(o, fs)
	if err != nil {
		return err
	}

	st, err := a.store(ctx)
	if err != nil {
		return err
	}

	pkey, err := saveEntry(st, store.Entry{Project: project, Start: start, End: end}, content, store.Key{})
	if err != nil {
		return err
	}

	o.Println(pkey.Token())

	return nil
}

// saveEntry stages content and saves e, discarding the staged file if the
// save is rejected.
func saveEntry(st *store.Store, e store.Entry, content string, replacing store.Key) (store.Key, error) {
	staged, err := st.Stage(strings.NewReader(content))
	if err != nil {
		return store.Key{}, err
	}

	e.Staged = staged

	return saveStaged(st, e, replacing)
}

func saveStaged(st *store.Store, e store.Entry, replacing store.Key) (store.Key, error) {
	pkey, _, err := st.Save(e, replacing)
	if err != nil {
		if discardErr := st.Discard(e.Staged); discardErr != nil {
			return store.Key{}, errors.Join(err, discardErr)
		}

		return store.Key{}, err
	}

	return pkey, nil
}
