package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/calvinalkan/uren/internal/store"

	flag "github.com/spf13/pflag"
)

// EditCmd returns the edit command.
func EditCmd(a *app) *Command {
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	fs.StringP("project", "p", "", "Move the entry to this project")
	fs.StringP("start", "s", "", "New start time")
	fs.StringP("end", "e", "", "New end time")
	fs.DurationP("duration", "D", 0, "New length, counted from the (new) start")
	addContentFlags(fs)
	fs.BoolP("launch", "l", false, "Edit the description in $EDITOR")

	return &Command{
		Flags: fs,
		Usage: "edit <key> [flags]",
		Short: "Change an entry",
		Long: `Change the project, range or description of an entry.

Unset fields keep their current value. The entry is rewritten and re-indexed
in one step; the new key is printed.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execEdit(ctx, o, a, fs, args)
		},
	}
}

func execEdit(ctx context.Context, o *IO, a *app, fs *flag.FlagSet, args []string) error {
	k, err := parseKeyArg(args)
	if err != nil {
		return err
	}

	if fs.NFlag() == 0 {
		o.Warn("nothing to change for "+k.Path(), "pass -p, -s, -e, -D, -m, --stdin or -l")
		return nil
	}

	e := store.Entry{Project: k.Project(), Start: k.Start(), End: k.End()}

	if fs.Changed("project") {
		e.Project, _ = fs.GetString("project")
		e.Project = strings.TrimSpace(e.Project)
	}

	if fs.Changed("start") {
		if e.Start, err = timeFlag(fs, "start"); err != nil {
			return err
		}
	}

	if fs.Changed("end") {
		if e.End, err = timeFlag(fs, "end"); err != nil {
			return err
		}
	}

	if fs.Changed("duration") {
		if fs.Changed("end") {
			return errEndAndDuration
		}

		d, _ := fs.GetDuration("duration")
		e.End = e.Start.Add(d)
	}

	content, replaced, err := readContent(o, fs)
	if err != nil {
		return err
	}

	launch, _ := fs.GetBool("launch")

	var argv []string

	if launch {
		if argv, err = resolveEditor(a.cfg, a.env); err != nil {
			return err
		}
	}

	st, err := a.store(ctx)
	if err != nil {
		return err
	}

	if ok, err := st.Contains(k); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %s", store.ErrKeyNotFound, k)
	}

	if replaced {
		e.Staged, err = st.Stage(strings.NewReader(content))
	} else {
		e.Staged, err = st.StageCopy(k)
	}

	if err != nil {
		return err
	}

	if launch {
		if err := editStaged(ctx, st, argv, e.Staged); err != nil {
			return errors.Join(err, st.Discard(e.Staged))
		}
	}

	pkey, err := saveStaged(st, e, k)
	if err != nil {
		return err
	}

	o.Println(pkey.Token())

	return nil
}

// editStaged opens the staged copy in the editor and checks it still fits.
func editStaged(ctx context.Context, st *store.Store, argv []string, staged string) error {
	if err := runEditor(ctx, argv, filepath.Join(st.DataDir(), staged)); err != nil {
		return err
	}

	info, err := st.Dir().Stat(staged)
	if err != nil {
		return fmt.Errorf("stat edited file: %w", err)
	}

	if info.Size() > store.MaxContent {
		return errContentTooLarge
	}

	return nil
}
