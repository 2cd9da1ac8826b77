package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/calvinalkan/uren/internal/store"

	flag "github.com/spf13/pflag"
)

// LsCmd returns the ls command.
func LsCmd(a *app) *Command {
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	fs.StringP("project", "p", "", "Only entries of this project")
	fs.String("from", "", "Only entries starting at or after this time")
	fs.String("to", "", "Only entries starting before this time")
	fs.BoolP("reverse", "r", false, "Newest first")
	fs.IntP("limit", "n", 0, "Maximum entries to show (default: page_size from config)")
	fs.Int("offset", 0, "Skip first N entries")
	fs.String("after", "", "Continue after this key (from a previous 'next:' line)")
	fs.Bool("all", false, "Show every entry, ignoring --limit")

	return &Command{
		Flags: fs,
		Usage: "ls [flags]",
		Short: "List time entries",
		Long: `List time entries ordered by start time, or by project then start time
when -p is given. Output is paged; when more entries follow, the last line is
"next: <key>" and 'uren ls --after <key>' with the same filters continues.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			return execLs(ctx, o, a, fs)
		},
	}
}

// rangeQuery builds the query shared by ls and sum from -p, --from and --to.
func rangeQuery(fs *flag.FlagSet) (store.Query, error) {
	project, _ := fs.GetString("project")

	from, err := timeFlag(fs, "from")
	if err != nil {
		return store.Query{}, err
	}

	to, err := timeFlag(fs, "to")
	if err != nil {
		return store.Query{}, err
	}

	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return store.Query{}, fmt.Errorf("--from %s is not before --to %s", formatTime(from), formatTime(to))
	}

	return store.Query{
		Project:    project,
		MinStart:   from,
		MaxStart:   to,
		IncludeMin: true,
	}, nil
}

func execLs(ctx context.Context, o *IO, a *app, fs *flag.FlagSet) error {
	q, err := rangeQuery(fs)
	if err != nil {
		return err
	}

	q.Reverse, _ = fs.GetBool("reverse")

	limit, _ := fs.GetInt("limit")
	if limit < 0 {
		return errors.New("--limit must be non-negative")
	}

	if !fs.Changed("limit") {
		limit = a.cfg.PageSize
	}

	if all, _ := fs.GetBool("all"); all {
		limit = 0
	}

	q.Skip, _ = fs.GetInt("offset")
	if q.Skip < 0 {
		return errors.New("--offset must be non-negative")
	}

	if fs.Changed("after") {
		raw, _ := fs.GetString("after")

		after, err := store.ParseToken(raw)
		if err != nil {
			return fmt.Errorf("--after: %w", err)
		}

		q.After = after.ProjectKey()
		if q.Index() == store.KindDate {
			q.After = after.ProjectKey().Sibling()
		}

		if q.Reverse {
			q.IncludeMax = false
		} else {
			q.IncludeMin = false
		}
	}

	st, err := a.store(ctx)
	if err != nil {
		return err
	}

	// One extra key tells whether another page follows.
	if limit > 0 {
		q.Limit = limit + 1
	}

	keys, _, err := st.Keys(q)
	if err != nil {
		return err
	}

	more := limit > 0 && len(keys) > limit
	if more {
		keys = keys[:limit]
	}

	for _, k := range keys {
		o.Println(formatEntry(k))
	}

	if more {
		o.Println("next:", keys[len(keys)-1].Token())
	}

	return nil
}

// SumCmd returns the sum command.
func SumCmd(a *app) *Command {
	fs := flag.NewFlagSet("sum", flag.ContinueOnError)
	fs.StringP("project", "p", "", "Only entries of this project")
	fs.String("from", "", "Only entries starting at or after this time")
	fs.String("to", "", "Only entries starting before this time")

	return &Command{
		Flags: fs,
		Usage: "sum [flags]",
		Short: "Count entries and total their time",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			q, err := rangeQuery(fs)
			if err != nil {
				return err
			}

			st, err := a.store(ctx)
			if err != nil {
				return err
			}

			totals, err := st.CountAndSum(q)
			if err != nil {
				return err
			}

			o.Println("entries:", totals.Count)
			o.Println("total:", formatMinutes(totals.Minutes))

			return nil
		},
	}
}

// ProjectsCmd returns the projects command.
func ProjectsCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("projects", flag.ContinueOnError),
		Usage: "projects",
		Short: "List projects with entries",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			st, err := a.store(ctx)
			if err != nil {
				return err
			}

			projects, err := st.Projects()
			if err != nil {
				return err
			}

			for _, p := range projects {
				o.Println(p)
			}

			return nil
		},
	}
}
