package cli

import (
	"context"
	"fmt"
	"io"

	flag "github.com/spf13/pflag"
)

// ShowCmd returns the show command.
func ShowCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("show", flag.ContinueOnError),
		Usage: "show <key>",
		Short: "Show an entry and its description",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			k, err := parseKeyArg(args)
			if err != nil {
				return err
			}

			st, err := a.store(ctx)
			if err != nil {
				return err
			}

			f, err := st.OpenProjectFile(k)
			if err != nil {
				return err
			}
			defer f.Close()

			o.Println("project:", k.Project())
			o.Println("start:  ", formatTime(k.Start()))
			o.Println("end:    ", formatTime(k.End()))
			o.Println("time:   ", formatMinutes(k.Minutes()))
			o.Println("file:   ", k.Path())
			o.Println()

			if _, err := io.Copy(o, f); err != nil {
				return fmt.Errorf("read %s: %w", k.Path(), err)
			}

			return nil
		},
	}
}

// RmCmd returns the rm command.
func RmCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("rm", flag.ContinueOnError),
		Usage: "rm <key>...",
		Short: "Delete entries",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return errKeyRequired
			}

			st, err := a.store(ctx)
			if err != nil {
				return err
			}

			for _, arg := range args {
				k, err := parseKeyArg([]string{arg})
				if err != nil {
					return err
				}

				if err := st.Delete(k); err != nil {
					return err
				}

				o.Println("Deleted", k.Path())
			}

			return nil
		},
	}
}

// ReindexCmd returns the reindex command.
func ReindexCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("reindex", flag.ContinueOnError),
		Usage: "reindex",
		Short: "Rebuild the index from the entry files",
		Long: `Drop every index key and rebuild the index by scanning the data directory.
Files whose names are not valid entry names are skipped with a warning in the log.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			st, err := a.store(ctx)
			if err != nil {
				return err
			}

			n, err := st.Reindex(ctx)
			if err != nil {
				return err
			}

			o.Printf("Indexed %d entries\n", n)

			return nil
		},
	}
}
