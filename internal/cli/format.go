package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/calvinalkan/uren/internal/store"

	flag "github.com/spf13/pflag"
)

const displayLayout = "2006-01-02 15:04"

var inputLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

var (
	errKeyRequired     = errors.New("key is required")
	errProjectRequired = errors.New("project is required (-p)")
	errStartRequired   = errors.New("start is required (-s)")
	errEndAndDuration  = errors.New("--end and --duration cannot be used together")
	errContentTooLarge = fmt.Errorf("content is larger than %d bytes", store.MaxContent)
)

// parseTime accepts RFC 3339 or a UTC date with optional minutes.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)

	for _, layout := range inputLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid time %q (want YYYY-MM-DD[ HH:MM] or RFC 3339)", s)
}

// timeFlag reads a time flag. Unset flags yield the zero time.
func timeFlag(fs *flag.FlagSet, name string) (time.Time, error) {
	if !fs.Changed(name) {
		return time.Time{}, nil
	}

	raw, _ := fs.GetString(name)

	t, err := parseTime(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", name, err)
	}

	return t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(displayLayout)
}

// formatMinutes renders minutes as H:MM.
func formatMinutes(m int64) string {
	return fmt.Sprintf("%d:%02d", m/60, m%60)
}

// formatEntry renders one ls line: key token, range, duration and project.
func formatEntry(k store.Key) string {
	return fmt.Sprintf("%s  %s  %s  %6s  %s",
		k.Token(), formatTime(k.Start()), formatTime(k.End()), formatMinutes(k.Minutes()), k.Project())
}

// parseKeyArg decodes a key token given on the command line.
func parseKeyArg(args []string) (store.Key, error) {
	if len(args) == 0 {
		return store.Key{}, errKeyRequired
	}

	k, err := store.ParseToken(args[0])
	if err != nil {
		return store.Key{}, fmt.Errorf("invalid key %q: %w", args[0], err)
	}

	return k, nil
}

// readContent returns the -m text, or stdin when --stdin is set.
func readContent(o *IO, fs *flag.FlagSet) (string, bool, error) {
	fromStdin, _ := fs.GetBool("stdin")
	msg, _ := fs.GetString("message")

	switch {
	case fromStdin && fs.Changed("message"):
		return "", false, errors.New("--stdin and -m cannot be used together")
	case fromStdin:
		if o.in == nil {
			return "", false, errors.New("--stdin: no input")
		}

		data, err := io.ReadAll(io.LimitReader(o.in, store.MaxContent+1))
		if err != nil {
			return "", false, fmt.Errorf("read stdin: %w", err)
		}

		if len(data) > store.MaxContent {
			return "", false, errContentTooLarge
		}

		return string(data), true, nil
	case fs.Changed("message"):
		if len(msg) > store.MaxContent {
			return "", false, errContentTooLarge
		}

		return ensureNewline(msg), true, nil
	default:
		return "", false, nil
	}
}

func ensureNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}

	return s + "\n"
}

func addContentFlags(fs *flag.FlagSet) {
	fs.StringP("message", "m", "", "Entry description")
	fs.Bool("stdin", false, "Read the description from stdin")
}
