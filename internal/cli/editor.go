package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/calvinalkan/uren/internal/config"

	"github.com/kballard/go-shellquote"
)

var errNoEditor = errors.New("no editor found (set editor in config or $EDITOR)")

// resolveEditor picks the editor to launch.
// Priority: config editor -> $VISUAL -> $EDITOR -> vi -> nano.
// Values may carry arguments ("code --wait").
func resolveEditor(cfg *config.Config, env map[string]string) ([]string, error) {
	for _, candidate := range []string{cfg.Editor, env["VISUAL"], env["EDITOR"], "vi", "nano"} {
		if candidate == "" {
			continue
		}

		argv, err := shellquote.Split(candidate)
		if err != nil || len(argv) == 0 {
			continue
		}

		if _, err := exec.LookPath(argv[0]); err == nil {
			return argv, nil
		}
	}

	return nil, errNoEditor
}

func runEditor(ctx context.Context, argv []string, path string) error {
	args := append(argv[1:len(argv):len(argv)], path)

	// zed returns immediately unless told to wait.
	if filepath.Base(argv[0]) == "zed" {
		args = append([]string{"--wait"}, args...)
	}

	cmd := exec.CommandContext(ctx, argv[0], args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("editor exited with code %d", exitErr.ExitCode())
		}

		return fmt.Errorf("run editor: %w", err)
	}

	return nil
}
