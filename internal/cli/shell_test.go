package cli_test

import (
	"strings"
	"testing"

	"github.com/calvinalkan/uren/internal/cli"
)

func Test_Shell_Runs_Each_Line_When_Input_Is_Piped(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	script := strings.Join([]string{
		`# comment lines and blanks are skipped`,
		``,
		`add -p alpha -s "2024-03-01 09:00" -D 1h -m "pair programming"`,
		`add -p beta -s 2024-03-01T10:00:00Z -D 30m`,
		`sum`,
		`projects`,
		`exit`,
		`add -p never -s 2024-03-01 -D 1h`,
	}, "\n")

	stdout, stderr, code := c.RunWithInput(script, "shell")
	if code != 0 {
		t.Fatalf("shell exit=%d\nstderr: %s", code, stderr)
	}

	cli.AssertContains(t, stdout, "entries: 2")
	cli.AssertContains(t, stdout, "total: 1:30")
	cli.AssertContains(t, stdout, "alpha\nbeta")

	if got, want := c.MustRun("projects"), "alpha\nbeta"; got != want {
		t.Fatalf("projects=%q, want=%q", got, want)
	}

	if got, want := c.ReadEntry("alpha/20240301T0900Z_20240301T1000Z"), "pair programming\n"; got != want {
		t.Fatalf("content=%q, want=%q", got, want)
	}
}

func Test_Shell_Continues_And_Fails_When_A_Line_Fails(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	script := "bogus\nadd -p alpha\nshell\nadd -p alpha -s 2024-03-01 -D 1h\n"

	_, stderr, code := c.RunWithInput(script, "shell")
	if code == 0 {
		t.Fatal("shell exit=0, want failure")
	}

	cli.AssertContains(t, stderr, "unknown command: bogus")
	cli.AssertContains(t, stderr, "unknown command: shell")
	cli.AssertContains(t, stderr, "start is required")
	cli.AssertContains(t, stderr, "3 command(s) failed")

	AssertLineCount(t, c.MustRun("ls"), 1)
}

func Test_Shell_Rejects_Stdin_Flag_When_Running_Commands(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	_, stderr, _ := c.RunWithInput("add -p alpha -s 2024-03-01 -D 1h --stdin\n", "shell")

	cli.AssertContains(t, stderr, "--stdin: no input")
}

func Test_Shell_Help_Lists_Commands_When_Asked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	stdout, _, code := c.RunWithInput("help\n", "shell")
	if code != 0 {
		t.Fatalf("shell exit=%d", code)
	}

	cli.AssertContains(t, stdout, "  timer")
	cli.AssertNotContains(t, stdout, "  shell ")
}
