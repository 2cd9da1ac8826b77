package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/uren/internal/config"
	"github.com/calvinalkan/uren/internal/kv"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

type env struct {
	home string
	work string
	vars map[string]string
}

func newEnv(t *testing.T) env {
	t.Helper()

	root := t.TempDir()
	home := filepath.Join(root, "home")
	work := filepath.Join(root, "work")

	for _, dir := range []string{home, work} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}

	return env{home: home, work: work, vars: map[string]string{"HOME": home}}
}

func (e env) load(t *testing.T, in config.Input) (config.Config, error) {
	t.Helper()

	in.WorkDirOverride = e.work
	if in.Env == nil {
		in.Env = e.vars
	}

	return config.Load(in)
}

func Test_Load_Returns_Defaults_When_No_Files(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	cfg, err := e.load(t, config.Input{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	want := struct {
		DataDirAbs string
		Backend    kv.Backend
		Level      slog.Level
		PageSize   int
		Sources    config.Sources
	}{
		DataDirAbs: filepath.Join(e.home, ".uren"),
		Backend:    kv.BackendBolt,
		Level:      slog.LevelWarn,
		PageSize:   config.DefaultPageSize,
	}

	got := want
	got.DataDirAbs = cfg.DataDirAbs
	got.Backend = cfg.BackendKind()
	got.Level = cfg.Level
	got.PageSize = cfg.PageSize
	got.Sources = cfg.Sources

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("config (-want +got):\n%s", diff)
	}
}

// Contract: later sources win: global < explicit file < flags.
func Test_Load_Applies_Precedence_When_All_Sources_Present(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	xdg := filepath.Join(e.home, "xdg")
	e.vars["XDG_CONFIG_HOME"] = xdg

	writeFile(t, filepath.Join(xdg, "uren", "config.json"), `{
		// global settings
		"data_dir": "/global/data",
		"backend": "pebble",
		"log_level": "info",
		"page_size": 10,
	}`)
	writeFile(t, filepath.Join(e.work, "custom.json"), `{"data_dir": "rel-data", "page_size": 20}`)

	cfg, err := e.load(t, config.Input{ConfigPath: "custom.json"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.DataDirAbs != filepath.Join(e.work, "rel-data") {
		t.Fatalf("data dir = %q", cfg.DataDirAbs)
	}

	if cfg.BackendKind() != kv.BackendPebble || cfg.PageSize != 20 || cfg.Level != slog.LevelInfo {
		t.Fatalf("config = %+v", cfg)
	}

	if cfg.Sources.Global == "" || cfg.Sources.Explicit != filepath.Join(e.work, "custom.json") {
		t.Fatalf("sources = %+v", cfg.Sources)
	}

	cfg, err = e.load(t, config.Input{
		ConfigPath:      "custom.json",
		DataDirOverride: "/flag/data",
		BackendOverride: "memory",
		Verbose:         true,
	})
	if err != nil {
		t.Fatalf("load with flags: %v", err)
	}

	if cfg.DataDirAbs != "/flag/data" || cfg.BackendKind() != kv.BackendMemory || cfg.Level != slog.LevelDebug {
		t.Fatalf("config with flags = %+v", cfg)
	}
}

func Test_Load_Returns_Error_When_Config_Invalid(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		content string
		want    error
		substr  string
	}{
		{name: "EmptyDataDir", content: `{"data_dir": ""}`, want: config.ErrDataDirEmpty},
		{name: "BadJSON", content: `{"data_dir": `, want: config.ErrConfigInvalid},
		{name: "UnknownBackend", content: `{"backend": "sqlite"}`, substr: "unknown backend"},
		{name: "EmptyBackend", content: `{"backend": ""}`, want: config.ErrConfigInvalid},
		{name: "ZeroPageSize", content: `{"page_size": 0}`, want: config.ErrConfigInvalid},
		{name: "BadLogLevel", content: `{"log_level": "loud"}`, substr: "log_level"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			e := newEnv(t)
			writeFile(t, filepath.Join(e.work, "c.json"), tc.content)

			_, err := e.load(t, config.Input{ConfigPath: "c.json"})
			if err == nil {
				t.Fatal("load error = nil, want error")
			}

			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("load error = %v, want %v", err, tc.want)
			}

			if tc.substr != "" && !strings.Contains(err.Error(), tc.substr) {
				t.Fatalf("load error = %v, want it to mention %q", err, tc.substr)
			}
		})
	}
}

func Test_Load_Returns_ErrConfigFileNotFound_When_Explicit_File_Missing(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	_, err := e.load(t, config.Input{ConfigPath: "missing.json"})
	if !errors.Is(err, config.ErrConfigFileNotFound) {
		t.Fatalf("load error = %v, want ErrConfigFileNotFound", err)
	}
}

func Test_Load_Returns_ErrNoHome_When_Home_Unset_And_No_Data_Dir(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	_, err := e.load(t, config.Input{Env: map[string]string{}})
	if !errors.Is(err, config.ErrNoHome) {
		t.Fatalf("load error = %v, want ErrNoHome", err)
	}

	cfg, err := e.load(t, config.Input{Env: map[string]string{}, DataDirOverride: "data"})
	if err != nil || cfg.DataDirAbs != filepath.Join(e.work, "data") {
		t.Fatalf("load with override = %q, %v", cfg.DataDirAbs, err)
	}
}
