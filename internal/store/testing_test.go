package store_test

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/calvinalkan/uren/internal/kv"
	"github.com/calvinalkan/uren/internal/store"
)

type entryFixture struct {
	Project string
	Start   time.Time
	End     time.Time
	Content string
}

func openStore(t *testing.T, dataDir string) *store.Store {
	t.Helper()

	return openStoreWith(t, store.Options{DataDir: dataDir})
}

func openStoreWith(t *testing.T, opts store.Options) *store.Store {
	t.Helper()

	s, err := store.Open(t.Context(), opts)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func openMemoryStore(t *testing.T) *store.Store {
	t.Helper()

	return openStoreWith(t, store.Options{DataDir: t.TempDir(), Backend: kv.BackendMemory})
}

func saveEntry(t *testing.T, s *store.Store, e entryFixture) (store.Key, store.Key) {
	t.Helper()

	staged, err := s.Stage(strings.NewReader(e.Content))
	if err != nil {
		t.Fatalf("stage: %v", err)
	}

	pkey, dkey, err := s.Save(store.Entry{Project: e.Project, Start: e.Start, End: e.End, Staged: staged}, store.Key{})
	if err != nil {
		t.Fatalf("save %s: %v", e.Project, err)
	}

	return pkey, dkey
}

// writeEntryFile puts an entry file on disk without touching the index.
func writeEntryFile(t *testing.T, dataDir string, e entryFixture) string {
	t.Helper()

	dir := filepath.Join(dataDir, e.Project)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}

	path := filepath.Join(dir, store.Filename(e.Start, e.End))

	if err := os.WriteFile(path, []byte(e.Content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}

	return path
}

func utc(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

func mustProjectKey(t *testing.T, project string, start, end time.Time) store.Key {
	t.Helper()

	k, err := store.NewProjectKey(project, start, end)
	if err != nil {
		t.Fatalf("project key: %v", err)
	}

	return k
}

func mustDateKey(t *testing.T, project string, start, end time.Time) store.Key {
	t.Helper()

	k, err := store.NewDateKey(project, start, end)
	if err != nil {
		t.Fatalf("date key: %v", err)
	}

	return k
}

func allKeys(t *testing.T, s *store.Store) []store.Key {
	t.Helper()

	keys, _, err := s.Keys(store.Query{})
	if err != nil {
		t.Fatalf("date keys: %v", err)
	}

	projects, err := s.Projects()
	if err != nil {
		t.Fatalf("projects: %v", err)
	}

	for _, p := range projects {
		pkeys, _, err := s.Keys(store.Query{Project: p})
		if err != nil {
			t.Fatalf("project keys %s: %v", p, err)
		}

		keys = append(keys, pkeys...)
	}

	return keys
}

func keyStrings(keys []store.Key) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.String())
	}

	return out
}

func newTestLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
