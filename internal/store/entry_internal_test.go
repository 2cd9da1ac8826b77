package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/calvinalkan/uren/internal/kv"
)

var (
	errInjectedCommit = errors.New("injected commit failure")
	errInjectedCursor = errors.New("injected cursor failure")
)

// failingDB runs updates to completion and then fails them, so the
// underlying store rolls back as it would on a failed commit.
type failingDB struct {
	kv.DB
	fail bool
}

func (f *failingDB) Update(fn func(kv.Tx) error) error {
	return f.DB.Update(func(tx kv.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}

		if f.fail {
			return errInjectedCommit
		}

		return nil
	})
}

func openFailing(t *testing.T) (*Store, *failingDB, string) {
	t.Helper()

	dataDir := t.TempDir()

	s, err := Open(t.Context(), Options{DataDir: dataDir, Backend: kv.BackendMemory})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	t.Cleanup(func() { _ = s.Close() })

	db := &failingDB{DB: s.db}
	s.db = db

	return s, db, dataDir
}

// brokenCursorDB hands out cursors that look empty and fail on Close, the
// way a backend iterator reports an I/O error part way through a walk.
type brokenCursorDB struct {
	kv.DB
}

func (b brokenCursorDB) View(fn func(kv.Tx) error) error {
	return b.DB.View(func(tx kv.Tx) error { return fn(brokenTx{Tx: tx}) })
}

type brokenTx struct {
	kv.Tx
}

func (brokenTx) Cursor() kv.Cursor { return brokenCursor{} }

type brokenCursor struct{}

func (brokenCursor) Seek([]byte) []byte { return nil }
func (brokenCursor) Next() []byte       { return nil }
func (brokenCursor) Prev() []byte       { return nil }
func (brokenCursor) Last() []byte       { return nil }
func (brokenCursor) Close() error       { return errInjectedCursor }

func stageString(t *testing.T, s *Store, content string) string {
	t.Helper()

	name, err := s.Stage(strings.NewReader(content))
	if err != nil {
		t.Fatalf("stage: %v", err)
	}

	return name
}

// Contract: a failed index commit leaves files and keys as they were.
func Test_Save_Restores_Files_When_Commit_Fails(t *testing.T) {
	t.Parallel()

	s, db, dataDir := openFailing(t)

	start := time.Date(2021, 1, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	old, _, err := s.Save(Entry{Project: "alpha", Start: start, End: end, Staged: stageString(t, s, "old")}, Key{})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	db.fail = true

	cases := []struct {
		name    string
		project string
	}{
		{name: "SamePath", project: "alpha"},
		{name: "NewProject", project: "beta"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			staged := stageString(t, s, "new")

			_, _, err := s.Save(Entry{Project: tc.project, Start: start, End: end, Staged: staged}, old)
			if !errors.Is(err, errInjectedCommit) {
				t.Fatalf("save error = %v, want injected failure", err)
			}

			content, err := s.ReadProjectFile(old, 0)
			if err != nil || content != "old" {
				t.Fatalf("old content = %q, %v, want %q", content, err, "old")
			}

			if ok, _ := s.Contains(old); !ok {
				t.Fatal("old key lost")
			}

			data, err := os.ReadFile(filepath.Join(dataDir, staged))
			if err != nil || string(data) != "new" {
				t.Fatalf("staged file = %q, %v, want restored", data, err)
			}

			backups, _ := filepath.Glob(filepath.Join(dataDir, "*"+backupSuffix))
			if len(backups) != 0 {
				t.Fatalf("backups left behind: %v", backups)
			}

			if err := s.Discard(staged); err != nil {
				t.Fatalf("discard: %v", err)
			}
		})
	}

	if _, err := os.Stat(filepath.Join(dataDir, "beta")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("beta dir stat = %v, want not exist", err)
	}
}

func Test_Delete_Keeps_Keys_When_Commit_Fails(t *testing.T) {
	t.Parallel()

	s, db, _ := openFailing(t)

	start := time.Date(2021, 1, 1, 10, 0, 0, 0, time.UTC)

	pkey, dkey, err := s.Save(Entry{Project: "alpha", Start: start, End: start.Add(time.Hour), Staged: stageString(t, s, "x")}, Key{})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	db.fail = true

	if err := s.Delete(pkey); !errors.Is(err, errInjectedCommit) {
		t.Fatalf("delete error = %v, want injected failure", err)
	}

	for _, k := range []Key{pkey, dkey} {
		if ok, _ := s.Contains(k); !ok {
			t.Fatalf("key %s removed by failed delete", k)
		}
	}

	db.fail = false

	if err := s.Delete(dkey); err != nil {
		t.Fatalf("retry delete: %v", err)
	}
}

func Test_Outside_Compares_Prefix_Then_Length_When_Bound_Is_Prefix(t *testing.T) {
	t.Parallel()

	cases := []struct {
		key, bound         string
		inclusive, reverse bool
		want               bool
	}{
		{key: "Pab", bound: "Pb", want: false},
		{key: "Pc", bound: "Pb", want: true},
		{key: "Pab", bound: "Pb", reverse: true, want: true},
		{key: "Pc", bound: "Pb", reverse: true, want: false},
		{key: "Pab", bound: "Pa", want: true},
		{key: "Pab", bound: "Pa", reverse: true, want: false},
		{key: "Pa", bound: "Pab", want: false},
		{key: "Pa", bound: "Pab", reverse: true, want: true},
		{key: "Pab", bound: "Pab", want: true},
		{key: "Pab", bound: "Pab", inclusive: true, want: false},
		{key: "Pab", bound: "Pab", inclusive: true, reverse: true, want: false},
	}

	for _, tc := range cases {
		got := outside([]byte(tc.key), []byte(tc.bound), tc.inclusive, tc.reverse)
		if got != tc.want {
			t.Fatalf("outside(%q, %q, incl=%v, rev=%v) = %v, want %v",
				tc.key, tc.bound, tc.inclusive, tc.reverse, got, tc.want)
		}
	}
}

func Test_Successor_Returns_ErrInvalidBoundary_When_Last_Byte_Is_0xFF(t *testing.T) {
	t.Parallel()

	if _, err := successor([]byte{'P', 0xFF}); !errors.Is(err, ErrInvalidBoundary) {
		t.Fatalf("successor error = %v, want ErrInvalidBoundary", err)
	}

	got, err := successor([]byte("Pabc\x00"))
	if err != nil || string(got) != "Pabc\x01" {
		t.Fatalf("successor = %q, %v", got, err)
	}
}

func Test_Scan_Returns_ErrIndexMismatch_When_Bounds_From_Different_Indices(t *testing.T) {
	t.Parallel()

	lower, _ := ProjectLowerBound("p", time.Time{})
	upper, _ := DateUpperBound(time.Time{})

	sc := scan{lower: lower, upper: upper}

	if _, err := sc.index(); !errors.Is(err, ErrIndexMismatch) {
		t.Fatalf("index error = %v, want ErrIndexMismatch", err)
	}
}

// Contract: a cursor failure reaches the caller instead of passing for an
// empty or complete result.
func Test_Reads_Return_Error_When_Cursor_Fails(t *testing.T) {
	t.Parallel()

	s, _, _ := openFailing(t)

	start := time.Date(2021, 1, 1, 10, 0, 0, 0, time.UTC)

	if _, _, err := s.Save(Entry{Project: "alpha", Start: start, End: start.Add(time.Hour), Staged: stageString(t, s, "x")}, Key{}); err != nil {
		t.Fatalf("save: %v", err)
	}

	s.db = brokenCursorDB{DB: s.db}

	queries := []struct {
		name string
		q    Query
	}{
		{name: "Date", q: Query{}},
		{name: "DateReverse", q: Query{Reverse: true}},
		{name: "Project", q: Query{Project: "alpha"}},
	}

	for _, tc := range queries {
		t.Run(tc.name, func(t *testing.T) {
			last, err := s.Iterate(tc.q, func(Key) (bool, error) { return true, nil })
			if !errors.Is(err, errInjectedCursor) {
				t.Fatalf("iterate error = %v, want cursor failure", err)
			}

			if !last.IsZero() {
				t.Fatalf("iterate last = %s, want zero", last)
			}

			keys, _, err := s.Keys(tc.q)
			if !errors.Is(err, errInjectedCursor) || len(keys) != 0 {
				t.Fatalf("keys = %v, %v, want cursor failure", keys, err)
			}

			if _, err := s.CountAndSum(tc.q); !errors.Is(err, errInjectedCursor) {
				t.Fatalf("count and sum error = %v, want cursor failure", err)
			}
		})
	}

	projects, err := s.Projects()
	if !errors.Is(err, errInjectedCursor) {
		t.Fatalf("projects = %v, %v, want cursor failure", projects, err)
	}
}

// Contract: a stat failure on the staged file is reported as an I/O error,
// not as missing content.
func Test_Save_Reports_Stat_Error_When_Staged_Name_Unreadable(t *testing.T) {
	t.Parallel()

	s, _, _ := openFailing(t)

	start := time.Date(2021, 1, 1, 10, 0, 0, 0, time.UTC)
	staged := stagePrefix + strings.Repeat("x", 300)

	_, _, err := s.Save(Entry{Project: "alpha", Start: start, End: start.Add(time.Hour), Staged: staged}, Key{})
	if !errors.Is(err, syscall.ENAMETOOLONG) {
		t.Fatalf("save error = %v, want ENAMETOOLONG", err)
	}

	if errors.Is(err, ErrInvalidContent) {
		t.Fatalf("save error = %v, must not be ErrInvalidContent", err)
	}

	_, _, err = s.Save(Entry{Project: "alpha", Start: start, End: start.Add(time.Hour), Staged: stagePrefix + "missing"}, Key{})
	if !errors.Is(err, ErrInvalidContent) {
		t.Fatalf("missing staged error = %v, want ErrInvalidContent", err)
	}
}

// Contract: a save that fails while setting aside the target leaves the data
// directory, the staged file and the index untouched.
func Test_Save_Leaves_Data_Dir_Untouched_When_Target_Cannot_Be_Set_Aside(t *testing.T) {
	t.Parallel()

	s, _, dataDir := openFailing(t)

	blocker := filepath.Join(dataDir, "beta")
	if err := os.WriteFile(blocker, []byte("not a project"), 0o600); err != nil {
		t.Fatalf("write blocker: %v", err)
	}

	start := time.Date(2021, 1, 1, 10, 0, 0, 0, time.UTC)
	staged := stageString(t, s, "new")

	_, _, err := s.Save(Entry{Project: "beta", Start: start, End: start.Add(time.Hour), Staged: staged}, Key{})
	if !errors.Is(err, syscall.ENOTDIR) {
		t.Fatalf("save error = %v, want ENOTDIR", err)
	}

	info, err := os.Lstat(blocker)
	if err != nil || !info.Mode().IsRegular() {
		t.Fatalf("blocker = %v, %v, want regular file", info, err)
	}

	backups, _ := filepath.Glob(filepath.Join(dataDir, "*"+backupSuffix))
	if len(backups) != 0 {
		t.Fatalf("backups left behind: %v", backups)
	}

	data, err := os.ReadFile(filepath.Join(dataDir, staged))
	if err != nil || string(data) != "new" {
		t.Fatalf("staged file = %q, %v, want kept", data, err)
	}

	projects, err := s.Projects()
	if err != nil || len(projects) != 0 {
		t.Fatalf("projects = %v, %v, want none", projects, err)
	}
}
