// Package main provides uren-seed, a tool to seed a data directory with
// synthetic entries and time how long each index backend takes to rebuild
// and aggregate it.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/calvinalkan/uren/internal/kv"
	"github.com/calvinalkan/uren/internal/store"

	flag "github.com/spf13/pflag"
)

func main() {
	fs := flag.NewFlagSet("uren-seed", flag.ExitOnError)
	dir := fs.StringP("dir", "d", filepath.Join(os.TempDir(), "uren-bench"), "Data directory to (re)create")
	count := fs.IntP("count", "n", 10000, "Number of entries to write")
	projects := fs.IntP("projects", "p", 12, "Number of distinct projects")
	seed := fs.Uint64("seed", 1, "Random seed")
	backends := fs.StringSlice("backend", []string{string(kv.BackendBolt), string(kv.BackendPebble), string(kv.BackendMemory)}, "Backends to time")

	_ = fs.Parse(os.Args[1:])

	start := time.Now()

	written, err := seedEntries(*dir, *count, *projects, *seed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error seeding %s: %v\n", *dir, err)
		os.Exit(1)
	}

	fmt.Printf("Wrote %d entries in %s -> %s\n", written, time.Since(start), *dir)

	for _, name := range *backends {
		backend, err := kv.ParseBackend(name)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}

		if err := timeBackend(*dir, backend); err != nil {
			fmt.Fprintf(os.Stderr, "error timing %s: %v\n", backend, err)
			os.Exit(1)
		}
	}
}

type entryFile struct {
	project    string
	start, end time.Time
}

// seedEntries writes count non-overlapping entries spread over projects. The
// same seed always produces the same files.
func seedEntries(dir string, count, projects int, seed uint64) (int, error) {
	_ = os.RemoveAll(dir)

	rng := rand.New(rand.NewPCG(seed, seed))
	at := time.Date(2020, 1, 1, 8, 0, 0, 0, time.UTC)

	files := make([]entryFile, 0, count)
	for range count {
		at = at.Add(time.Duration(rng.IntN(240)) * time.Minute)
		end := at.Add(time.Duration(5+rng.IntN(180)) * time.Minute)

		files = append(files, entryFile{
			project: fmt.Sprintf("project-%02d", rng.IntN(max(projects, 1))),
			start:   at,
			end:     end,
		})

		at = end
	}

	for i := range max(projects, 1) {
		if err := os.MkdirAll(filepath.Join(dir, fmt.Sprintf("project-%02d", i)), 0o750); err != nil {
			return 0, fmt.Errorf("creating directory: %w", err)
		}
	}

	numWorkers := runtime.NumCPU()
	work := make(chan entryFile, numWorkers*2)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for range numWorkers {
		wg.Go(func() {
			for f := range work {
				path := filepath.Join(dir, f.project, store.Filename(f.start, f.end))
				content := fmt.Sprintf("Seeded work on %s.\n", f.project)

				if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
					mu.Lock()
					firstErr = keepFirst(firstErr, err)
					mu.Unlock()
				}
			}
		})
	}

	for _, f := range files {
		work <- f
	}

	close(work)
	wg.Wait()

	return len(files), firstErr
}

func keepFirst(first, err error) error {
	if first != nil {
		return first
	}

	return err
}

// timeBackend rebuilds a fresh index with backend and runs a full aggregate.
func timeBackend(dir string, backend kv.Backend) error {
	ctx := context.Background()
	indexPath := filepath.Join(dir, ".bench-"+string(backend))

	begin := time.Now()

	st, err := store.Open(ctx, store.Options{
		DataDir:   dir,
		IndexPath: indexPath,
		Backend:   backend,
		Truncate:  true,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		return err
	}

	defer func() {
		_ = st.Close()
		_ = os.RemoveAll(indexPath)
		_ = os.Remove(indexPath + ".lock")
	}()

	rebuild := time.Since(begin)

	begin = time.Now()

	totals, err := st.CountAndSum(store.Query{})
	if err != nil {
		return err
	}

	fmt.Printf("%-7s rebuild %-12s sum %-12s entries=%d minutes=%d\n",
		backend, rebuild.Round(time.Microsecond), time.Since(begin).Round(time.Microsecond), totals.Count, totals.Minutes)

	return nil
}
