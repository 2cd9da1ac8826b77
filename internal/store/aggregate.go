package store

import "fmt"

// Totals is the result of [Store.CountAndSum].
type Totals struct {
	Count   int   // Count is the number of entries.
	Minutes int64 // Minutes is the summed end-start of all entries.
}

// CountAndSum counts the entries selected by q and sums their durations.
// Limit, Skip and After are ignored. Each entry is counted once: the query's
// index decides which of its two keys is summed.
func (s *Store) CountAndSum(q Query) (Totals, error) {
	q.Limit, q.Skip, q.After = 0, 0, Key{}

	want := q.Index()

	var (
		t       Totals
		seconds int64
	)

	_, err := s.Iterate(q, func(k Key) (bool, error) {
		if k.Kind() != want {
			return true, nil
		}

		t.Count++
		seconds += int64(k.endSec()) - int64(k.startSec())

		return true, nil
	})
	if err != nil {
		return Totals{}, fmt.Errorf("count and sum: %w", err)
	}

	t.Minutes = seconds / 60

	return t, nil
}
