package kv

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// Pebble is a [DB] backed by a pebble LSM directory.
//
// Updates run against an indexed batch so reads inside the transaction see
// its own writes; the batch is committed synchronously when fn succeeds.
type Pebble struct {
	db      *pebble.DB
	created bool
}

// OpenPebble opens or creates the pebble directory at opts.Path.
func OpenPebble(opts Options) (*Pebble, error) {
	if opts.Path == "" {
		return nil, errors.New("open pebble: empty path")
	}

	fsys := opts.fs()

	if opts.Truncate {
		if err := fsys.RemoveAll(opts.Path); err != nil {
			return nil, fmt.Errorf("open pebble: truncate: %w", err)
		}
	}

	exists, err := fsys.Exists(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}

	created := !exists

	db, err := pebble.Open(opts.Path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}

	return &Pebble{db: db, created: created}, nil
}

func (p *Pebble) Created() bool { return p.created }

func (p *Pebble) View(fn func(Tx) error) error {
	if p.db == nil {
		return ErrClosed
	}

	snap := p.db.NewSnapshot()
	defer snap.Close()

	return fn(&pebbleTx{r: snap})
}

func (p *Pebble) Update(fn func(Tx) error) error {
	if p.db == nil {
		return ErrClosed
	}

	batch := p.db.NewIndexedBatch()
	defer batch.Close()

	if err := fn(&pebbleTx{r: batch, w: batch}); err != nil {
		return err
	}

	if batch.Empty() {
		return nil
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func (p *Pebble) Close() error {
	if p.db == nil {
		return nil
	}

	err := p.db.Close()
	p.db = nil

	return err
}

type pebbleTx struct {
	r pebble.Reader
	w *pebble.Batch
}

func (t *pebbleTx) Has(key []byte) (bool, error) {
	_, closer, err := t.r.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	_ = closer.Close()

	return true, nil
}

func (t *pebbleTx) Put(key []byte) error {
	if t.w == nil {
		return errReadOnly
	}

	if len(key) == 0 {
		return ErrEmptyKey
	}

	return t.w.Set(key, nil, nil)
}

func (t *pebbleTx) Delete(key []byte) error {
	if t.w == nil {
		return errReadOnly
	}

	return t.w.Delete(key, nil)
}

func (t *pebbleTx) Cursor() Cursor {
	it, err := t.r.NewIter(&pebble.IterOptions{})

	return &pebbleCursor{it: it, err: err}
}

// pebbleCursor adapts a pebble iterator. An iterator that failed to open, or
// that stopped on an error rather than at the end of its range, behaves as an
// exhausted one and reports the failure from Close.
type pebbleCursor struct {
	it  *pebble.Iterator
	err error
}

func (c *pebbleCursor) at(valid bool) []byte {
	if !valid {
		c.err = errors.Join(c.err, c.it.Error())
		return nil
	}

	return c.it.Key()
}

func (c *pebbleCursor) Seek(target []byte) []byte {
	if c.it == nil {
		return nil
	}

	return c.at(c.it.SeekGE(target))
}

func (c *pebbleCursor) Next() []byte {
	if c.it == nil {
		return nil
	}

	return c.at(c.it.Next())
}

func (c *pebbleCursor) Prev() []byte {
	if c.it == nil {
		return nil
	}

	return c.at(c.it.Prev())
}

func (c *pebbleCursor) Last() []byte {
	if c.it == nil {
		return nil
	}

	return c.at(c.it.Last())
}

func (c *pebbleCursor) Close() error {
	if c.it == nil {
		return c.err
	}

	err := c.it.Close()
	c.it = nil

	return errors.Join(c.err, err)
}
