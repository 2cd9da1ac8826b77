package kv

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var bucketKeys = []byte("keys")

// Bolt is a [DB] backed by a single bbolt file with one bucket.
type Bolt struct {
	db      *bbolt.DB
	created bool
}

// OpenBolt opens or creates the bbolt file at opts.Path.
//
// bbolt takes its own flock on the file; a short timeout keeps a second
// process from hanging if it gets that far.
func OpenBolt(opts Options) (*Bolt, error) {
	if opts.Path == "" {
		return nil, errors.New("open bolt: empty path")
	}

	fsys := opts.fs()

	exists, err := fsys.Exists(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}

	created := !exists

	if err := fsys.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}

	db, err := bbolt.Open(opts.Path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if opts.Truncate && tx.Bucket(bucketKeys) != nil {
			if err := tx.DeleteBucket(bucketKeys); err != nil {
				return err
			}
		}

		b := tx.Bucket(bucketKeys)
		if b == nil {
			created = true

			_, err := tx.CreateBucket(bucketKeys)

			return err
		}

		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open bolt: creating bucket: %w", err)
	}

	return &Bolt{db: db, created: created}, nil
}

func (b *Bolt) Created() bool { return b.created }

func (b *Bolt) View(fn func(Tx) error) error {
	if b.db == nil {
		return ErrClosed
	}

	return b.db.View(func(tx *bbolt.Tx) error {
		return fn(&boltTx{b: tx.Bucket(bucketKeys)})
	})
}

func (b *Bolt) Update(fn func(Tx) error) error {
	if b.db == nil {
		return ErrClosed
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		return fn(&boltTx{b: tx.Bucket(bucketKeys)})
	})
}

func (b *Bolt) Close() error {
	if b.db == nil {
		return nil
	}

	err := b.db.Close()
	b.db = nil

	return err
}

type boltTx struct {
	b *bbolt.Bucket
}

// Has uses a cursor: Bucket.Get cannot tell an empty value from a missing key.
func (t *boltTx) Has(key []byte) (bool, error) {
	k, _ := t.b.Cursor().Seek(key)

	return k != nil && bytes.Equal(k, key), nil
}

func (t *boltTx) Put(key []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}

	return t.b.Put(key, []byte{})
}

func (t *boltTx) Delete(key []byte) error {
	return t.b.Delete(key)
}

func (t *boltTx) Cursor() Cursor {
	return &boltCursor{c: t.b.Cursor()}
}

type boltCursor struct {
	c *bbolt.Cursor
}

func (c *boltCursor) Seek(target []byte) []byte {
	k, _ := c.c.Seek(target)
	return k
}

func (c *boltCursor) Next() []byte {
	k, _ := c.c.Next()
	return k
}

func (c *boltCursor) Prev() []byte {
	k, _ := c.c.Prev()
	return k
}

func (c *boltCursor) Last() []byte {
	k, _ := c.c.Last()
	return k
}

func (c *boltCursor) Close() error { return nil }
