package kv

import (
	"bytes"
	"slices"
	"sync"

	"github.com/google/btree"
)

const memoryDegree = 32

// Memory is a [DB] held in an in-process B-tree. It always reports Created,
// so the index is rebuilt from the data directory on every Open.
//
// Update works on a copy-on-write clone and swaps it in only when fn
// succeeds, which gives the same all-or-nothing behavior as the disk
// backends.
type Memory struct {
	mu     sync.RWMutex
	tree   *btree.BTreeG[[]byte]
	closed bool
}

// OpenMemory returns an empty in-memory store.
func OpenMemory() *Memory {
	return &Memory{tree: newMemoryTree()}
}

func newMemoryTree() *btree.BTreeG[[]byte] {
	return btree.NewG(memoryDegree, func(a, b []byte) bool {
		return bytes.Compare(a, b) < 0
	})
}

func (m *Memory) Created() bool { return true }

func (m *Memory) View(fn func(Tx) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}

	return fn(&memoryTx{tree: m.tree})
}

func (m *Memory) Update(fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	work := m.tree.Clone()

	if err := fn(&memoryTx{tree: work, writable: true}); err != nil {
		return err
	}

	m.tree = work

	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.tree = nil

	return nil
}

type memoryTx struct {
	tree     *btree.BTreeG[[]byte]
	writable bool
}

func (t *memoryTx) Has(key []byte) (bool, error) {
	return t.tree.Has(key), nil
}

func (t *memoryTx) Put(key []byte) error {
	if !t.writable {
		return errReadOnly
	}

	if len(key) == 0 {
		return ErrEmptyKey
	}

	t.tree.ReplaceOrInsert(slices.Clone(key))

	return nil
}

func (t *memoryTx) Delete(key []byte) error {
	if !t.writable {
		return errReadOnly
	}

	t.tree.Delete(key)

	return nil
}

func (t *memoryTx) Cursor() Cursor {
	return &memoryCursor{tree: t.tree}
}

// memoryCursor re-descends the tree from its current key on every step;
// btree has no resumable iterator.
type memoryCursor struct {
	tree *btree.BTreeG[[]byte]
	cur  []byte
}

func (c *memoryCursor) set(k []byte, ok bool) []byte {
	if !ok {
		c.cur = nil
		return nil
	}

	c.cur = k

	return k
}

func (c *memoryCursor) Seek(target []byte) []byte {
	var found []byte

	ok := false

	c.tree.AscendGreaterOrEqual(target, func(k []byte) bool {
		found, ok = k, true
		return false
	})

	return c.set(found, ok)
}

func (c *memoryCursor) Next() []byte {
	if c.cur == nil {
		return nil
	}

	var found []byte

	ok := false
	from := c.cur

	c.tree.AscendGreaterOrEqual(from, func(k []byte) bool {
		if bytes.Equal(k, from) {
			return true
		}

		found, ok = k, true

		return false
	})

	return c.set(found, ok)
}

func (c *memoryCursor) Prev() []byte {
	if c.cur == nil {
		return nil
	}

	var found []byte

	ok := false
	from := c.cur

	c.tree.DescendLessOrEqual(from, func(k []byte) bool {
		if bytes.Equal(k, from) {
			return true
		}

		found, ok = k, true

		return false
	})

	return c.set(found, ok)
}

func (c *memoryCursor) Last() []byte {
	k, ok := c.tree.Max()
	return c.set(k, ok)
}

func (c *memoryCursor) Close() error { return nil }
