package memkv

import (
	"bytes"

	"github.com/google/btree"

	"github.com/kitedb/kitedb/internal/kv"
)

// iterator walks an immutable btree clone. Positioning is O(log n) per
// step; the clone guarantees the view never shifts under the caller.
type iterator struct {
	tree  *btree.BTree
	cmp   kv.Comparator
	cur   *item
	valid bool
}

func (it *iterator) less(a, b []byte) bool {
	if it.cmp != nil {
		return it.cmp.Compare(a, b) < 0
	}
	return bytes.Compare(a, b) < 0
}

func (it *iterator) Valid() bool { return it.valid }

func (it *iterator) SeekToFirst() {
	it.cur, it.valid = nil, false
	if it.tree == nil {
		return
	}
	if min := it.tree.Min(); min != nil {
		it.cur, it.valid = min.(*item), true
	}
}

func (it *iterator) SeekToLast() {
	it.cur, it.valid = nil, false
	if it.tree == nil {
		return
	}
	if max := it.tree.Max(); max != nil {
		it.cur, it.valid = max.(*item), true
	}
}

// Seek positions at the first record with key >= target.
func (it *iterator) Seek(key []byte) {
	it.cur, it.valid = nil, false
	if it.tree == nil {
		return
	}
	it.tree.AscendGreaterOrEqual(&item{key: key, cmp: it.cmp}, func(i btree.Item) bool {
		it.cur, it.valid = i.(*item), true
		return false
	})
}

func (it *iterator) Next() {
	if !it.valid {
		return
	}
	prev := it.cur
	it.cur, it.valid = nil, false
	it.tree.AscendGreaterOrEqual(prev, func(i btree.Item) bool {
		cand := i.(*item)
		if !it.less(prev.key, cand.key) {
			return true // skip the current position
		}
		it.cur, it.valid = cand, true
		return false
	})
}

func (it *iterator) Prev() {
	if !it.valid {
		return
	}
	next := it.cur
	it.cur, it.valid = nil, false
	it.tree.DescendLessOrEqual(next, func(i btree.Item) bool {
		cand := i.(*item)
		if !it.less(cand.key, next.key) {
			return true
		}
		it.cur, it.valid = cand, true
		return false
	})
}

func (it *iterator) Key() []byte {
	if !it.valid {
		return nil
	}
	return it.cur.key
}

func (it *iterator) Value() []byte {
	if !it.valid {
		return nil
	}
	return it.cur.value
}

func (it *iterator) Close() error {
	it.tree, it.cur, it.valid = nil, nil, false
	return nil
}
