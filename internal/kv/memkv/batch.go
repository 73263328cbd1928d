package memkv

import (
	"github.com/kitedb/kitedb/internal/kv"
)

type batchOp struct {
	cf    int
	del   bool
	key   []byte
	value []byte
}

type writeBatch struct {
	db  *DB
	ops []batchOp
}

func (b *writeBatch) Put(h kv.ColumnFamilyHandle, key, value []byte) {
	cf, err := b.db.cfOf(h)
	if err != nil {
		return
	}
	b.ops = append(b.ops, batchOp{
		cf:    cf.index,
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
	})
}

func (b *writeBatch) Delete(h kv.ColumnFamilyHandle, key []byte) {
	cf, err := b.db.cfOf(h)
	if err != nil {
		return
	}
	b.ops = append(b.ops, batchOp{
		cf:  cf.index,
		del: true,
		key: append([]byte(nil), key...),
	})
}

func (b *writeBatch) Count() int { return len(b.ops) }

func (b *writeBatch) Clear() { b.ops = b.ops[:0] }
