package memkv

import (
	"bytes"
	"time"

	"github.com/google/btree"
	"go.uber.org/zap"

	"github.com/kitedb/kitedb/internal/kv"
)

// Compaction visits records over an immutable clone so that filters may
// read back into the live store (the data filters look up meta records
// mid-pass). Verdicts are applied afterwards under the write lock; a
// record whose value changed since the scan is left alone.

type compactionEdit struct {
	cf       *columnFamily
	key      []byte
	seen     []byte
	drop     bool
	newValue []byte
}

// CompactRange synchronously applies the column family's compaction
// filter to every record in [begin, end). Nil bounds span the whole
// keyspace.
func (db *DB) CompactRange(h kv.ColumnFamilyHandle, begin, end []byte) error {
	cf, err := db.cfOf(h)
	if err != nil {
		return err
	}
	if cf.filter == nil {
		return nil
	}

	db.mu.Lock()
	clone := cf.tree.Clone()
	db.mu.Unlock()

	var edits []compactionEdit
	visit := func(i btree.Item) bool {
		it := i.(*item)
		if end != nil && !lessKeys(cf.cmp, it.key, end) {
			return false
		}
		decision, newValue := cf.filter.Filter(0, it.key, it.value)
		switch decision {
		case kv.DecisionDrop:
			edits = append(edits, compactionEdit{cf: cf, key: it.key, seen: it.value, drop: true})
		case kv.DecisionRewrite:
			edits = append(edits, compactionEdit{cf: cf, key: it.key, seen: it.value, newValue: newValue})
		}
		return true
	}
	if begin != nil {
		clone.AscendGreaterOrEqual(&item{key: begin, cmp: cf.cmp}, visit)
	} else {
		clone.Ascend(visit)
	}

	if len(edits) == 0 {
		return nil
	}

	dropped, rewritten := db.applyEdits(edits)
	if dropped+rewritten > 0 {
		db.logger.Debug("memkv: compaction pass",
			zap.String("path", db.path),
			zap.String("cf", cf.name),
			zap.Int("dropped", dropped),
			zap.Int("rewritten", rewritten))
	}
	return nil
}

func (db *DB) applyEdits(edits []compactionEdit) (dropped, rewritten int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, e := range edits {
		cur := e.cf.tree.Get(&item{key: e.key, cmp: e.cf.cmp})
		if cur == nil || !bytes.Equal(cur.(*item).value, e.seen) {
			continue
		}
		if e.drop {
			e.cf.tree.Delete(&item{key: e.key, cmp: e.cf.cmp})
			dropped++
		} else {
			e.cf.tree.ReplaceOrInsert(&item{key: e.key, value: e.newValue, cmp: e.cf.cmp})
			rewritten++
		}
	}
	return dropped, rewritten
}

// compactLoop periodically sweeps every filtered column family.
func (db *DB) compactLoop(interval time.Duration) {
	defer db.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-db.stopCompact:
			return
		case <-ticker.C:
			for _, cf := range db.cfs {
				if cf.filter == nil {
					continue
				}
				if err := db.CompactRange(cf, nil, nil); err != nil {
					db.logger.Warn("memkv: background compaction failed",
						zap.String("cf", cf.name), zap.Error(err))
				}
			}
		}
	}
}

func lessKeys(cmp kv.Comparator, a, b []byte) bool {
	if cmp != nil {
		return cmp.Compare(a, b) < 0
	}
	return bytes.Compare(a, b) < 0
}
