package engine

import (
	"sync/atomic"

	"github.com/kitedb/kitedb/internal/codec"
	"github.com/kitedb/kitedb/internal/kv"
)

// Compaction filters implement the lazy half of the version/timestamp
// protocol. The meta filters reclaim metas that are both stale and
// logically empty; the data filters reclaim sub-records orphaned by a
// version bump, an expiry or a vanished meta.
//
// Data filters need to read the current meta from the live store, so
// they hold a back-reference published only after the store is fully
// open. Until then every verdict is keep.

// metaBackref is the (db, meta CF) pair a data filter consults.
type metaBackref struct {
	db     kv.DB
	metaCF kv.ColumnFamilyHandle
}

// metaState is what a data filter needs to know about a meta record.
type metaState struct {
	version   uint32
	timestamp uint32
	size      uint64
}

// metaDecoder parses a handler's meta value into the common state.
type metaDecoder func(value []byte) (metaState, error)

func decodeCollectionMetaState(value []byte) (metaState, error) {
	m, err := codec.DecodeCollectionMeta(value)
	if err != nil {
		return metaState{}, err
	}
	return metaState{version: m.Version, timestamp: m.Timestamp, size: uint64(m.Count)}, nil
}

func decodeListsMetaState(value []byte) (metaState, error) {
	m, err := codec.DecodeListsMeta(value)
	if err != nil {
		return metaState{}, err
	}
	return metaState{version: m.Version, timestamp: m.Timestamp, size: m.Count}, nil
}

// ----------------------------------------------------------------------
// Meta filters
// ----------------------------------------------------------------------

// stringsFilter drops string records whose trailing timestamp has
// passed.
type stringsFilter struct{}

func (stringsFilter) Name() string { return "kitedb.StringsFilter" }

func (stringsFilter) Filter(level int, key, value []byte) (kv.Decision, []byte) {
	v, err := codec.DecodeStringsValue(value)
	if err != nil {
		return kv.DecisionKeep, nil
	}
	if v.IsStale(nowSeconds()) {
		return kv.DecisionDrop, nil
	}
	return kv.DecisionKeep, nil
}

// metaFilter drops meta records that are stale and logically empty.
type metaFilter struct {
	name   string
	decode metaDecoder
}

func newCollectionMetaFilter(name string) *metaFilter {
	return &metaFilter{name: name, decode: decodeCollectionMetaState}
}

func newListsMetaFilter() *metaFilter {
	return &metaFilter{name: "kitedb.ListsMetaFilter", decode: decodeListsMetaState}
}

func (f *metaFilter) Name() string { return f.name }

func (f *metaFilter) Filter(level int, key, value []byte) (kv.Decision, []byte) {
	m, err := f.decode(value)
	if err != nil {
		return kv.DecisionKeep, nil
	}
	stale := m.timestamp != 0 && int64(m.timestamp) <= nowSeconds()
	if stale && m.size == 0 {
		return kv.DecisionDrop, nil
	}
	return kv.DecisionKeep, nil
}

// ----------------------------------------------------------------------
// Data filters
// ----------------------------------------------------------------------

// dataFilter reclaims sub-records whose owning meta is gone, stale,
// empty, or on a different version.
type dataFilter struct {
	name   string
	decode metaDecoder
	ref    atomic.Pointer[metaBackref]
}

func newDataFilter(name string, decode metaDecoder) *dataFilter {
	return &dataFilter{name: name, decode: decode}
}

// publish installs the back-reference once the owning store is open.
func (f *dataFilter) publish(db kv.DB, metaCF kv.ColumnFamilyHandle) {
	f.ref.Store(&metaBackref{db: db, metaCF: metaCF})
}

func (f *dataFilter) Name() string { return f.name }

func (f *dataFilter) Filter(level int, key, value []byte) (kv.Decision, []byte) {
	ref := f.ref.Load()
	if ref == nil || ref.db == nil {
		// Store still opening; never reclaim on a partial view.
		return kv.DecisionKeep, nil
	}
	userKey, version, _, err := codec.DecodeDataKey(key)
	if err != nil {
		return kv.DecisionKeep, nil
	}
	metaValue, err := ref.db.Get(kv.ReadOptions{}, ref.metaCF, userKey)
	if err != nil {
		if err == kv.ErrNotFound {
			return kv.DecisionDrop, nil
		}
		return kv.DecisionKeep, nil
	}
	m, err := f.decode(metaValue)
	if err != nil {
		return kv.DecisionKeep, nil
	}
	if m.timestamp != 0 && int64(m.timestamp) <= nowSeconds() {
		return kv.DecisionDrop, nil
	}
	if m.version != version {
		return kv.DecisionDrop, nil
	}
	if m.size == 0 {
		return kv.DecisionDrop, nil
	}
	return kv.DecisionKeep, nil
}
