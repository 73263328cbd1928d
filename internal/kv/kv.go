// Package kv declares the contract KiteDB expects from the underlying
// ordered key-value engine: column families, iterators with snapshot
// isolation, atomic write batches, user comparators and compaction
// filter plug points. The engine itself is a collaborator; the bundled
// implementation lives in kv/memkv.
package kv

import (
	"errors"

	"go.uber.org/zap"
)

// ErrNotFound is returned by DB.Get when the key has no live record in
// the requested column family.
var ErrNotFound = errors.New("kv: not found")

// Comparator imposes a total order on keys of one column family. The
// name is persisted with the store; reopening with a comparator of a
// different name is a breaking change and must fail.
type Comparator interface {
	Name() string
	// Compare returns a value <0, 0 or >0 as a sorts before, equal to
	// or after b.
	Compare(a, b []byte) int
}

// Decision is a compaction filter verdict for one record.
type Decision int

const (
	// DecisionKeep retains the record unchanged.
	DecisionKeep Decision = iota
	// DecisionDrop removes the record.
	DecisionDrop
	// DecisionRewrite replaces the record's value with the returned bytes.
	DecisionRewrite
)

// CompactionFilter is consulted for every record visited during a
// compaction pass over its column family. Filters are purely
// decisional; key and value are borrowed and must not be retained.
type CompactionFilter interface {
	Name() string
	Filter(level int, key, value []byte) (Decision, []byte)
}

// ColumnFamilyHandle identifies an open column family of a DB.
type ColumnFamilyHandle interface {
	Name() string
}

// ColumnFamilyDescriptor names a column family and its per-CF options
// at open time.
type ColumnFamilyDescriptor struct {
	Name    string
	Options ColumnFamilyOptions
}

// ColumnFamilyOptions configures ordering and garbage collection of a
// single column family. A nil Comparator means bytewise ordering.
type ColumnFamilyOptions struct {
	Comparator       Comparator
	CompactionFilter CompactionFilter
}

// Options configures a store at open time. Unknown engines may ignore
// fields that do not apply to them.
type Options struct {
	// CreateIfMissing creates the store directory and column families
	// on first open. Opening a missing store without it is an error.
	CreateIfMissing bool

	// SyncWrites fsyncs the write-ahead log on every committed batch.
	SyncWrites bool

	// WriteBufferSize is a sizing hint for the engine's in-memory
	// buffering, in bytes. Zero means the engine default.
	WriteBufferSize int

	// CompactionIntervalSeconds is the period of the engine's background
	// compaction loop. Zero disables background compaction; filters then
	// run only on explicit CompactRange calls.
	CompactionIntervalSeconds int

	// CheckpointOnClose writes a compressed checkpoint and truncates the
	// WAL when the store closes.
	CheckpointOnClose bool

	// Logger receives engine lifecycle and compaction events. Nil means
	// no logging.
	Logger *zap.Logger
}

// ReadOptions parameterizes reads. A non-nil Snapshot pins the read to
// the state observed when the snapshot was acquired.
type ReadOptions struct {
	Snapshot Snapshot
}

// WriteOptions parameterizes writes.
type WriteOptions struct {
	// Sync overrides Options.SyncWrites for this write when true.
	Sync bool
}

// Snapshot is an opaque immutable view of the whole store. Acquired
// from DB.GetSnapshot and returned through DB.ReleaseSnapshot; only the
// engine that issued it can interpret it.
type Snapshot interface{}

// WriteBatch accumulates puts and deletes across column families and
// commits atomically through DB.Write.
type WriteBatch interface {
	Put(cf ColumnFamilyHandle, key, value []byte)
	Delete(cf ColumnFamilyHandle, key []byte)
	Count() int
	Clear()
}

// Iterator walks one column family in comparator order. The returned
// key and value slices are only valid until the next positioning call.
type Iterator interface {
	Valid() bool
	SeekToFirst()
	SeekToLast()
	Seek(key []byte)
	Next()
	Prev()
	Key() []byte
	Value() []byte
	Close() error
}

// DB is an open ordered key-value store with column families.
//
// All methods are safe for concurrent use. Write and the single-record
// write helpers commit atomically; Get returns ErrNotFound for absent
// keys so callers can distinguish absence from IO failure.
type DB interface {
	Get(opts ReadOptions, cf ColumnFamilyHandle, key []byte) ([]byte, error)
	Put(opts WriteOptions, cf ColumnFamilyHandle, key, value []byte) error
	Delete(opts WriteOptions, cf ColumnFamilyHandle, key []byte) error

	NewWriteBatch() WriteBatch
	Write(opts WriteOptions, batch WriteBatch) error

	NewIterator(opts ReadOptions, cf ColumnFamilyHandle) Iterator
	GetSnapshot() Snapshot
	ReleaseSnapshot(snap Snapshot)

	// CompactRange synchronously applies the column family's compaction
	// filter to every record in [begin, end). Nil bounds mean the whole
	// keyspace.
	CompactRange(cf ColumnFamilyHandle, begin, end []byte) error

	Close() error
}

// DefaultColumnFamilyName is the name of the column family every store
// opens implicitly; type handlers keep their meta records there.
const DefaultColumnFamilyName = "default"
