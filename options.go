package kitedb

import (
	"encoding/json"
	"os"

	"go.uber.org/zap"

	"github.com/kitedb/kitedb/internal/kv"
)

// Options configures a database at open time. The engine pass-through
// fields reach the underlying stores unchanged.
type Options struct {
	// CreateIfMissing creates the database directories and column
	// families on first open; required for the very first open.
	CreateIfMissing bool `json:"create_if_missing"`

	// SyncWrites fsyncs the write-ahead log on every committed batch.
	SyncWrites bool `json:"sync_writes"`

	// WriteBufferSize is a per-store buffering hint in bytes; zero
	// means the engine default.
	WriteBufferSize int `json:"write_buffer_size"`

	// CompactionIntervalSeconds is the period of each store's
	// background compaction loop; zero disables it, leaving garbage
	// collection to explicit Compact calls.
	CompactionIntervalSeconds int `json:"compaction_interval_seconds"`

	// CheckpointOnClose writes a compressed checkpoint and truncates
	// the WAL when a store closes, shortening the next recovery.
	CheckpointOnClose bool `json:"checkpoint_on_close"`

	// Logger receives lifecycle and compaction events. Nil disables
	// logging.
	Logger *zap.Logger `json:"-"`
}

// DefaultOptions returns the default configuration.
func DefaultOptions() *Options {
	return &Options{
		CreateIfMissing:           true,
		SyncWrites:                false,
		CompactionIntervalSeconds: 60,
		CheckpointOnClose:         true,
	}
}

// LoadOptions loads options from a JSON file, falling back to the
// defaults when the file does not exist.
func LoadOptions(path string) (*Options, error) {
	opts := DefaultOptions()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return opts, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, opts); err != nil {
		return nil, err
	}
	return opts, nil
}

// Save writes the options to a JSON file.
func (o *Options) Save(path string) error {
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (o *Options) kvOptions() kv.Options {
	return kv.Options{
		CreateIfMissing:           o.CreateIfMissing,
		SyncWrites:                o.SyncWrites,
		WriteBufferSize:           o.WriteBufferSize,
		CompactionIntervalSeconds: o.CompactionIntervalSeconds,
		CheckpointOnClose:         o.CheckpointOnClose,
		Logger:                    o.Logger,
	}
}
