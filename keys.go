package kitedb

import (
	"github.com/kitedb/kitedb/status"
)

// Cross-type key commands fan out to every type handler and aggregate
// the per-type statuses into the map the caller passes back to its own
// clients.

type keyHandler interface {
	Expire(key string, ttl int64) error
	Expireat(key string, timestamp int64) error
	Persist(key string) error
	TTL(key string) (int64, error)
	Del(key string) error
}

func (db *DB) keyHandlers() map[DataType]keyHandler {
	return map[DataType]keyHandler{
		TypeStrings: db.strings,
		TypeHashes:  db.hashes,
		TypeSets:    db.sets,
		TypeLists:   db.lists,
		TypeZSets:   db.zsets,
	}
}

func (db *DB) fanOut(typeStatus map[DataType]error, op func(keyHandler) error) int32 {
	ret := int32(0)
	failed := false
	for _, t := range scanTagOrder {
		err := op(db.keyHandlers()[t])
		if err == nil {
			ret++
		} else if !status.IsNotFound(err) {
			failed = true
		}
		if typeStatus != nil {
			typeStatus[t] = err
		}
	}
	if failed {
		return -1
	}
	return ret
}

// Expire sets a relative TTL on the key in every type it lives in.
// Returns the number of types that accepted it, or -1 when any type
// reported a non-NotFound error. typeStatus, when non-nil, receives
// each type's status.
func (db *DB) Expire(key string, ttl int64, typeStatus map[DataType]error) int32 {
	for _, t := range scanTagOrder {
		db.recordWrite(t)
	}
	return db.fanOut(typeStatus, func(h keyHandler) error { return h.Expire(key, ttl) })
}

// Expireat is Expire with an absolute timestamp.
func (db *DB) Expireat(key string, timestamp int64, typeStatus map[DataType]error) int32 {
	for _, t := range scanTagOrder {
		db.recordWrite(t)
	}
	return db.fanOut(typeStatus, func(h keyHandler) error { return h.Expireat(key, timestamp) })
}

// Persist clears the TTL on the key in every type it lives in.
func (db *DB) Persist(key string, typeStatus map[DataType]error) int32 {
	for _, t := range scanTagOrder {
		db.recordWrite(t)
	}
	return db.fanOut(typeStatus, func(h keyHandler) error { return h.Persist(key) })
}

// Del removes each key from every type and returns the number of keys
// that existed in at least one type, or -1 when any handler reported a
// non-NotFound error. typeStatus, when non-nil, receives the last
// status per type.
func (db *DB) Del(keys []string, typeStatus map[DataType]error) int64 {
	for _, t := range scanTagOrder {
		db.recordWrite(t)
	}
	count := int64(0)
	failed := false
	for _, key := range keys {
		deleted := false
		for _, t := range scanTagOrder {
			err := db.keyHandlers()[t].Del(key)
			if err == nil {
				deleted = true
			} else if !status.IsNotFound(err) {
				failed = true
			}
			if typeStatus != nil {
				typeStatus[t] = err
			}
		}
		if deleted {
			count++
		}
	}
	if failed {
		return -1
	}
	return count
}

// TTL reports the key's remaining lifetime per type: -2 when the type
// has no live key, -1 when there is no expiry, otherwise the remaining
// seconds. Non-NotFound errors surface in typeStatus and as -2.
func (db *DB) TTL(key string, typeStatus map[DataType]error) map[DataType]int64 {
	for _, t := range scanTagOrder {
		db.recordRead(t)
	}
	out := make(map[DataType]int64, len(scanTagOrder))
	for _, t := range scanTagOrder {
		ttl, err := db.keyHandlers()[t].TTL(key)
		if err != nil {
			out[t] = -2
		} else {
			out[t] = ttl
		}
		if typeStatus != nil {
			typeStatus[t] = err
		}
	}
	return out
}

// Exists returns the number of the given keys that are live in at
// least one type.
func (db *DB) Exists(keys []string) int64 {
	for _, t := range scanTagOrder {
		db.recordRead(t)
	}
	count := int64(0)
	for _, key := range keys {
		found := false
		for _, t := range scanTagOrder {
			if _, err := db.keyHandlers()[t].TTL(key); err == nil {
				found = true
				break
			}
		}
		if found {
			count++
		}
	}
	return count
}
