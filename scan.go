package kitedb

// The cross-type SCAN walks the five typed keyspaces in a fixed order
// (strings, hashes, sets, lists, zsets). A suspended scan stores its
// resume marker -- a one-byte type tag followed by the next user key --
// in a bounded LRU keyed by the returned cursor. Reads promote entries;
// unknown cursors restart from the beginning; a returned cursor of 0
// means the iteration is complete.

type typeScanner interface {
	ScanRange(startKey, pattern string, count int64) ([]string, int64, string, bool, error)
}

func (db *DB) scannerOf(t DataType) typeScanner {
	switch t {
	case TypeStrings:
		return db.strings
	case TypeHashes:
		return db.hashes
	case TypeSets:
		return db.sets
	case TypeLists:
		return db.lists
	default:
		return db.zsets
	}
}

// getStartKey resolves a cursor to its stored resume marker.
func (db *DB) getStartKey(cursor int64) (string, bool) {
	db.cursorsMu.Lock()
	defer db.cursorsMu.Unlock()
	v, ok := db.cursors.Get(cursor)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// storeAndGetCursor stores the resume marker under cursor, bumping the
// cursor past collisions, and returns the cursor actually used.
func (db *DB) storeAndGetCursor(cursor int64, marker string) int64 {
	db.cursorsMu.Lock()
	defer db.cursorsMu.Unlock()
	for db.cursors.Contains(cursor) {
		cursor++
	}
	db.cursors.Add(cursor, marker)
	return cursor
}

// Scan pages through every live user key of every type, filtered by
// pattern, returning at most count keys per call together with the
// cursor for the next call (0 when exhausted).
func (db *DB) Scan(cursor int64, pattern string, count int64) ([]string, int64, error) {
	if cursor < 0 || count <= 0 {
		return nil, 0, nil
	}
	for _, t := range scanTagOrder {
		db.recordRead(t)
	}

	startKey := ""
	tagIndex := 0
	if cursor != 0 {
		marker, ok := db.getStartKey(cursor)
		if !ok || marker == "" {
			cursor = 0
		} else {
			tag := marker[0]
			startKey = marker[1:]
			tagIndex = len(scanTagOrder) - 1
			for i, t := range scanTagOrder {
				if scanTagOf(t) == tag {
					tagIndex = i
					break
				}
			}
		}
	}

	var keys []string
	remaining := count
	for ; tagIndex < len(scanTagOrder); tagIndex++ {
		t := scanTagOrder[tagIndex]
		found, left, nextKey, finished, err := db.scannerOf(t).ScanRange(startKey, pattern, remaining)
		if err != nil {
			return nil, 0, err
		}
		keys = append(keys, found...)
		remaining = left
		startKey = ""

		if remaining > 0 {
			// This type is exhausted but the budget is not; fall
			// through to the next type.
			continue
		}
		if !finished {
			marker := string(scanTagOf(t)) + nextKey
			return keys, db.storeAndGetCursor(cursor+count, marker), nil
		}
		if tagIndex+1 < len(scanTagOrder) {
			marker := string(scanTagOf(scanTagOrder[tagIndex+1]))
			return keys, db.storeAndGetCursor(cursor+count, marker), nil
		}
		// Budget exhausted exactly at the end of the last type.
		return keys, 0, nil
	}
	return keys, 0, nil
}
