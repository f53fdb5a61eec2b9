package cceh

// Open creates the index pool file at path with the given initial
// segment sizing if it does not exist, or reopens and replays it if
// it does. On restart, replay order matches the original insert
// order, so the rebuilt directory/segment layout is a deterministic
// (if not byte-identical) function of history — lookups return
// exactly what was last inserted for each key, which is the only
// externally observable guarantee spec.md's restart scenario (S4)
// requires.
func Open(path string, initialSize int) (*Table, error) {
	wal, existing, err := openWAL(path)
	if err != nil {
		return nil, err
	}

	t := Init(initialSize)
	t.wal = wal

	if existing {
		if err := wal.replay(func(key, value uint64) {
			t.applyInsert(key, value)
		}); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// Close releases the index pool's underlying file handle.
func (t *Table) Close() error {
	if t.wal == nil {
		return nil
	}
	return t.wal.Close()
}
