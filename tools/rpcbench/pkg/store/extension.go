package store

import "fmt"

// PushbackExtension is the extension every tenant registers in the
// benchmark, named "pushback". It performs a short, fixed sequence of
// local reads against the shared database handle before completing: the
// local compute an extension would normally interleave with those reads
// is elided, since it has no externally observable effect on the
// continuation contract.
type PushbackExtension struct {
	Store    *Store
	TableID  uint64
	NumReads int
}

// Step reads the next key in sequence ("k0", "k1", ...) until NumReads
// keys have been read, then completes.
func (e *PushbackExtension) Step(tenant uint32, rwset map[string][]byte) (value []byte, key string, done bool) {
	if len(rwset) >= e.NumReads {
		return []byte("ok"), "", true
	}
	key = fmt.Sprintf("k%d", len(rwset))
	v, ok := e.Store.Get(tenant, e.TableID, []byte(key))
	if !ok {
		v = []byte{}
	}
	return v, key, false
}
