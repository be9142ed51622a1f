// Package inmemory implements an ephemeral db.Database with optimistic
// transactions. It is used by tests and by nodes started with the inmem
// database type.
package inmemory

import (
	"bytes"
	"fmt"
	"slices"
	"sync"

	"github.com/vocdoni/ballotbox/db"
)

type entry struct {
	value   []byte
	version uint64
	deleted bool
}

// InMemoryDB implements an ephemeral in-memory db.Database. Every write bumps
// a global version so committing transactions can detect conflicting writes.
type InMemoryDB struct {
	mu          sync.RWMutex
	data        map[string]entry
	nextVersion uint64
}

var _ db.Database = (*InMemoryDB)(nil)

// New returns a new in-memory database. Options are ignored.
func New(_ db.Options) (*InMemoryDB, error) {
	return &InMemoryDB{data: make(map[string]entry)}, nil
}

// Close implements db.Database.
func (d *InMemoryDB) Close() error {
	return nil
}

// Compact implements db.Database. It drops the tombstones of deleted keys.
func (d *InMemoryDB) Compact() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, ent := range d.data {
		if ent.deleted {
			delete(d.data, k)
		}
	}
	return nil
}

// WriteTx implements db.Database.
func (d *InMemoryDB) WriteTx() db.WriteTx {
	d.mu.RLock()
	baseVer := d.nextVersion
	d.mu.RUnlock()
	return &WriteTx{
		db:      d,
		writes:  make(map[string]*[]byte),
		reads:   make(map[string]uint64),
		baseVer: baseVer,
	}
}

// Get implements db.Database.
func (d *InMemoryDB) Get(key []byte) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ent, ok := d.data[string(key)]
	if !ok || ent.deleted {
		return nil, db.ErrKeyNotFound
	}
	return bytes.Clone(ent.value), nil
}

// Iterate implements db.Database.
func (d *InMemoryDB) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	d.mu.RLock()
	entries := d.snapshot(prefix, nil)
	d.mu.RUnlock()
	iterateEntries(entries, prefix, callback)
	return nil
}

// snapshot copies the live entries under prefix. If versions is not nil, the
// version of each copied key is recorded there. Must be called holding mu.
func (d *InMemoryDB) snapshot(prefix []byte, versions map[string]uint64) map[string][]byte {
	entries := make(map[string][]byte)
	p := string(prefix)
	for k, ent := range d.data {
		if ent.deleted || len(k) < len(p) || k[:len(p)] != p {
			continue
		}
		entries[k] = bytes.Clone(ent.value)
		if versions != nil {
			versions[k] = ent.version
		}
	}
	return entries
}

func (d *InMemoryDB) version(key string) uint64 {
	return d.data[key].version
}

// WriteTx is an optimistic transaction over an InMemoryDB. It records the
// version of every key it touches and fails to commit if any of them changed.
type WriteTx struct {
	db      *InMemoryDB
	writes  map[string]*[]byte // nil value means delete
	reads   map[string]uint64
	baseVer uint64
	done    bool
}

var _ db.WriteTx = (*WriteTx)(nil)

func (tx *WriteTx) track(key string) {
	if _, ok := tx.reads[key]; ok {
		return
	}
	tx.db.mu.RLock()
	tx.reads[key] = tx.db.version(key)
	tx.db.mu.RUnlock()
}

// Get implements db.WriteTx.
func (tx *WriteTx) Get(key []byte) ([]byte, error) {
	k := string(key)
	if pending, ok := tx.writes[k]; ok {
		if pending == nil {
			return nil, db.ErrKeyNotFound
		}
		return bytes.Clone(*pending), nil
	}
	tx.track(k)
	return tx.db.Get(key)
}

// Iterate implements db.WriteTx. Pending writes of the transaction are merged
// into the committed entries.
func (tx *WriteTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	versions := make(map[string]uint64)
	tx.db.mu.RLock()
	entries := tx.db.snapshot(prefix, versions)
	tx.db.mu.RUnlock()
	for k, ver := range versions {
		if _, ok := tx.reads[k]; !ok {
			tx.reads[k] = ver
		}
	}
	for k, v := range tx.writes {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if v == nil {
			delete(entries, k)
			continue
		}
		entries[k] = bytes.Clone(*v)
	}
	iterateEntries(entries, prefix, callback)
	return nil
}

// Set implements db.WriteTx.
func (tx *WriteTx) Set(key, value []byte) error {
	k := string(key)
	tx.track(k)
	v := bytes.Clone(value)
	tx.writes[k] = &v
	return nil
}

// Delete implements db.WriteTx.
func (tx *WriteTx) Delete(key []byte) error {
	k := string(key)
	tx.track(k)
	tx.writes[k] = nil
	return nil
}

// Commit implements db.WriteTx. It returns db.ErrConflict if any key touched
// by the transaction was written after the transaction started.
func (tx *WriteTx) Commit() error {
	if tx.done {
		return fmt.Errorf("cannot commit inmemory tx: already committed or discarded")
	}
	tx.done = true

	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	for k, readVer := range tx.reads {
		if readVer > tx.baseVer || tx.db.version(k) != readVer {
			return db.ErrConflict
		}
	}
	for k, v := range tx.writes {
		tx.db.nextVersion++
		ent := entry{version: tx.db.nextVersion}
		if v == nil {
			ent.deleted = true
		} else {
			ent.value = *v
		}
		tx.db.data[k] = ent
	}
	return nil
}

// Discard implements db.WriteTx.
func (tx *WriteTx) Discard() {
	tx.writes = map[string]*[]byte{}
	tx.reads = map[string]uint64{}
	tx.done = true
}

func iterateEntries(entries map[string][]byte, prefix []byte, callback func(key, value []byte) bool) {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if !callback([]byte(k)[len(prefix):], entries[k]) {
			return
		}
	}
}
