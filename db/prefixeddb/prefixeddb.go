// Package prefixeddb provides views of a db.Database, db.Reader or db.WriteTx
// where every key is transparently prefixed, so several namespaces can share
// the same underlying database.
package prefixeddb

import (
	"github.com/vocdoni/ballotbox/db"
)

func prefixed(prefix, key []byte) []byte {
	out := make([]byte, 0, len(prefix)+len(key))
	out = append(out, prefix...)
	return append(out, key...)
}

// PrefixedReader wraps a db.Reader adding a prefix to every key.
type PrefixedReader struct {
	reader db.Reader
	prefix []byte
}

var _ db.Reader = (*PrefixedReader)(nil)

// NewPrefixedReader returns a db.Reader whose keys are prefixed by prefix.
func NewPrefixedReader(reader db.Reader, prefix []byte) *PrefixedReader {
	return &PrefixedReader{reader: reader, prefix: prefix}
}

// Get implements db.Reader.
func (r *PrefixedReader) Get(key []byte) ([]byte, error) {
	return r.reader.Get(prefixed(r.prefix, key))
}

// Iterate implements db.Reader.
func (r *PrefixedReader) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	return r.reader.Iterate(prefixed(r.prefix, prefix), callback)
}

// PrefixedWriteTx wraps a db.WriteTx adding a prefix to every key. Commit and
// Discard act on the wrapped transaction, so several prefixed views of the
// same transaction are committed at once.
type PrefixedWriteTx struct {
	tx     db.WriteTx
	prefix []byte
}

var _ db.WriteTx = (*PrefixedWriteTx)(nil)

// NewPrefixedWriteTx returns a db.WriteTx whose keys are prefixed by prefix.
func NewPrefixedWriteTx(tx db.WriteTx, prefix []byte) *PrefixedWriteTx {
	return &PrefixedWriteTx{tx: tx, prefix: prefix}
}

// Get implements db.WriteTx.
func (t *PrefixedWriteTx) Get(key []byte) ([]byte, error) {
	return t.tx.Get(prefixed(t.prefix, key))
}

// Iterate implements db.WriteTx.
func (t *PrefixedWriteTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	return t.tx.Iterate(prefixed(t.prefix, prefix), callback)
}

// Set implements db.WriteTx.
func (t *PrefixedWriteTx) Set(key, value []byte) error {
	return t.tx.Set(prefixed(t.prefix, key), value)
}

// Delete implements db.WriteTx.
func (t *PrefixedWriteTx) Delete(key []byte) error {
	return t.tx.Delete(prefixed(t.prefix, key))
}

// Commit implements db.WriteTx.
func (t *PrefixedWriteTx) Commit() error {
	return t.tx.Commit()
}

// Discard implements db.WriteTx.
func (t *PrefixedWriteTx) Discard() {
	t.tx.Discard()
}

// PrefixedDatabase wraps a db.Database adding a prefix to every key.
type PrefixedDatabase struct {
	db     db.Database
	prefix []byte
}

var _ db.Database = (*PrefixedDatabase)(nil)

// NewPrefixedDatabase returns a db.Database whose keys are prefixed by prefix.
func NewPrefixedDatabase(database db.Database, prefix []byte) *PrefixedDatabase {
	return &PrefixedDatabase{db: database, prefix: prefix}
}

// Get implements db.Database.
func (d *PrefixedDatabase) Get(key []byte) ([]byte, error) {
	return d.db.Get(prefixed(d.prefix, key))
}

// Iterate implements db.Database.
func (d *PrefixedDatabase) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	return d.db.Iterate(prefixed(d.prefix, prefix), callback)
}

// WriteTx implements db.Database.
func (d *PrefixedDatabase) WriteTx() db.WriteTx {
	return NewPrefixedWriteTx(d.db.WriteTx(), d.prefix)
}

// Compact implements db.Database.
func (d *PrefixedDatabase) Compact() error {
	return d.db.Compact()
}

// Close implements db.Database. It closes the underlying database.
func (d *PrefixedDatabase) Close() error {
	return d.db.Close()
}
