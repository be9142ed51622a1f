// Package pebbledb implements db.Database on top of cockroachdb/pebble.
package pebbledb

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/cockroachdb/pebble"
	"github.com/vocdoni/ballotbox/db"
)

// PebbleDB implements db.Database.
type PebbleDB struct {
	db *pebble.DB
}

var _ db.Database = (*PebbleDB)(nil)

// New opens (or creates) a pebble database in opts.Path.
func New(opts db.Options) (*PebbleDB, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("pebble: missing database path")
	}
	if err := os.MkdirAll(opts.Path, 0o750); err != nil {
		return nil, fmt.Errorf("pebble: create dir: %w", err)
	}
	pdb, err := pebble.Open(opts.Path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble: open %s: %w", opts.Path, err)
	}
	return &PebbleDB{db: pdb}, nil
}

// Close implements db.Database.
func (p *PebbleDB) Close() error {
	return p.db.Close()
}

// Get implements db.Database.
func (p *PebbleDB) Get(key []byte) ([]byte, error) {
	return get(p.db, key)
}

// Iterate implements db.Database.
func (p *PebbleDB) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	iter, err := p.db.NewIter(prefixIterOptions(prefix))
	if err != nil {
		return err
	}
	return iterate(iter, prefix, callback)
}

// WriteTx implements db.Database. The transaction is an indexed pebble batch,
// so it reads its own writes. Pebble batches do not detect conflicts with
// other batches; callers must serialize conflicting transactions.
func (p *PebbleDB) WriteTx() db.WriteTx {
	return &WriteTx{batch: p.db.NewIndexedBatch()}
}

// Compact implements db.Database by compacting the whole key range.
func (p *PebbleDB) Compact() error {
	iter, err := p.db.NewIter(nil)
	if err != nil {
		return err
	}
	var first, last []byte
	if iter.First() {
		first = bytes.Clone(iter.Key())
	}
	if iter.Last() {
		last = bytes.Clone(iter.Key())
	}
	if err := iter.Close(); err != nil {
		return err
	}
	if first == nil || last == nil {
		return nil
	}
	// the end key is exclusive
	return p.db.Compact(first, append(last, 0), true)
}

// WriteTx implements db.WriteTx over a pebble indexed batch.
type WriteTx struct {
	batch *pebble.Batch
}

var _ db.WriteTx = (*WriteTx)(nil)

// Get implements db.WriteTx.
func (tx *WriteTx) Get(key []byte) ([]byte, error) {
	return get(tx.batch, key)
}

// Iterate implements db.WriteTx.
func (tx *WriteTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	iter, err := tx.batch.NewIter(prefixIterOptions(prefix))
	if err != nil {
		return err
	}
	return iterate(iter, prefix, callback)
}

// Set implements db.WriteTx.
func (tx *WriteTx) Set(key, value []byte) error {
	return tx.batch.Set(key, value, nil)
}

// Delete implements db.WriteTx.
func (tx *WriteTx) Delete(key []byte) error {
	return tx.batch.Delete(key, nil)
}

// Commit implements db.WriteTx.
func (tx *WriteTx) Commit() error {
	if tx.batch == nil {
		return fmt.Errorf("pebble: transaction already closed")
	}
	err := tx.batch.Commit(pebble.Sync)
	tx.Discard()
	return err
}

// Discard implements db.WriteTx.
func (tx *WriteTx) Discard() {
	if tx.batch == nil {
		return
	}
	_ = tx.batch.Close()
	tx.batch = nil
}

// get wraps pebble Get calls, translating not found errors and copying the
// value before releasing it.
func get(r pebble.Reader, key []byte) ([]byte, error) {
	val, closer, err := r.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	out := bytes.Clone(val)
	if err := closer.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func iterate(iter *pebble.Iterator, prefix []byte, callback func(key, value []byte) bool) error {
	for valid := iter.First(); valid; valid = iter.Next() {
		if !callback(iter.Key()[len(prefix):], iter.Value()) {
			break
		}
	}
	return iter.Close()
}

func prefixIterOptions(prefix []byte) *pebble.IterOptions {
	return &pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	}
}

// upperBound returns the smallest key greater than every key starting with
// prefix, or nil if there is none.
func upperBound(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
