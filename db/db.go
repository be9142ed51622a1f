// Package db defines the key-value storage abstraction used by the ballotbox
// node. Implementations live in the subpackages (inmemory, pebbledb and
// mongodb) and metadb selects one of them by type name.
package db

import (
	"errors"
	"io"
)

const (
	// TypePebble selects the pebble (LSM tree) on-disk database.
	TypePebble = "pebble"
	// TypeInMem selects the ephemeral in-memory database.
	TypeInMem = "inmem"
	// TypeMongo selects the MongoDB backed database.
	TypeMongo = "mongodb"
)

var (
	// ErrKeyNotFound is returned by Get when the key does not exist.
	ErrKeyNotFound = errors.New("key not found")
	// ErrConflict is returned by Commit when a concurrent transaction
	// modified a key read or written by the committing one. Not every
	// implementation detects conflicts.
	ErrConflict = errors.New("transaction conflict")
)

// Options holds the options used to open a database.
type Options struct {
	// Path is the directory for on-disk databases, or the database name for
	// network backed ones.
	Path string
}

// Reader is the read side of a database or a transaction.
type Reader interface {
	// Get returns a copy of the value stored under key, or ErrKeyNotFound.
	Get(key []byte) ([]byte, error)
	// Iterate calls callback, in lexicographic key order, for every entry
	// whose key starts with prefix. The key passed to the callback has the
	// prefix removed. Iteration stops when callback returns false. Key and
	// value are only valid during the callback.
	Iterate(prefix []byte, callback func(key, value []byte) bool) error
}

// WriteTx is a read-write transaction. Reads see the writes of the same
// transaction. Nothing is visible outside of it until Commit succeeds.
type WriteTx interface {
	Reader
	Set(key, value []byte) error
	Delete(key []byte) error
	// Commit applies the pending writes. A transaction can't be used
	// after Commit, even if it failed.
	Commit() error
	// Discard drops the pending writes. It is safe to call Discard after
	// Commit, so it can be deferred.
	Discard()
}

// Database is a key-value store that supports write transactions.
type Database interface {
	io.Closer
	Reader
	WriteTx() WriteTx
	Compact() error
}
