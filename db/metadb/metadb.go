// Package metadb opens a db.Database implementation by type name.
package metadb

import (
	"fmt"
	"testing"

	"github.com/vocdoni/ballotbox/db"
	"github.com/vocdoni/ballotbox/db/inmemory"
	"github.com/vocdoni/ballotbox/db/mongodb"
	"github.com/vocdoni/ballotbox/db/pebbledb"
)

// New opens a database of type typ (db.TypePebble, db.TypeInMem or
// db.TypeMongo) at dir.
func New(typ, dir string) (db.Database, error) {
	opts := db.Options{Path: dir}
	switch typ {
	case db.TypePebble:
		return pebbledb.New(opts)
	case db.TypeInMem:
		return inmemory.New(opts)
	case db.TypeMongo:
		return mongodb.New(opts)
	default:
		return nil, fmt.Errorf("invalid database type %q", typ)
	}
}

// NewTest returns a pebble database in a temporary directory that is closed
// when the test finishes.
func NewTest(tb testing.TB) db.Database {
	tb.Helper()
	database, err := New(db.TypePebble, tb.TempDir())
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(func() {
		if err := database.Close(); err != nil {
			tb.Error(err)
		}
	})
	return database
}

// ForTest returns an in-memory database, for tests that don't need
// persistence.
func ForTest() db.Database {
	database, err := inmemory.New(db.Options{})
	if err != nil {
		panic(err)
	}
	return database
}
