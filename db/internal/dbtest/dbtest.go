// Package dbtest holds a conformance suite run against every db.Database
// implementation.
package dbtest

import (
	"fmt"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/ballotbox/db"
	"github.com/vocdoni/ballotbox/db/prefixeddb"
)

// TestWriteTx checks read-your-writes, commit and discard semantics.
func TestWriteTx(t *testing.T, database db.Database) {
	c := qt.New(t)

	wTx := database.WriteTx()
	defer wTx.Discard()

	_, err := wTx.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	c.Assert(wTx.Set([]byte("a"), []byte("b")), qt.IsNil)
	v, err := wTx.Get([]byte("a"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("b"))

	// not visible before commit
	_, err = database.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	c.Assert(wTx.Commit(), qt.IsNil)
	v, err = database.Get([]byte("a"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("b"))

	// discarded writes are lost
	wTx = database.WriteTx()
	c.Assert(wTx.Set([]byte("c"), []byte("d")), qt.IsNil)
	c.Assert(wTx.Delete([]byte("a")), qt.IsNil)
	wTx.Discard()
	_, err = database.Get([]byte("c"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
	_, err = database.Get([]byte("a"))
	c.Assert(err, qt.IsNil)

	// committed deletes are applied
	wTx = database.WriteTx()
	c.Assert(wTx.Delete([]byte("a")), qt.IsNil)
	_, err = wTx.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
	c.Assert(wTx.Commit(), qt.IsNil)
	_, err = database.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
}

// TestIterate checks ordering, prefix stripping and early termination.
func TestIterate(t *testing.T, database db.Database) {
	c := qt.New(t)

	wTx := database.WriteTx()
	for i := 0; i < 10; i++ {
		c.Assert(wTx.Set(fmt.Appendf(nil, "p/%02d", i), fmt.Appendf(nil, "v%d", i)), qt.IsNil)
	}
	c.Assert(wTx.Set([]byte("q/00"), []byte("other")), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)

	var keys []string
	c.Assert(database.Iterate([]byte("p/"), func(k, v []byte) bool {
		keys = append(keys, string(k))
		return true
	}), qt.IsNil)
	c.Assert(keys, qt.HasLen, 10)
	c.Assert(keys[0], qt.Equals, "00")
	c.Assert(keys[9], qt.Equals, "09")

	count := 0
	c.Assert(database.Iterate([]byte("p/"), func(k, v []byte) bool {
		count++
		return count < 3
	}), qt.IsNil)
	c.Assert(count, qt.Equals, 3)

	// pending writes are merged while iterating a transaction
	wTx = database.WriteTx()
	defer wTx.Discard()
	c.Assert(wTx.Set([]byte("p/10"), []byte("v10")), qt.IsNil)
	c.Assert(wTx.Delete([]byte("p/00")), qt.IsNil)
	keys = nil
	c.Assert(wTx.Iterate([]byte("p/"), func(k, v []byte) bool {
		keys = append(keys, string(k))
		return true
	}), qt.IsNil)
	c.Assert(keys, qt.HasLen, 10)
	c.Assert(keys[0], qt.Equals, "01")
	c.Assert(keys[9], qt.Equals, "10")
}

// TestPrefixed checks that prefixed views share one transaction and do not
// see each other's keys.
func TestPrefixed(t *testing.T, database db.Database) {
	c := qt.New(t)

	wTx := database.WriteTx()
	one := prefixeddb.NewPrefixedWriteTx(wTx, []byte("one/"))
	two := prefixeddb.NewPrefixedWriteTx(wTx, []byte("two/"))
	c.Assert(one.Set([]byte("k"), []byte("1")), qt.IsNil)
	c.Assert(two.Set([]byte("k"), []byte("2")), qt.IsNil)
	c.Assert(one.Commit(), qt.IsNil)

	v, err := prefixeddb.NewPrefixedReader(database, []byte("one/")).Get([]byte("k"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("1"))
	v, err = database.Get([]byte("two/k"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("2"))

	var keys []string
	c.Assert(prefixeddb.NewPrefixedDatabase(database, []byte("two/")).Iterate(nil, func(k, _ []byte) bool {
		keys = append(keys, string(k))
		return true
	}), qt.IsNil)
	c.Assert(keys, qt.DeepEquals, []string{"k"})
}

// TestConcurrentWriteTx checks conflict detection, for implementations that
// support it.
func TestConcurrentWriteTx(t *testing.T, database db.Database) {
	c := qt.New(t)

	first := database.WriteTx()
	second := database.WriteTx()
	_, err := first.Get([]byte("counter"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
	_, err = second.Get([]byte("counter"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	c.Assert(first.Set([]byte("counter"), []byte{1}), qt.IsNil)
	c.Assert(second.Set([]byte("counter"), []byte{1}), qt.IsNil)
	c.Assert(first.Commit(), qt.IsNil)
	c.Assert(second.Commit(), qt.ErrorIs, db.ErrConflict)
}
