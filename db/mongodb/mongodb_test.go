package mongodb

import (
	"os"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/ballotbox/db"
	"github.com/vocdoni/ballotbox/db/internal/dbtest"
	"github.com/vocdoni/ballotbox/util"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func newDB(t *testing.T) *MongoDB {
	if os.Getenv("MONGODB_URL") == "" {
		t.Skip("MONGODB_URL not set")
	}
	database, err := New(db.Options{Path: util.RandomHex(16)})
	qt.Assert(t, err, qt.IsNil)
	t.Cleanup(func() {
		qt.Check(t, database.collection.Database().Drop(t.Context()), qt.IsNil)
		qt.Check(t, database.Close(), qt.IsNil)
	})
	return database
}

func TestWriteTx(t *testing.T) {
	dbtest.TestWriteTx(t, newDB(t))
}

func TestIterate(t *testing.T) {
	dbtest.TestIterate(t, newDB(t))
}

func TestPrefixed(t *testing.T) {
	dbtest.TestPrefixed(t, newDB(t))
}

func TestFailedCommitLeavesNothing(t *testing.T) {
	c := qt.New(t)
	database := newDB(t)
	if !database.transactional {
		c.Skip("transactions need a replica set")
	}
	// a unique index on the value makes the second write of the batch fail
	_, err := database.collection.Indexes().CreateOne(t.Context(), mongo.IndexModel{
		Keys:    bson.D{{Key: "value", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	c.Assert(err, qt.IsNil)

	tx := database.WriteTx()
	c.Assert(tx.Set([]byte("a"), []byte("same")), qt.IsNil)
	c.Assert(tx.Set([]byte("b"), []byte("same")), qt.IsNil)
	c.Assert(tx.Commit(), qt.Not(qt.IsNil))

	for _, key := range []string{"a", "b"} {
		_, err := database.Get([]byte(key))
		c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound, qt.Commentf("key %s", key))
	}

	tx = database.WriteTx()
	c.Assert(tx.Set([]byte("a"), []byte("one")), qt.IsNil)
	c.Assert(tx.Set([]byte("b"), []byte("two")), qt.IsNil)
	c.Assert(tx.Commit(), qt.IsNil)
	value, err := database.Get([]byte("b"))
	c.Assert(err, qt.IsNil)
	c.Assert(value, qt.DeepEquals, []byte("two"))
}

func TestDatabaseName(t *testing.T) {
	c := qt.New(t)
	c.Assert(databaseName("elections"), qt.Equals, "elections")
	name := databaseName("/home/user/.ballotbox")
	c.Assert(name, qt.Matches, `ballotbox_[0-9a-f]{16}`)
	c.Assert(databaseName("/home/user/.ballotbox"), qt.Equals, name)
}
