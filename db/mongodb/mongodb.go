// Package mongodb implements db.Database on top of a MongoDB collection.
//
// Keys are stored hex encoded in the document _id, which keeps the
// lexicographic byte order of the keys and allows prefix scans with an
// anchored regular expression. Write transactions are buffered in memory and
// flushed with a single ordered bulk write on Commit. Against a replica set
// or a sharded cluster the bulk write runs inside a session transaction, so a
// failed Commit leaves nothing behind. A standalone server has no
// transactions: a Commit that fails halfway keeps the writes that preceded
// the failure. Conflicts between concurrent transactions are not detected,
// callers serialize their writers.
package mongodb

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/vocdoni/ballotbox/db"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// DefaultURL is used when MONGODB_URL is not set.
	DefaultURL = "mongodb://127.0.0.1:27017"

	collectionName = "kv"
	opTimeout      = 15 * time.Second
)

var validDBName = regexp.MustCompile(`^[A-Za-z0-9_-]{1,48}$`)

type document struct {
	ID    string `bson:"_id"`
	Value []byte `bson:"value"`
}

// MongoDB implements db.Database.
type MongoDB struct {
	client     *mongo.Client
	collection *mongo.Collection
	// transactional is set when the deployment supports multi document
	// transactions.
	transactional bool
}

var _ db.Database = (*MongoDB)(nil)

// New connects to the server at $MONGODB_URL (or DefaultURL) and uses
// opts.Path as the database name. Paths that are not valid database names
// (like directories) are hashed into one.
func New(opts db.Options) (*MongoDB, error) {
	url := os.Getenv("MONGODB_URL")
	if url == "" {
		url = DefaultURL
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(url))
	if err != nil {
		return nil, fmt.Errorf("mongodb: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongodb: ping: %w", err)
	}
	transactional, err := supportsTransactions(ctx, client)
	if err != nil {
		return nil, err
	}
	return &MongoDB{
		client:        client,
		collection:    client.Database(databaseName(opts.Path)).Collection(collectionName),
		transactional: transactional,
	}, nil
}

// supportsTransactions reports whether the server is a replica set member or
// a mongos router.
func supportsTransactions(ctx context.Context, client *mongo.Client) (bool, error) {
	var hello struct {
		SetName string `bson:"setName"`
		Msg     string `bson:"msg"`
	}
	err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello)
	if err != nil {
		return false, fmt.Errorf("mongodb: hello: %w", err)
	}
	return hello.SetName != "" || hello.Msg == "isdbgrid", nil
}

func databaseName(path string) string {
	if validDBName.MatchString(path) {
		return path
	}
	h := sha256.Sum256([]byte(path))
	return "ballotbox_" + hex.EncodeToString(h[:8])
}

// Close implements db.Database.
func (m *MongoDB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// Compact implements db.Database. MongoDB manages its own storage, so it is
// a no-op.
func (*MongoDB) Compact() error {
	return nil
}

// Get implements db.Database.
func (m *MongoDB) Get(key []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	var doc document
	err := m.collection.FindOne(ctx, bson.M{"_id": hex.EncodeToString(key)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb: get: %w", err)
	}
	return doc.Value, nil
}

// Iterate implements db.Database.
func (m *MongoDB) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	entries, err := m.scan(prefix)
	if err != nil {
		return err
	}
	iterateEntries(entries, prefix, callback)
	return nil
}

// scan loads every entry under prefix, keyed by the hex encoded full key.
func (m *MongoDB) scan(prefix []byte) (map[string][]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	filter := bson.M{}
	if len(prefix) > 0 {
		filter = bson.M{"_id": bson.M{"$regex": "^" + hex.EncodeToString(prefix)}}
	}
	cursor, err := m.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongodb: find: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	entries := make(map[string][]byte)
	for cursor.Next(ctx) {
		var doc document
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongodb: decode: %w", err)
		}
		entries[doc.ID] = doc.Value
	}
	return entries, cursor.Err()
}

// WriteTx implements db.Database.
func (m *MongoDB) WriteTx() db.WriteTx {
	return &WriteTx{db: m, writes: make(map[string]*[]byte)}
}

// WriteTx buffers writes until Commit.
type WriteTx struct {
	db     *MongoDB
	writes map[string]*[]byte // hex key -> value, nil means delete
}

var _ db.WriteTx = (*WriteTx)(nil)

// Get implements db.WriteTx.
func (tx *WriteTx) Get(key []byte) ([]byte, error) {
	if v, ok := tx.writes[hex.EncodeToString(key)]; ok {
		if v == nil {
			return nil, db.ErrKeyNotFound
		}
		return bytes.Clone(*v), nil
	}
	return tx.db.Get(key)
}

// Iterate implements db.WriteTx.
func (tx *WriteTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	entries, err := tx.db.scan(prefix)
	if err != nil {
		return err
	}
	hexPrefix := hex.EncodeToString(prefix)
	for k, v := range tx.writes {
		if !strings.HasPrefix(k, hexPrefix) {
			continue
		}
		if v == nil {
			delete(entries, k)
			continue
		}
		entries[k] = *v
	}
	iterateEntries(entries, prefix, callback)
	return nil
}

// Set implements db.WriteTx.
func (tx *WriteTx) Set(key, value []byte) error {
	v := bytes.Clone(value)
	tx.writes[hex.EncodeToString(key)] = &v
	return nil
}

// Delete implements db.WriteTx.
func (tx *WriteTx) Delete(key []byte) error {
	tx.writes[hex.EncodeToString(key)] = nil
	return nil
}

// Commit implements db.WriteTx.
func (tx *WriteTx) Commit() error {
	if tx.writes == nil {
		return fmt.Errorf("mongodb: transaction already closed")
	}
	defer tx.Discard()
	if len(tx.writes) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(tx.writes))
	for k, v := range tx.writes {
		if v == nil {
			models = append(models, mongo.NewDeleteOneModel().SetFilter(bson.M{"_id": k}))
			continue
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": k}).
			SetReplacement(document{ID: k, Value: *v}).
			SetUpsert(true))
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := tx.db.bulkWrite(ctx, models); err != nil {
		return fmt.Errorf("mongodb: commit: %w", err)
	}
	return nil
}

// bulkWrite applies models in order, all or nothing when the deployment
// supports transactions.
func (m *MongoDB) bulkWrite(ctx context.Context, models []mongo.WriteModel) error {
	opts := options.BulkWrite().SetOrdered(true)
	if !m.transactional {
		_, err := m.collection.BulkWrite(ctx, models, opts)
		return err
	}
	sess, err := m.client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return m.collection.BulkWrite(sc, models, opts)
	})
	return err
}

// Discard implements db.WriteTx.
func (tx *WriteTx) Discard() {
	tx.writes = nil
}

func iterateEntries(entries map[string][]byte, prefix []byte, callback func(key, value []byte) bool) {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		key, err := hex.DecodeString(k)
		if err != nil {
			continue
		}
		if !callback(key[len(prefix):], entries[k]) {
			return
		}
	}
}
