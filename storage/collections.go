package storage

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/vocdoni/ballotbox/db"
)

var present = []byte{1}

// Set is a keyed set scoped to one election and one kind.
type Set struct {
	tx db.WriteTx
}

// Has reports whether key is a member.
func (s *Set) Has(key []byte) (bool, error) {
	_, err := s.tx.Get(key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Add inserts key and reports whether it was not already a member.
func (s *Set) Add(key []byte) (bool, error) {
	found, err := s.Has(key)
	if err != nil || found {
		return false, err
	}
	if err := s.tx.Set(key, present); err != nil {
		return false, err
	}
	return true, nil
}

// Members returns every key of the set in byte order.
func (s *Set) Members() ([][]byte, error) {
	var keys [][]byte
	if err := s.tx.Iterate(nil, func(k, _ []byte) bool {
		keys = append(keys, bytes.Clone(k))
		return true
	}); err != nil {
		return nil, err
	}
	return keys, nil
}

// Bag is an append-only list of values scoped to one election.
type Bag struct {
	items   db.WriteTx
	root    db.WriteTx
	sizeKey []byte
}

// Len returns the number of values in the bag.
func (b *Bag) Len() (uint64, error) {
	v, err := b.root.Get(b.sizeKey)
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return decodeUint64(v)
}

// Append adds value at the end of the bag and returns its sequence number.
func (b *Bag) Append(value []byte) (uint64, error) {
	seq, err := b.Len()
	if err != nil {
		return 0, err
	}
	if err := b.items.Set(binary.BigEndian.AppendUint64(nil, seq), value); err != nil {
		return 0, err
	}
	if err := b.root.Set(b.sizeKey, binary.BigEndian.AppendUint64(nil, seq+1)); err != nil {
		return 0, err
	}
	return seq, nil
}

// All returns every value in insertion order.
func (b *Bag) All() ([][]byte, error) {
	var values [][]byte
	if err := b.items.Iterate(nil, func(_, v []byte) bool {
		values = append(values, bytes.Clone(v))
		return true
	}); err != nil {
		return nil, err
	}
	return values, nil
}

// Counter holds u64 counters keyed by label, missing labels count zero.
type Counter struct {
	tx db.WriteTx
}

// Get returns the value of a counter.
func (c *Counter) Get(label string) (uint64, error) {
	v, err := c.tx.Get([]byte(label))
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return decodeUint64(v)
}

// Incr increments a counter by one and returns the new value.
func (c *Counter) Incr(label string) (uint64, error) {
	n, err := c.Get(label)
	if err != nil {
		return 0, err
	}
	n++
	if err := c.tx.Set([]byte(label), binary.BigEndian.AppendUint64(nil, n)); err != nil {
		return 0, err
	}
	return n, nil
}
