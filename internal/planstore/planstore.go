// Package planstore backs the Plan Cache spec.md §3 describes ("process-
// wide mapping from unit id to its current Plan, carried across turns")
// with an embedded badger key-value store, opened in-memory. spec.md's
// Non-goals explicitly rule out any persistence beyond the plan cache
// itself, so this package never touches disk; badger's in-memory mode is
// used as a pluggable, swappable backing store for exactly the
// within-process map the spec already calls for, not as added durability.
//
// It is grounded on acdtunes-spacetraders' use of badger as its local
// state store: the same open-once, gob-encode-values, iterate-with-a-
// prefix shape, narrowed here to plain per-unit key lookups.
package planstore

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/hailam/harvesterbot/internal/game"
	"github.com/hailam/harvesterbot/internal/plan"
)

// Store is a badger-backed plan cache. It must be closed when the
// controller shuts down.
type Store struct {
	db *badger.DB
}

// Open creates an in-memory badger store. Nothing is written to disk;
// the store's contents do not outlive the process, matching spec.md §1's
// "no cross-turn persistence beyond the plan cache" non-goal.
func Open() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("planstore: open: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the store's resources.
func (s *Store) Close() error {
	return s.db.Close()
}

func key(id game.UnitID) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

// Save persists p under unit id, overwriting any previous entry.
func (s *Store) Save(id game.UnitID, p *plan.Plan) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		return fmt.Errorf("planstore: encode plan for unit %d: %w", id, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(id), buf.Bytes())
	})
}

// Load returns the stored plan for id, if any.
func (s *Store) Load(id game.UnitID) (*plan.Plan, bool, error) {
	var p plan.Plan
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return gob.NewDecoder(bytes.NewReader(val)).Decode(&p)
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("planstore: load plan for unit %d: %w", id, err)
	}
	if !found {
		return nil, false, nil
	}
	return &p, true, nil
}

// Delete removes id's entry, if any. Used to prune plans for units the
// match engine no longer reports (spec.md §7 "Corrupt observation").
func (s *Store) Delete(id game.UnitID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(id))
	})
}

// PruneExcept deletes every stored entry whose unit id is not in keep.
func (s *Store) PruneExcept(keep map[game.UnitID]bool) error {
	var stale []game.UnitID
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().KeyCopy(nil)
			id := game.UnitID(binary.BigEndian.Uint64(k))
			if !keep[id] {
				stale = append(stale, id)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("planstore: scan for prune: %w", err)
	}
	for _, id := range stale {
		if err := s.Delete(id); err != nil {
			return err
		}
	}
	return nil
}
