package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"github.com/dgraph-io/badger/v4"

	"github.com/waypointapp/waypoint-server/internal/store"
)

// Entity provides JSON CRUD for one record type under a key prefix.
//
// Keys:
//
//	prefix + id                              -> JSON record
//	prefix + "idx:" + name + ":" + value + ":" + id -> empty
//
// Index values are not unique; a lookup scans every id under the value.
type Entity[T any] struct {
	db      *badger.DB
	prefix  string
	idOf    func(*T) string
	indexes []index[T]
}

type index[T any] struct {
	name   string
	keyGen func(*T) []string
}

// NewEntity creates an entity stored under prefix.
func NewEntity[T any](db *badger.DB, prefix string, idOf func(*T) string) *Entity[T] {
	return &Entity[T]{db: db, prefix: prefix, idOf: idOf}
}

// WithIndex adds a secondary index.
func (e *Entity[T]) WithIndex(name string, keyGen func(*T) []string) *Entity[T] {
	e.indexes = append(e.indexes, index[T]{name: name, keyGen: keyGen})
	return e
}

func (e *Entity[T]) key(id string) []byte {
	return []byte(e.prefix + id)
}

func (e *Entity[T]) indexPrefix(name, value string) []byte {
	return []byte(e.prefix + "idx:" + name + ":" + value + ":")
}

func (e *Entity[T]) setIndexes(txn *badger.Txn, entity *T) error {
	id := e.idOf(entity)
	for _, idx := range e.indexes {
		for _, value := range idx.keyGen(entity) {
			k := append(e.indexPrefix(idx.name, value), id...)
			if err := txn.Set(k, nil); err != nil {
				return fmt.Errorf("failed to set index key: %w", err)
			}
		}
	}
	return nil
}

func (e *Entity[T]) deleteIndexes(txn *badger.Txn, entity *T) error {
	id := e.idOf(entity)
	for _, idx := range e.indexes {
		for _, value := range idx.keyGen(entity) {
			k := append(e.indexPrefix(idx.name, value), id...)
			if err := txn.Delete(k); err != nil {
				return fmt.Errorf("failed to delete index key: %w", err)
			}
		}
	}
	return nil
}

func (e *Entity[T]) read(txn *badger.Txn, id string) (*T, error) {
	item, err := txn.Get(e.key(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	var entity T
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &entity)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity: %w", err)
	}
	return &entity, nil
}

// Create stores a new entity. Returns store.ErrAlreadyExists when the ID is taken.
func (e *Entity[T]) Create(ctx context.Context, entity *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}
	id := e.idOf(entity)

	return e.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(e.key(id))
		if err == nil {
			return store.ErrAlreadyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("failed to check existing key: %w", err)
		}
		if err := txn.Set(e.key(id), data); err != nil {
			return fmt.Errorf("failed to set key: %w", err)
		}
		return e.setIndexes(txn, entity)
	})
}

// Get retrieves an entity by ID. Returns store.ErrNotFound if missing.
func (e *Entity[T]) Get(ctx context.Context, id string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var entity *T
	err := e.db.View(func(txn *badger.Txn) error {
		var err error
		entity, err = e.read(txn, id)
		return err
	})
	return entity, err
}

// Modify loads an entity, lets fn change it and writes it back with fresh
// index keys, all in one transaction.
func (e *Entity[T]) Modify(ctx context.Context, id string, fn func(*T)) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var entity *T
	err := e.db.Update(func(txn *badger.Txn) error {
		old, err := e.read(txn, id)
		if err != nil {
			return err
		}
		if err := e.deleteIndexes(txn, old); err != nil {
			return err
		}

		updated := *old
		fn(&updated)
		data, err := json.Marshal(&updated)
		if err != nil {
			return fmt.Errorf("failed to marshal entity: %w", err)
		}
		if err := txn.Set(e.key(id), data); err != nil {
			return fmt.Errorf("failed to set key: %w", err)
		}
		if err := e.setIndexes(txn, &updated); err != nil {
			return err
		}
		entity = &updated
		return nil
	})
	return entity, err
}

// Delete removes an entity and returns it, or nil when it did not exist.
func (e *Entity[T]) Delete(ctx context.Context, id string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var entity *T
	err := e.db.Update(func(txn *badger.Txn) error {
		old, err := e.read(txn, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := e.deleteIndexes(txn, old); err != nil {
			return err
		}
		if err := txn.Delete(e.key(id)); err != nil {
			return fmt.Errorf("failed to delete key: %w", err)
		}
		entity = old
		return nil
	})
	return entity, err
}

// ListByIndex iterates over entities whose index name has value.
func (e *Entity[T]) ListByIndex(ctx context.Context, name, value string) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		prefix := e.indexPrefix(name, value)
		var ids []string
		err := e.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			opts.PrefetchValues = false
			it := txn.NewIterator(opts)
			defer it.Close()
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				ids = append(ids, string(it.Item().Key()[len(prefix):]))
			}
			return nil
		})
		if err != nil {
			yield(nil, err)
			return
		}

		for _, id := range ids {
			if ctx.Err() != nil {
				yield(nil, ctx.Err())
				return
			}
			entity, err := e.Get(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if !yield(entity, err) || err != nil {
				return
			}
		}
	}
}
