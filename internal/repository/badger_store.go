package repository

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/outline-studio/engine/internal/models"
	appErr "github.com/outline-studio/engine/pkg/errors"
)

const driverBadger = "badger"

// Key layout:
//
//	m/{tree}                  treeMeta
//	n/{tree}/{node}           models.Node
//	r/{tree}/{parent}/{child} models.Relation
func metaKey(tree uuid.UUID) []byte { return []byte("m/" + tree.String()) }

func nodePrefix(tree uuid.UUID) []byte { return []byte("n/" + tree.String() + "/") }

func nodeKey(tree, node uuid.UUID) []byte {
	return append(nodePrefix(tree), node.String()...)
}

func relationPrefix(tree uuid.UUID) []byte { return []byte("r/" + tree.String() + "/") }

func relationKey(tree, parent, child uuid.UUID) []byte {
	k := append(relationPrefix(tree), parent.String()...)
	k = append(k, '/')
	return append(k, child.String()...)
}

// treeMeta is read and rewritten by every write transaction on the tree, so
// two concurrent writers on one tree always conflict at commit.
type treeMeta struct {
	Tree           models.Tree `json:"tree"`
	NextNodeSeq    uint64      `json:"next_node_seq"`
	NextRelationID uint64      `json:"next_relation_id"`
	Revision       uint64      `json:"revision"`
}

type badgerStore struct {
	db    *badger.DB
	opts  Options
	locks *treeLocks
}

// NewBadgerStore returns a Store backed by an embedded badger database.
// Writers on one tree queue on an in-process lock; the meta key conflict
// still aborts anything that bypasses it.
func NewBadgerStore(db *badger.DB, opts Options) Store {
	return &badgerStore{db: db, opts: opts, locks: newTreeLocks()}
}

var _ Store = (*badgerStore)(nil)

func (s *badgerStore) CreateTree(ctx context.Context, tree *models.Tree) error {
	now := time.Now().UTC()
	if tree.CreatedAt.IsZero() {
		tree.CreatedAt = now
	}
	tree.UpdatedAt = now
	return withRetry(ctx, s.opts, driverBadger, tree.ID, func(ctx context.Context) error {
		return s.commit(func(txn *badger.Txn) error {
			if _, err := txn.Get(metaKey(tree.ID)); err == nil {
				return appErr.Conflict(appErr.ReasonDuplicate, "tree already exists").WithMeta("tree_id", tree.ID)
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return appErr.Wrap(err, appErr.CodeInternal, "read tree failed")
			}
			return putJSON(txn, metaKey(tree.ID), treeMeta{Tree: *tree})
		})
	})
}

func (s *badgerStore) GetTree(ctx context.Context, id uuid.UUID) (*models.Tree, error) {
	var meta *treeMeta
	err := withRetry(ctx, s.opts, driverBadger, id, func(ctx context.Context) error {
		return s.db.View(func(txn *badger.Txn) error {
			var err error
			meta, err = readMeta(txn, id)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return &meta.Tree, nil
}

func (s *badgerStore) ListTrees(ctx context.Context) ([]models.Tree, error) {
	var out []models.Tree
	err := withRetry(ctx, s.opts, driverBadger, uuid.Nil, func(ctx context.Context) error {
		out = out[:0]
		return s.db.View(func(txn *badger.Txn) error {
			return scan(ctx, txn, []byte("m/"), func(val []byte) error {
				var m treeMeta
				if err := json.Unmarshal(val, &m); err != nil {
					return appErr.Wrap(err, appErr.CodeInternal, "decode tree failed")
				}
				out = append(out, m.Tree)
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(out, func(a, b models.Tree) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (s *badgerStore) Update(ctx context.Context, treeID uuid.UUID, fn func(tx TreeTx) error) error {
	return withRetry(ctx, s.opts, driverBadger, treeID, func(ctx context.Context) error {
		unlock, err := s.locks.acquire(ctx, treeID)
		if err != nil {
			return err
		}
		defer unlock()

		return s.commit(func(txn *badger.Txn) error {
			meta, err := readMeta(txn, treeID)
			if err != nil {
				return err
			}
			tx := &badgerTreeTx{ctx: ctx, txn: txn, tree: treeID, meta: meta}
			if err := fn(tx); err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			meta.Revision++
			return putJSON(txn, metaKey(treeID), meta)
		})
	})
}

func (s *badgerStore) View(ctx context.Context, treeID uuid.UUID, fn func(tx TreeReader) error) error {
	return withRetry(ctx, s.opts, driverBadger, treeID, func(ctx context.Context) error {
		return s.db.View(func(txn *badger.Txn) error {
			meta, err := readMeta(txn, treeID)
			if err != nil {
				return err
			}
			if err := fn(&badgerTreeTx{ctx: ctx, txn: txn, tree: treeID, meta: meta}); err != nil {
				return err
			}
			return ctx.Err()
		})
	})
}

// commit runs fn in a fresh read-write transaction and commits it. Commit
// conflicts become serialization errors so withRetry replays them.
func (s *badgerStore) commit(fn func(txn *badger.Txn) error) error {
	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		if errors.Is(err, badger.ErrConflict) {
			return serializationError(err)
		}
		return appErr.Wrap(err, appErr.CodeInternal, "commit transaction failed")
	}
	return nil
}

func (s *badgerStore) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return appErr.New(appErr.CodeUnavailable, "badger database is closed")
	}
	return nil
}

func (s *badgerStore) Close() error { return s.db.Close() }

func readMeta(txn *badger.Txn, tree uuid.UUID) (*treeMeta, error) {
	var m treeMeta
	found, err := getJSON(txn, metaKey(tree), &m)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, treeNotFound(tree)
	}
	return &m, nil
}

func getJSON(txn *badger.Txn, key []byte, dest any) (bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, appErr.Wrap(err, appErr.CodeInternal, "read key failed")
	}
	err = item.Value(func(val []byte) error { return json.Unmarshal(val, dest) })
	if err != nil {
		return false, appErr.Wrap(err, appErr.CodeInternal, "decode value failed")
	}
	return true, nil
}

func putJSON(txn *badger.Txn, key []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "encode value failed")
	}
	if err := txn.Set(key, b); err != nil {
		if errors.Is(err, badger.ErrTxnTooBig) {
			return appErr.Wrap(err, appErr.CodeInternal, "transaction too large")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "write key failed")
	}
	return nil
}

// scan calls fn with the value of every key under prefix, in key order.
func scan(ctx context.Context, txn *badger.Txn, prefix []byte, fn func(val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}
