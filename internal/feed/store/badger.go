package store

import (
	"bytes"
	"cmp"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/renix-codex/feedsync/internal/feed"
	"github.com/renix-codex/feedsync/internal/logger"
	"github.com/renix-codex/feedsync/internal/models"
)

// Key layout:
//
//	"m:gen"                 current generation, 8 bytes big-endian
//	"p:" gen(8) id(8)       record of the given generation
//
// Ids are stored big-endian with the sign bit flipped so iteration order
// is ascending id order.
var (
	genKey     = []byte("m:gen")
	postPrefix = []byte("p:")
)

func genPrefix(gen uint64) []byte {
	key := make([]byte, len(postPrefix)+8)
	copy(key, postPrefix)
	binary.BigEndian.PutUint64(key[len(postPrefix):], gen)
	return key
}

func postKey(gen uint64, id int) []byte {
	key := genPrefix(gen)
	return binary.BigEndian.AppendUint64(key, uint64(int64(id))^(1<<63))
}

// BadgerStore persists records in an embedded Badger database.
//
// Upsert writes the merged record set under a new generation with a
// WriteBatch, which splits itself below Badger's transaction size limit,
// and then publishes it by updating the generation key in one small
// transaction. Readers resolve the generation and its records from the same
// snapshot, so a batch of any size becomes visible whole or not at all.
// Writers are serialized.
type BadgerStore struct {
	db      *badgerdb.DB
	writeMu sync.Mutex
}

var _ feed.StorePort = (*BadgerStore)(nil)

// NewBadgerStore opens the database at path. An empty path opens an
// in-memory database. Generations left behind by an interrupted write are
// removed.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badgerdb.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	s := &BadgerStore{db: db}
	if err := s.sweep(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sweep stale generations: %w", err)
	}
	return s, nil
}

func (s *BadgerStore) Upsert(ctx context.Context, posts []models.Post) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(posts) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var (
		cur     uint64
		records map[int]models.PostRecord
	)
	if err := s.db.View(func(txn *badgerdb.Txn) error {
		var err error
		if cur, err = currentGen(txn); err != nil {
			return err
		}
		records, err = indexRecords(txn, cur)
		return err
	}); err != nil {
		return err
	}

	for _, p := range posts {
		rec := records[p.ID]
		rec.Post = p
		records[p.ID] = rec
	}
	merged := slices.SortedFunc(maps.Values(records), func(a, b models.PostRecord) int {
		return cmp.Compare(a.ID, b.ID)
	})

	next := cur + 1
	// A write interrupted before publishing may have left records here.
	if err := s.dropGeneration(next); err != nil {
		return err
	}
	if err := s.stage(ctx, next, merged); err != nil {
		if derr := s.dropGeneration(next); derr != nil {
			logger.WarnCtx(ctx, "dropping staged generation failed", logger.Err(derr))
		}
		return err
	}
	if err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(genKey, binary.BigEndian.AppendUint64(nil, next))
	}); err != nil {
		if derr := s.dropGeneration(next); derr != nil {
			logger.WarnCtx(ctx, "dropping staged generation failed", logger.Err(derr))
		}
		return err
	}

	if err := s.dropGeneration(cur); err != nil {
		logger.WarnCtx(ctx, "dropping previous generation failed", logger.Err(err))
	}
	return nil
}

// stage writes records under gen without publishing them.
func (s *BadgerStore) stage(ctx context.Context, gen uint64, records []models.PostRecord) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	err := writeChunks(ctx, records, func(chunk []models.PostRecord) error {
		for _, rec := range chunk {
			val, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := wb.Set(postKey(gen, rec.ID), val); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return wb.Flush()
}

func (s *BadgerStore) FetchAll(ctx context.Context) ([]models.PostRecord, error) {
	var out []models.PostRecord
	err := s.db.View(func(txn *badgerdb.Txn) error {
		gen, err := currentGen(txn)
		if err != nil {
			return err
		}
		return eachRecord(txn, gen, func(rec models.PostRecord) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) Liked(ctx context.Context, id int) (bool, error) {
	var liked bool
	err := s.db.View(func(txn *badgerdb.Txn) error {
		gen, err := currentGen(txn)
		if err != nil {
			return err
		}
		rec, _, err := getRecord(txn, gen, id)
		liked = rec.Liked
		return err
	})
	return liked, err
}

func (s *BadgerStore) ToggleLiked(ctx context.Context, id int) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var liked bool
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		gen, err := currentGen(txn)
		if err != nil {
			return err
		}
		rec, ok, err := getRecord(txn, gen, id)
		if err != nil || !ok {
			return err
		}
		rec.Liked = !rec.Liked
		liked = rec.Liked
		val, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return txn.Set(postKey(gen, id), val)
	})
	return liked, err
}

func (s *BadgerStore) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.View(func(*badgerdb.Txn) error { return nil }); err != nil {
		return fmt.Errorf("healthcheck failed: %w", err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// dropGeneration deletes every record of gen.
func (s *BadgerStore) dropGeneration(gen uint64) error {
	return s.deleteKeys(genPrefix(gen), func([]byte) bool { return true })
}

// sweep deletes records of every generation but the current one.
func (s *BadgerStore) sweep() error {
	var cur uint64
	if err := s.db.View(func(txn *badgerdb.Txn) (err error) {
		cur, err = currentGen(txn)
		return err
	}); err != nil {
		return err
	}
	keep := genPrefix(cur)
	return s.deleteKeys(postPrefix, func(key []byte) bool {
		return !bytes.HasPrefix(key, keep)
	})
}

func (s *BadgerStore) deleteKeys(prefix []byte, match func([]byte) bool) error {
	var keys [][]byte
	if err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if key := it.Item().Key(); match(key) {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
		}
		return nil
	}); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func currentGen(txn *badgerdb.Txn) (uint64, error) {
	item, err := txn.Get(genKey)
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var gen uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("generation key holds %d bytes", len(val))
		}
		gen = binary.BigEndian.Uint64(val)
		return nil
	})
	return gen, err
}

// indexRecords reads every record of gen into a map keyed by id.
func indexRecords(txn *badgerdb.Txn, gen uint64) (map[int]models.PostRecord, error) {
	index := make(map[int]models.PostRecord)
	err := eachRecord(txn, gen, func(rec models.PostRecord) error {
		index[rec.ID] = rec
		return nil
	})
	return index, err
}

func eachRecord(txn *badgerdb.Txn, gen uint64, fn func(models.PostRecord) error) error {
	opts := badgerdb.DefaultIteratorOptions
	opts.Prefix = genPrefix(gen)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		var rec models.PostRecord
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return fmt.Errorf("decode %x: %w", it.Item().Key(), err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func getRecord(txn *badgerdb.Txn, gen uint64, id int) (models.PostRecord, bool, error) {
	item, err := txn.Get(postKey(gen, id))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return models.PostRecord{}, false, nil
	}
	if err != nil {
		return models.PostRecord{}, false, err
	}
	var rec models.PostRecord
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	return rec, err == nil, err
}
