package chain

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// Store is the contract over the external append-only block store (spec
// §1, §6): create-if-missing, get-all ordered by id, get-last, count,
// insert. Any embedded database satisfying this shape is a drop-in
// replacement for badgerStore.
type Store interface {
	Count() (int, error)
	GetAll() ([]Block, error)
	GetLast() (Block, error)
	Insert(b Block) error
	Close() error
}

// badgerStore keys blocks by a zero-padded monotonic id so Badger's
// natural lexicographic key iteration equals insertion order, without
// needing a separate index.
type badgerStore struct {
	db     *badger.DB
	nextID uint64
}

const keyPrefix = "block:"

func blockKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyPrefix, id))
}

// OpenStore opens (creating if missing) the Badger directory at path.
func OpenStore(path string) (Store, error) {
	db, err := openBadger(path)
	if err != nil {
		return nil, err
	}
	s := &badgerStore{db: db}
	count, err := s.Count()
	if err != nil {
		db.Close()
		return nil, err
	}
	s.nextID = uint64(count)
	return s, nil
}

// OpenTempStore opens the sibling "temp-" store used by rebuild_from_string.
func OpenTempStore(livePath string) (Store, error) {
	dir, base := filepath.Split(strings.TrimRight(livePath, string(filepath.Separator)))
	return OpenStore(filepath.Join(dir, "temp-"+base))
}

func openBadger(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err == nil {
		return db, nil
	}
	if !strings.Contains(err.Error(), "LOCK") {
		return nil, err
	}
	// A prior process crashed without releasing the lock file; the
	// teacher's store adapter recovers by removing it and retrying once.
	if rmErr := os.Remove(filepath.Join(path, "LOCK")); rmErr != nil {
		return nil, fmt.Errorf("chain: remove stale LOCK file: %w", rmErr)
	}
	return badger.Open(opts)
}

func (s *badgerStore) Count() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func (s *badgerStore) GetAll() ([]Block, error) {
	var blocks []Block
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var block Block
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &block)
			}); err != nil {
				return err
			}
			blocks = append(blocks, block)
		}
		return nil
	})
	return blocks, err
}

func (s *badgerStore) GetLast() (Block, error) {
	var block Block
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()
		// Reverse iteration needs a seek key past the last possible match.
		seekKey := append([]byte(keyPrefix), 0xFF)
		for it.Seek(seekKey); it.ValidForPrefix([]byte(keyPrefix)); it.Next() {
			item := it.Item()
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &block)
			}); err != nil {
				return err
			}
			found = true
			return nil
		}
		return nil
	})
	if err != nil {
		return Block{}, err
	}
	if !found {
		return Block{}, ErrEmptyChain
	}
	return block, nil
}

func (s *badgerStore) Insert(b Block) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(blockKey(s.nextID), payload)
	})
	if err != nil {
		return err
	}
	s.nextID++
	return nil
}

func (s *badgerStore) Close() error {
	return s.db.Close()
}
