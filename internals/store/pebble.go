package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/cockroachdb/pebble"

	"wsb.com/powledger/internals/helpers"
)

// Key prefixes
const (
	PrefixBlocks       = "blk:" // height (big-endian uint64) -> block JSON
	PrefixBlocksByHash = "hsh:" // header hash -> height
	keyLastHeight      = "meta:last_height"
)

var ErrNotFound = errors.New("not found")

// BlockStore persists sealed blocks handed over by the miner loop.
type BlockStore struct {
	db *pebble.DB
}

func NewBlockStore(path string) (*BlockStore, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &BlockStore{db: db}, nil
}

func (s *BlockStore) Close() error {
	return s.db.Close()
}

func heightKey(height uint64) []byte {
	key := make([]byte, len(PrefixBlocks)+8)
	copy(key, PrefixBlocks)
	binary.BigEndian.PutUint64(key[len(PrefixBlocks):], height)
	return key
}

func hashKey(hash string) []byte {
	return append([]byte(PrefixBlocksByHash), hash...)
}

// SaveBlock writes the block, its hash index and the last height atomically.
func (s *BlockStore) SaveBlock(height uint64, hash string, block helpers.Block) error {
	data, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("failed to encode block %d: %w", height, err)
	}
	hb := make([]byte, 8)
	binary.BigEndian.PutUint64(hb, height)

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(heightKey(height), data, nil); err != nil {
		return err
	}
	if err := batch.Set(hashKey(hash), hb, nil); err != nil {
		return err
	}
	if err := batch.Set([]byte(keyLastHeight), hb, nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

func (s *BlockStore) GetBlock(height uint64) (helpers.Block, error) {
	value, closer, err := s.db.Get(heightKey(height))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return helpers.Block{}, fmt.Errorf("block %d: %w", height, ErrNotFound)
		}
		return helpers.Block{}, err
	}
	defer closer.Close()

	var block helpers.Block
	if err := json.Unmarshal(value, &block); err != nil {
		return helpers.Block{}, fmt.Errorf("failed to decode block %d: %w", height, err)
	}
	return block, nil
}

func (s *BlockStore) GetHeightByHash(hash string) (uint64, error) {
	return s.getUint64(hashKey(hash))
}

// LastHeight returns the height of the newest stored block.
func (s *BlockStore) LastHeight() (uint64, error) {
	return s.getUint64([]byte(keyLastHeight))
}

func (s *BlockStore) getUint64(key []byte) (uint64, error) {
	value, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return 0, err
	}
	defer closer.Close()
	if len(value) != 8 {
		return 0, fmt.Errorf("%s: corrupt value of %d bytes", key, len(value))
	}
	return binary.BigEndian.Uint64(value), nil
}
