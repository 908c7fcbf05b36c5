package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jinzhu/copier"
	"github.com/sirupsen/logrus"

	"wsb.com/powledger/internals/helpers"
	"wsb.com/powledger/internals/miner"
)

const DefaultReward = 100.0

var (
	ErrBlockNotFound = errors.New("block not found")
	ErrInvalidChain  = errors.New("invalid chain")
)

// Chain owns the block sequence and the pending pool. Only one MineBlock runs
// at a time; SubmitTransaction may run concurrently with it.
type Chain struct {
	mineMu sync.Mutex

	mu           sync.RWMutex
	blocks       []helpers.Block
	hashes       []string
	pending      []helpers.Transaction
	difficulty   uint32
	minerAddress string
	reward       float64

	hasher helpers.Hasher
	sealer Sealer
	sink   Sink
	now    func() time.Time
	log    *logrus.Entry
}

// Sink receives every block once it is appended, genesis included. A sink
// error is logged; the block stays on the chain.
type Sink interface {
	SaveBlock(height uint64, hash string, block helpers.Block) error
}

type Option func(*Chain)

func WithSink(s Sink) Option {
	return func(c *Chain) { c.sink = s }
}

func WithSealer(s Sealer) Option {
	return func(c *Chain) { c.sealer = s }
}

func WithHasher(h helpers.Hasher) Option {
	return func(c *Chain) { c.hasher = h }
}

func WithClock(now func() time.Time) Option {
	return func(c *Chain) { c.now = now }
}

func WithLogger(log *logrus.Entry) Option {
	return func(c *Chain) { c.log = log }
}

// WithReward sets the reward before the genesis block is mined.
func WithReward(reward float64) Option {
	return func(c *Chain) { c.reward = reward }
}

// New creates a chain and mines its genesis block, which carries only the reward.
func New(minerAddress string, difficulty uint32, opts ...Option) (*Chain, error) {
	c := &Chain{
		blocks:       make([]helpers.Block, 0),
		hashes:       make([]string, 0),
		pending:      make([]helpers.Transaction, 0),
		difficulty:   difficulty,
		minerAddress: minerAddress,
		reward:       DefaultReward,
		hasher:       helpers.SHA256{},
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logrus.NewEntry(logrus.StandardLogger())
	}
	if c.sealer == nil {
		c.sealer = &miner.Miner{Hasher: c.hasher, Threads: 1, Log: c.log}
	}

	genesis, err := c.MineBlock(context.Background())
	if err != nil {
		return nil, fmt.Errorf("genesis block: %w", err)
	}
	c.log.WithFields(logrus.Fields{
		"miner":      minerAddress,
		"difficulty": difficulty,
		"nonce":      genesis.Header.Nonce,
	}).Info("Genesis block created")
	return c, nil
}

// SubmitTransaction queues a transfer for the next block. It never fails.
func (c *Chain) SubmitTransaction(sender, receiver string, amount float64) bool {
	c.mu.Lock()
	c.pending = append(c.pending, helpers.Transaction{
		Sender:   sender,
		Receiver: receiver,
		Amount:   amount,
	})
	size := len(c.pending)
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"sender":   sender,
		"receiver": receiver,
		"amount":   amount,
		"pending":  size,
	}).Debug("Added new transaction")
	return true
}

// LastBlockHash returns the hash of the last header, or GenesisHash for an
// empty chain.
func (c *Chain) LastBlockHash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastHashLocked()
}

func (c *Chain) lastHashLocked() string {
	if len(c.hashes) == 0 {
		return helpers.GenesisHash
	}
	return c.hashes[len(c.hashes)-1]
}

func (c *Chain) SetDifficulty(difficulty uint32) {
	c.mu.Lock()
	c.difficulty = difficulty
	c.mu.Unlock()
}

func (c *Chain) SetReward(reward float64) {
	c.mu.Lock()
	c.reward = reward
	c.mu.Unlock()
}

func (c *Chain) SetMinerAddress(address string) {
	c.mu.Lock()
	c.minerAddress = address
	c.mu.Unlock()
}

func (c *Chain) Difficulty() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.difficulty
}

func (c *Chain) Reward() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reward
}

func (c *Chain) MinerAddress() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.minerAddress
}

// MineBlock drains the pool behind a reward transaction, seals the block and
// appends it. On failure nothing is appended and the drained transactions go
// back to the front of the pool.
func (c *Chain) MineBlock(ctx context.Context) (helpers.Block, error) {
	c.mineMu.Lock()
	defer c.mineMu.Unlock()

	c.mu.Lock()
	drained := c.pending
	c.pending = make([]helpers.Transaction, 0)
	txs := make([]helpers.Transaction, 0, len(drained)+1)
	txs = append(txs, helpers.Transaction{
		Sender:   helpers.RewardSender,
		Receiver: c.minerAddress,
		Amount:   c.reward,
	})
	txs = append(txs, drained...)
	difficulty := c.difficulty
	previousHash := c.lastHashLocked()
	timestamp := c.nextTimestampLocked()
	height := len(c.blocks)
	c.mu.Unlock()

	block, hash, err := SealNewBlock(ctx, c.hasher, c.sealer, timestamp, previousHash, difficulty, txs)
	if err != nil {
		c.restore(drained)
		c.log.WithFields(logrus.Fields{
			"height":     height,
			"difficulty": difficulty,
			"restored":   len(drained),
		}).WithError(err).Warn("Mining failed, pending transactions restored")
		return helpers.Block{}, err
	}

	c.mu.Lock()
	c.blocks = append(c.blocks, block)
	c.hashes = append(c.hashes, hash)
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"height":        height,
		"hash":          hash,
		"previous_hash": previousHash,
		"merkle_root":   block.Header.MerkleRoot,
		"nonce":         block.Header.Nonce,
		"transactions":  block.Count,
	}).Info("New block added")

	out, err := copyBlock(block)
	if err != nil {
		return helpers.Block{}, err
	}
	if c.sink != nil {
		if err := c.sink.SaveBlock(uint64(height), hash, out); err != nil {
			c.log.WithField("height", height).WithError(err).Error("Failed to hand over sealed block")
		}
		// The sink may keep its copy.
		return copyBlock(block)
	}
	return out, nil
}

func (c *Chain) restore(drained []helpers.Transaction) {
	if len(drained) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	pool := make([]helpers.Transaction, 0, len(drained)+len(c.pending))
	pool = append(pool, drained...)
	c.pending = append(pool, c.pending...)
}

// nextTimestampLocked never goes behind the last block's timestamp.
func (c *Chain) nextTimestampLocked() time.Time {
	now := c.now()
	if len(c.blocks) == 0 {
		return now
	}
	last := c.blocks[len(c.blocks)-1].Header.Timestamp
	if now.UnixMilli() < last {
		return time.UnixMilli(last)
	}
	return now
}

func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// Pending returns a copy of the pool in submission order.
func (c *Chain) Pending() []helpers.Transaction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]helpers.Transaction, len(c.pending))
	copy(out, c.pending)
	return out
}

// Block returns a deep copy of the block at height.
func (c *Chain) Block(height int) (helpers.Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if height < 0 || height >= len(c.blocks) {
		return helpers.Block{}, fmt.Errorf("%w: height %d", ErrBlockNotFound, height)
	}
	return copyBlock(c.blocks[height])
}

// Blocks returns deep copies of every block, genesis first.
func (c *Chain) Blocks() ([]helpers.Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]helpers.Block, 0, len(c.blocks))
	if err := copier.CopyWithOption(&out, &c.blocks, copier.Option{DeepCopy: true}); err != nil {
		return nil, err
	}
	return out, nil
}

// Verify rechecks every block's contents, seal and linkage.
func (c *Chain) Verify() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	previousHash := helpers.GenesisHash
	var previousTimestamp int64
	for i, b := range c.blocks {
		if b.Count != len(b.Transactions) {
			return fmt.Errorf("%w: block %d count %d, has %d transactions", ErrInvalidChain, i, b.Count, len(b.Transactions))
		}
		if len(b.Transactions) == 0 || b.Transactions[0].Sender != helpers.RewardSender {
			return fmt.Errorf("%w: block %d does not start with a reward", ErrInvalidChain, i)
		}
		root, err := helpers.GenerateMerkleRoot(c.hasher, b.Transactions)
		if err != nil {
			return fmt.Errorf("%w: block %d: %v", ErrInvalidChain, i, err)
		}
		if root != b.Header.MerkleRoot {
			return fmt.Errorf("%w: block %d merkle root mismatch", ErrInvalidChain, i)
		}
		if b.Header.PreviousHash != previousHash {
			return fmt.Errorf("%w: block %d previous hash mismatch", ErrInvalidChain, i)
		}
		if b.Header.Timestamp < previousTimestamp {
			return fmt.Errorf("%w: block %d timestamp goes backwards", ErrInvalidChain, i)
		}
		hash, err := c.hasher.Hash(b.Header)
		if err != nil {
			return fmt.Errorf("%w: block %d: %v", ErrInvalidChain, i, err)
		}
		if !helpers.MeetsDifficulty(hash, b.Header.Difficulty) {
			return fmt.Errorf("%w: block %d hash %s misses difficulty %d", ErrInvalidChain, i, hash, b.Header.Difficulty)
		}
		previousHash = hash
		previousTimestamp = b.Header.Timestamp
	}
	return nil
}

func copyBlock(b helpers.Block) (helpers.Block, error) {
	var out helpers.Block
	if err := copier.CopyWithOption(&out, &b, copier.Option{DeepCopy: true}); err != nil {
		return helpers.Block{}, err
	}
	return out, nil
}
