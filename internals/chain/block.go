package chain

import (
	"context"
	"fmt"
	"time"

	"wsb.com/powledger/internals/helpers"
)

// Sealer finalizes a header by proof of work.
type Sealer interface {
	Seal(ctx context.Context, header helpers.BlockHeader) (helpers.BlockHeader, string, error)
}

// SealNewBlock builds a header over txs and seals it. The returned block owns txs.
func SealNewBlock(ctx context.Context, hasher helpers.Hasher, sealer Sealer, timestamp time.Time, previousHash string, difficulty uint32, txs []helpers.Transaction) (helpers.Block, string, error) {
	root, err := helpers.GenerateMerkleRoot(hasher, txs)
	if err != nil {
		return helpers.Block{}, "", fmt.Errorf("merkle root: %w", err)
	}

	header := helpers.BlockHeader{
		Timestamp:    timestamp.UnixMilli(),
		Nonce:        0,
		PreviousHash: previousHash,
		MerkleRoot:   root,
		Difficulty:   difficulty,
	}
	sealed, hash, err := sealer.Seal(ctx, header)
	if err != nil {
		return helpers.Block{}, "", fmt.Errorf("seal block: %w", err)
	}

	return helpers.Block{
		Header:       sealed,
		Count:        len(txs),
		Transactions: txs,
	}, hash, nil
}
