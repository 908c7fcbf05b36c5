package helpers

// RewardSender is the system identity paying the block reward.
const RewardSender = "Root"

// GenesisHash is the previous-hash of the first block.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Transaction is a value record; the chain never hands out pointers to one.
type Transaction struct {
	Sender   string  `json:"sender"`
	Receiver string  `json:"receiver"`
	Amount   float64 `json:"amount"`
}

// BlockHeader field order is part of the hash input and must not change.
type BlockHeader struct {
	Timestamp    int64  `json:"timestamp"`
	Nonce        uint64 `json:"nonce"`
	PreviousHash string `json:"previous_hash"`
	MerkleRoot   string `json:"merkle_root"`
	Difficulty   uint32 `json:"difficulty"`
}

type Block struct {
	Header       BlockHeader   `json:"header"`
	Count        int           `json:"count"`
	Transactions []Transaction `json:"transactions"`
}

// Reward returns the block's reward transaction.
func (b *Block) Reward() Transaction {
	return b.Transactions[0]
}
