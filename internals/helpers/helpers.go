package helpers

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	sha256 "github.com/minio/sha256-simd"
)

var (
	ErrHashingFailure      = errors.New("value cannot be serialized for hashing")
	ErrEmptyTransactionSet = errors.New("merkle root of an empty transaction set")
)

// MaxDifficulty is the number of hex digits in a digest.
const MaxDifficulty = sha256.Size * 2

// Hasher turns any canonically serializable value into a hex digest.
type Hasher interface {
	Hash(v interface{}) (string, error)
}

// SHA256 hashes the JSON encoding of a value. Struct fields are encoded in
// declaration order, which keeps the digest stable for the life of a chain.
type SHA256 struct{}

func (SHA256) Hash(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHashingFailure, err)
	}
	return SerializeSHA256(data), nil
}

// Hash uses the default hasher.
func Hash(v interface{}) (string, error) {
	return SHA256{}.Hash(v)
}

func SerializeSHA256(data []byte) string {
	shaWriter := sha256.New()
	shaWriter.Write(data)
	return hex.EncodeToString(shaWriter.Sum(nil))
}

// LeadingZeros counts the leading '0' hex digits of a digest.
func LeadingZeros(digest string) int {
	n := 0
	for n < len(digest) && digest[n] == '0' {
		n++
	}
	return n
}

// MeetsDifficulty reports whether digest has at least difficulty leading hex zeros.
func MeetsDifficulty(digest string, difficulty uint32) bool {
	return uint64(LeadingZeros(digest)) >= uint64(difficulty)
}

// GenerateMerkleRoot folds the transaction hashes pairwise, level by level,
// duplicating the last digest of any odd level.
func GenerateMerkleRoot(h Hasher, txs []Transaction) (string, error) {
	if len(txs) == 0 {
		return "", ErrEmptyTransactionSet
	}

	hashes := make([]string, 0, len(txs))
	for _, tx := range txs {
		d, err := h.Hash(tx)
		if err != nil {
			return "", err
		}
		hashes = append(hashes, d)
	}

	// A single leaf is still paired with itself.
	for {
		if len(hashes)%2 == 1 {
			hashes = append(hashes, hashes[len(hashes)-1])
		}
		parents := make([]string, 0, len(hashes)/2)
		for i := 0; i < len(hashes); i += 2 {
			d, err := h.Hash(hashes[i] + hashes[i+1])
			if err != nil {
				return "", err
			}
			parents = append(parents, d)
		}
		if len(parents) == 1 {
			return parents[0], nil
		}
		hashes = parents
	}
}

// FormatHashrate renders hashes per second with a unit suffix.
func FormatHashrate(hashes uint64, seconds float64) string {
	if seconds <= 0 {
		seconds = 1
	}
	round := func(n float64) float64 {
		return math.Floor(n*100) / 100
	}

	hashrate := float64(hashes) / seconds
	switch {
	case hashrate >= 1000*1000*1000:
		return fmt.Sprintf("%.2f Gh/s", round(hashrate/1000/1000/1000))
	case hashrate >= 1000*1000:
		return fmt.Sprintf("%.2f Mh/s", round(hashrate/1000/1000))
	case hashrate >= 1000:
		return fmt.Sprintf("%.2f Kh/s", round(hashrate/1000))
	default:
		return fmt.Sprintf("%.2f h/s", round(hashrate))
	}
}
