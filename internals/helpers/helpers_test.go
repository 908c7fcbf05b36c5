package helpers

import (
	"errors"
	"math"
	"regexp"
	"testing"
)

var hexDigest = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestHashIsFixedWidthLowercaseHex(t *testing.T) {
	values := []interface{}{
		"",
		"hello",
		Transaction{Sender: "alice", Receiver: "bob", Amount: 10},
		BlockHeader{Timestamp: 1, Nonce: 2, PreviousHash: GenesisHash, MerkleRoot: GenesisHash, Difficulty: 3},
	}
	for _, v := range values {
		d, err := Hash(v)
		if err != nil {
			t.Fatalf("Hash(%v) error = %v", v, err)
		}
		if !hexDigest.MatchString(d) {
			t.Errorf("Hash(%v) = %q, want 64 lowercase hex characters", v, d)
		}
	}
}

func TestHashIsIdempotent(t *testing.T) {
	h := BlockHeader{Timestamp: 1700000000000, Nonce: 42, PreviousHash: GenesisHash, MerkleRoot: "ab", Difficulty: 2}
	first, err := Hash(h)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Hash(h)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("hash changed between calls: %s != %s", first, second)
	}

	h.Nonce++
	third, _ := Hash(h)
	if third == first {
		t.Error("changing the nonce did not change the hash")
	}
}

func TestHashUnserializable(t *testing.T) {
	_, err := Hash(Transaction{Amount: math.NaN()})
	if !errors.Is(err, ErrHashingFailure) {
		t.Errorf("Hash(NaN) error = %v, want ErrHashingFailure", err)
	}
	_, err = Hash(make(chan int))
	if !errors.Is(err, ErrHashingFailure) {
		t.Errorf("Hash(chan) error = %v, want ErrHashingFailure", err)
	}
}

func TestSerializeSHA256KnownVector(t *testing.T) {
	got := SerializeSHA256([]byte("abc"))
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Errorf("SerializeSHA256(abc) = %s, want %s", got, want)
	}
}

func TestLeadingZeros(t *testing.T) {
	tests := []struct {
		digest string
		want   int
	}{
		{"abc", 0},
		{"0abc", 1},
		{"00a1", 2},
		{"0000", 4},
		{"", 0},
	}
	for _, tt := range tests {
		if got := LeadingZeros(tt.digest); got != tt.want {
			t.Errorf("LeadingZeros(%q) = %d, want %d", tt.digest, got, tt.want)
		}
	}
}

func TestMeetsDifficulty(t *testing.T) {
	tests := []struct {
		name       string
		digest     string
		difficulty uint32
		want       bool
	}{
		{"zero difficulty always holds", "ffff", 0, true},
		{"exact prefix", "00a1", 2, true},
		{"more zeros than needed", "000f", 2, true},
		{"too few zeros", "0a00", 2, false},
		{"difficulty longer than digest", "0000", 5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MeetsDifficulty(tt.digest, tt.difficulty); got != tt.want {
				t.Errorf("MeetsDifficulty(%q, %d) = %v, want %v", tt.digest, tt.difficulty, got, tt.want)
			}
		})
	}
}

func sampleTransactions(n int) []Transaction {
	txs := make([]Transaction, 0, n)
	txs = append(txs, Transaction{Sender: RewardSender, Receiver: "miner-A", Amount: 100})
	names := []string{"alice", "bob", "carol", "dave", "erin"}
	for i := 1; i < n; i++ {
		txs = append(txs, Transaction{
			Sender:   names[i%len(names)],
			Receiver: names[(i+1)%len(names)],
			Amount:   float64(i) * 2.5,
		})
	}
	return txs
}

func TestGenerateMerkleRootEmpty(t *testing.T) {
	_, err := GenerateMerkleRoot(SHA256{}, nil)
	if !errors.Is(err, ErrEmptyTransactionSet) {
		t.Errorf("GenerateMerkleRoot(nil) error = %v, want ErrEmptyTransactionSet", err)
	}
}

func TestGenerateMerkleRootSingleLeafPairsWithItself(t *testing.T) {
	txs := sampleTransactions(1)
	leaf, _ := Hash(txs[0])
	want, _ := Hash(leaf + leaf)

	got, err := GenerateMerkleRoot(SHA256{}, txs)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("root = %s, want %s", got, want)
	}
}

func TestGenerateMerkleRootOddLevel(t *testing.T) {
	txs := sampleTransactions(3)
	a, _ := Hash(txs[0])
	b, _ := Hash(txs[1])
	c, _ := Hash(txs[2])
	ab, _ := Hash(a + b)
	cc, _ := Hash(c + c)
	want, _ := Hash(ab + cc)

	got, err := GenerateMerkleRoot(SHA256{}, txs)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("root = %s, want %s", got, want)
	}
}

func TestGenerateMerkleRootDeterministicAndOrdered(t *testing.T) {
	for _, n := range []int{2, 3, 4, 5, 8} {
		txs := sampleTransactions(n)
		first, err := GenerateMerkleRoot(SHA256{}, txs)
		if err != nil {
			t.Fatal(err)
		}
		second, _ := GenerateMerkleRoot(SHA256{}, txs)
		if first != second {
			t.Errorf("n=%d: root not deterministic", n)
		}
		if !hexDigest.MatchString(first) {
			t.Errorf("n=%d: root %q is not a digest", n, first)
		}

		swapped := append([]Transaction(nil), txs...)
		swapped[0], swapped[n-1] = swapped[n-1], swapped[0]
		third, _ := GenerateMerkleRoot(SHA256{}, swapped)
		if third == first {
			t.Errorf("n=%d: reordering leaves did not change the root", n)
		}
	}
}

func TestGenerateMerkleRootHashingFailure(t *testing.T) {
	txs := []Transaction{{Sender: RewardSender, Receiver: "m", Amount: math.Inf(1)}}
	if _, err := GenerateMerkleRoot(SHA256{}, txs); !errors.Is(err, ErrHashingFailure) {
		t.Errorf("error = %v, want ErrHashingFailure", err)
	}
}

func TestFormatHashrate(t *testing.T) {
	tests := []struct {
		hashes  uint64
		seconds float64
		want    string
	}{
		{500, 1, "500.00 h/s"},
		{1500, 1, "1.50 Kh/s"},
		{2500000, 1, "2.50 Mh/s"},
		{3000000000, 1, "3.00 Gh/s"},
		{10, 0, "10.00 h/s"},
	}
	for _, tt := range tests {
		if got := FormatHashrate(tt.hashes, tt.seconds); got != tt.want {
			t.Errorf("FormatHashrate(%d, %v) = %q, want %q", tt.hashes, tt.seconds, got, tt.want)
		}
	}
}
