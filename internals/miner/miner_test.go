package miner

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"wsb.com/powledger/internals/helpers"
)

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func testHeader(difficulty uint32) helpers.BlockHeader {
	return helpers.BlockHeader{
		Timestamp:    1700000000000,
		PreviousHash: helpers.GenesisHash,
		MerkleRoot:   "5feceb66ffc86f38d952786c6d696c79c2dbc239dd4e91b46729d73a27fb57e9",
		Difficulty:   difficulty,
	}
}

func TestSealZeroDifficultyUsesNonceZero(t *testing.T) {
	for _, threads := range []int{1, 4} {
		m := New(threads, 0, quietLogger())
		h := testHeader(0)
		h.Nonce = 99
		sealed, hash, err := m.Seal(context.Background(), h)
		if err != nil {
			t.Fatalf("threads=%d: Seal() error = %v", threads, err)
		}
		if sealed.Nonce != 0 {
			t.Errorf("threads=%d: nonce = %d, want 0", threads, sealed.Nonce)
		}
		want, _ := helpers.Hash(sealed)
		if hash != want {
			t.Errorf("threads=%d: hash = %s, want %s", threads, hash, want)
		}
	}
}

func TestSealMeetsDifficulty(t *testing.T) {
	tests := []struct {
		name       string
		threads    int
		difficulty uint32
	}{
		{"single thread difficulty 1", 1, 1},
		{"single thread difficulty 2", 1, 2},
		{"four threads difficulty 2", 4, 2},
		{"eight threads difficulty 3", 8, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.threads, 0, quietLogger())
			h := testHeader(tt.difficulty)
			sealed, hash, err := m.Seal(context.Background(), h)
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}
			got, _ := helpers.Hash(sealed)
			if got != hash {
				t.Errorf("returned hash %s does not match header hash %s", hash, got)
			}
			if !helpers.MeetsDifficulty(hash, tt.difficulty) {
				t.Errorf("hash %s misses difficulty %d", hash, tt.difficulty)
			}
			if sealed.PreviousHash != h.PreviousHash || sealed.MerkleRoot != h.MerkleRoot || sealed.Timestamp != h.Timestamp {
				t.Error("Seal changed fields other than the nonce")
			}
		})
	}
}

func TestSealSingleThreadFindsLowestNonce(t *testing.T) {
	h := testHeader(1)
	sealed, _, err := New(1, 0, quietLogger()).Seal(context.Background(), h)
	if err != nil {
		t.Fatal(err)
	}
	for n := uint64(0); n < sealed.Nonce; n++ {
		h.Nonce = n
		d, _ := helpers.Hash(h)
		if helpers.MeetsDifficulty(d, 1) {
			t.Fatalf("nonce %d already satisfies difficulty, Seal returned %d", n, sealed.Nonce)
		}
	}
}

func TestSealExhausted(t *testing.T) {
	for _, threads := range []int{1, 3, 64} {
		m := New(threads, 16, quietLogger())
		_, _, err := m.Seal(context.Background(), testHeader(helpers.MaxDifficulty))
		if !errors.Is(err, ErrNonceSpaceExhausted) {
			t.Errorf("threads=%d: error = %v, want ErrNonceSpaceExhausted", threads, err)
		}
	}
}

func TestSealUnreachableDifficulty(t *testing.T) {
	m := New(1, 0, quietLogger())
	_, _, err := m.Seal(context.Background(), testHeader(helpers.MaxDifficulty+1))
	if !errors.Is(err, ErrNonceSpaceExhausted) {
		t.Errorf("error = %v, want ErrNonceSpaceExhausted", err)
	}
}

func TestSealCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := New(2, 0, quietLogger())
	_, _, err := m.Seal(ctx, testHeader(helpers.MaxDifficulty))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

type failingHasher struct{}

func (failingHasher) Hash(interface{}) (string, error) {
	return "", helpers.ErrHashingFailure
}

func TestSealHashingFailure(t *testing.T) {
	m := &Miner{Hasher: failingHasher{}, Threads: 2, Log: quietLogger()}
	_, _, err := m.Seal(context.Background(), testHeader(1))
	if !errors.Is(err, helpers.ErrHashingFailure) {
		t.Errorf("error = %v, want ErrHashingFailure", err)
	}
}
