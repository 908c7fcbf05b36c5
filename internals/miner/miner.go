package miner

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"wsb.com/powledger/internals/helpers"
)

var ErrNonceSpaceExhausted = errors.New("nonce space exhausted")

// Miner searches header nonces until the header hash meets its difficulty.
type Miner struct {
	Hasher helpers.Hasher
	// Threads is the number of search workers; values below 1 mean one.
	Threads int
	// MaxNonce is the highest nonce tried. Zero means the full uint64 range.
	MaxNonce uint64
	Log      *logrus.Entry
}

func New(threads int, maxNonce uint64, log *logrus.Entry) *Miner {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Miner{
		Hasher:   helpers.SHA256{},
		Threads:  threads,
		MaxNonce: maxNonce,
		Log:      log,
	}
}

type result struct {
	nonce uint64
	hash  string
	err   error
}

// Seal returns a copy of header whose nonce satisfies the difficulty
// predicate, together with its hash. The input header is not modified.
func (m *Miner) Seal(ctx context.Context, header helpers.BlockHeader) (helpers.BlockHeader, string, error) {
	hasher := m.hasher()
	if header.Difficulty > helpers.MaxDifficulty {
		return header, "", ErrNonceSpaceExhausted
	}
	if header.Difficulty == 0 {
		header.Nonce = 0
		hash, err := hasher.Hash(header)
		return header, hash, err
	}

	maxNonce := m.MaxNonce
	if maxNonce == 0 {
		maxNonce = math.MaxUint64
	}
	threads := uint64(m.Threads)
	if threads < 1 {
		threads = 1
	}
	if threads-1 > maxNonce {
		threads = maxNonce + 1
	}

	searchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		hashes uint64
		once   sync.Once
		found  result
		wg     sync.WaitGroup
	)
	start := time.Now()
	for i := uint64(0); i < threads; i++ {
		wg.Add(1)
		go func(first uint64) {
			defer wg.Done()
			r, ok := m.search(searchCtx, hasher, header, first, threads, maxNonce, &hashes)
			if !ok {
				return
			}
			once.Do(func() {
				found = r
				cancel()
			})
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	fields := logrus.Fields{
		"difficulty": header.Difficulty,
		"hashes":     atomic.LoadUint64(&hashes),
		"elapsed":    elapsed.String(),
		"hashrate":   helpers.FormatHashrate(atomic.LoadUint64(&hashes), elapsed.Seconds()),
	}

	if found.err != nil {
		return header, "", found.err
	}
	if found.hash == "" {
		if err := ctx.Err(); err != nil {
			m.log().WithFields(fields).Warn("Seal cancelled")
			return header, "", err
		}
		m.log().WithFields(fields).Warn("Nonce space exhausted")
		return header, "", ErrNonceSpaceExhausted
	}

	header.Nonce = found.nonce
	fields["nonce"] = found.nonce
	fields["hash"] = found.hash
	m.log().WithFields(fields).Info("Found hash")
	return header, found.hash, nil
}

// search walks first, first+stride, ... up to maxNonce on a private copy of
// the header. It reports ok when it found a nonce or hit a hashing error.
func (m *Miner) search(ctx context.Context, hasher helpers.Hasher, header helpers.BlockHeader, first, stride, maxNonce uint64, hashes *uint64) (result, bool) {
	for i, nonce := 0, first; ; i, nonce = i+1, nonce+stride {
		if i%1024 == 0 {
			select {
			case <-ctx.Done():
				return result{}, false
			default:
			}
		}

		header.Nonce = nonce
		hash, err := hasher.Hash(header)
		atomic.AddUint64(hashes, 1)
		if err != nil {
			return result{err: err}, true
		}
		if helpers.MeetsDifficulty(hash, header.Difficulty) {
			return result{nonce: nonce, hash: hash}, true
		}

		if maxNonce-nonce < stride {
			return result{}, false
		}
	}
}

func (m *Miner) hasher() helpers.Hasher {
	if m.Hasher == nil {
		return helpers.SHA256{}
	}
	return m.Hasher
}

func (m *Miner) log() *logrus.Entry {
	if m.Log == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return m.Log
}
