//
// Copyright 2020 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Package rand provides the sources of uniform randomness consumed by the
// noise package.
//
// The quality of a Source is a privacy property: an adversary who can predict
// the draws of a Source can reconstruct the noise added to a statistic and
// defeat the differential privacy guarantee. Production deployments must use
// NewSecure (or another cryptographically strong Source). NewSeeded is only
// meant for tests and reproducible simulations.
package rand

import (
	"bufio"
	cryptorand "crypto/rand"
	"encoding/binary"
	"io"
	"math"
	"math/bits"
	mathrand "math/rand"
	"sync"

	log "github.com/golang/glog"
)

// Source produces independent draws from the continuous uniform distribution
// on the open interval (0, 1). Neither 0 nor 1 is ever returned.
//
// Implementations must be safe for concurrent use: a draw handed to one
// caller is never visible to, or reused by, another caller.
type Source interface {
	Uniform() float64
}

// Func adapts an ordinary function to the Source interface. The function is
// responsible for honoring the Source contract, including concurrency safety.
type Func func() float64

// Uniform calls f.
func (f Func) Uniform() float64 {
	return f()
}

// readerSource turns a stream of random bytes into uniform draws.
type readerSource struct {
	mu sync.Mutex
	r  io.Reader
}

// NewSecure returns a Source backed by crypto/rand.
func NewSecure() Source {
	return NewFromReader(bufio.NewReaderSize(cryptorand.Reader, 65536))
}

// NewFromReader returns a Source that consumes the random bytes of r. The
// quality of the draws is exactly the quality of r. The process exits if r
// runs out of bytes.
func NewFromReader(r io.Reader) Source {
	return &readerSource{r: r}
}

func (s *readerSource) read(b []byte) {
	if _, err := io.ReadFull(s.r, b); err != nil {
		log.Fatalf("out of randomness, should never happen: %v", err)
	}
}

func (s *readerSource) u64() uint64 {
	var r [8]uint8
	s.read(r[:])
	return binary.LittleEndian.Uint64(r[:])
}

func (s *readerSource) u8() uint8 {
	var r [1]uint8
	s.read(r[:])
	return r[0]
}

// geometric counts the number of Bernoulli trials until the first success
// for a success probability of 0.5.
func (s *readerSource) geometric() float64 {
	// 1 plus the number of leading zeros from an infinite stream of random bits
	// follows the desired geometric distribution.
	b := 1
	var r uint8
	for r == 0 {
		r = s.u8()
		b += bits.LeadingZeros8(r)
	}
	return float64(b)
}

// Uniform returns a float64 from (0,1) such that each float in the interval
// is returned with positive probability. The mantissa is drawn uniformly and
// the exponent is drawn from a geometric distribution, which simulates a
// continuous uniform distribution far better than dividing a random integer
// by its range.
func (s *readerSource) Uniform() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		// i has the 52 bits of a float64 mantissa, so 1 + i/2⁵² is exact and
		// lies in [1, 2). The exponent is at least 1, so r < 1.
		i := s.u64() % (1 << 52)
		r := (1 + float64(i)/(1<<52)) / math.Pow(2, s.geometric())
		if r > 0 {
			return r
		}
		// r underflowed to 0, which happens with probability below 2⁻¹⁰⁰⁰.
	}
}

// seededSource is a deterministic pseudo-random Source.
type seededSource struct {
	mu  sync.Mutex
	rng *mathrand.Rand
}

// NewSeeded returns a deterministic Source seeded with seed. Two Sources
// created with the same seed produce the same sequence of draws.
//
// Seeded sources are predictable and must not be used where a real privacy
// guarantee is required.
func NewSeeded(seed int64) Source {
	return &seededSource{rng: mathrand.New(mathrand.NewSource(seed))}
}

// Uniform returns the next draw of the seeded sequence.
func (s *seededSource) Uniform() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		// Float64 draws from [0,1), so only 0 has to be skipped.
		if r := s.rng.Float64(); r > 0 {
			return r
		}
	}
}
