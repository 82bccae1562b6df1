// Copyright 2024 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package xoshiro implements xoshiro256**, a well-distributed 64-bit
// generator suitable for the direct map's key-allocation loop. spec.md
// §9 calls out the source's unseeded stdlib PRNG as inadequate for
// uniqueness under many insertions and recommends xoshiro/PCG with an
// optionally exposed seed; this is that generator.
package xoshiro

import "math/bits"

// Source256StarStar is a xoshiro256** generator. The zero value is not
// usable; construct with New or NewFromSeed.
type Source256StarStar struct {
	s [4]uint64
}

// New returns a generator seeded from a cryptographically random seed.
func New() *Source256StarStar {
	var seed [4]uint64
	seed[0], seed[1], seed[2], seed[3] = cryptoSeed()
	return NewFromSeed(seed)
}

// NewFromSeed returns a generator seeded deterministically, for
// reproducible tests. The all-zero seed is not a valid xoshiro256**
// state (it is a fixed point); it is perturbed via splitmix64 instead of
// rejected outright, so any uint64 seed array is accepted.
func NewFromSeed(seed [4]uint64) *Source256StarStar {
	if seed == ([4]uint64{}) {
		seed = splitmix64Expand(0x9e3779b97f4a7c15)
	}
	return &Source256StarStar{s: seed}
}

// Next returns the next pseudorandom uint64 in the sequence.
func (s *Source256StarStar) Next() uint64 {
	result := bits.RotateLeft64(s.s[1]*5, 7) * 9

	t := s.s[1] << 17
	s.s[2] ^= s.s[0]
	s.s[3] ^= s.s[1]
	s.s[1] ^= s.s[2]
	s.s[0] ^= s.s[3]
	s.s[2] ^= t
	s.s[3] = bits.RotateLeft64(s.s[3], 45)

	return result
}

// Seed returns the generator's current internal state, which together
// with NewFromSeed lets a caller replay an allocation sequence.
func (s *Source256StarStar) Seed() [4]uint64 {
	return s.s
}

func splitmix64Expand(seed uint64) [4]uint64 {
	var out [4]uint64
	x := seed
	for i := range out {
		x += 0x9e3779b97f4a7c15
		z := x
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		out[i] = z ^ (z >> 31)
	}
	return out
}
