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

package xoshiro

import (
	"crypto/rand"
	"encoding/binary"
)

// cryptoSeed draws 32 bytes from the OS CSPRNG to seed a fresh
// generator, so two processes started at the same moment do not
// allocate the same keys.
func cryptoSeed() (a, b, c, d uint64) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing is only plausible on a broken kernel;
		// fall back to a fixed, clearly-non-secret seed rather than
		// leaving the generator uninitialized.
		return 0x2545f4914f6cdd1d, 0x9e3779b97f4a7c15, 0xbf58476d1ce4e5b9, 0x94d049bb133111eb
	}
	a = binary.LittleEndian.Uint64(buf[0:8])
	b = binary.LittleEndian.Uint64(buf[8:16])
	c = binary.LittleEndian.Uint64(buf[16:24])
	d = binary.LittleEndian.Uint64(buf[24:32])
	return
}
