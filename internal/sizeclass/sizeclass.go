// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sizeclass computes power-of-two bucket placement for a pool of
// fixed-size buffers, kept separate from the pool itself so the arithmetic
// can be tested without constructing any sync.Pool machinery.
package sizeclass

// Of returns the index of the smallest power-of-two bucket, starting at min
// and doubling, that is large enough to hold want bytes, and that bucket's
// size. It returns (-1, 0) if want exceeds max.
func Of(want, min, max int) (index, size int) {
	sz := min
	for i := 0; sz <= max; i++ {
		if sz >= want {
			return i, sz
		}
		sz <<= 1
	}
	return -1, 0
}

// Count returns the number of buckets spanning [min, max], both inclusive
// powers of two with min <= max.
func Count(min, max int) int {
	n := 0
	for sz := min; sz <= max; sz <<= 1 {
		n++
	}
	return n
}

// Size returns the bucket size at index i, given the same min used to
// derive it.
func Size(min, i int) int {
	return min << i
}
