// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xslices provide missing functionality to the slices package.
package xslices

import (
	"golang.org/x/exp/constraints"
)

// Map executes the given function sequentially for every element on in, and returns a mapped slice.
func Map[In, Out any](in []In, fn func(e In) (out Out)) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}

// Count returns the number of elements of in for which fn returns true.
func Count[T any](in []T, fn func(e T) bool) (count int) {
	for _, e := range in {
		if fn(e) {
			count++
		}
	}
	return
}

// Sum returns the sum of the values.
func Sum[T constraints.Integer | constraints.Float](values []T) (sum T) {
	for _, v := range values {
		sum += v
	}
	return
}
