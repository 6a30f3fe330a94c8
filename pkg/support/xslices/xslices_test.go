// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xslices

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapCountSum(t *testing.T) {
	assert.Equal(t, []string{"1", "2"}, Map([]int{1, 2}, strconv.Itoa))
	assert.Equal(t, []string{}, Map([]int{}, strconv.Itoa))
	assert.Equal(t, 2, Count([]int32{-1, 0, 3, 4}, func(v int32) bool { return v > 0 }))
	assert.Equal(t, uint64(6), Sum([]uint64{1, 2, 3}))
	assert.Equal(t, 0.5, Sum([]float64{0.25, 0.25}))
}
