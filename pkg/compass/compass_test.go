// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compass

import (
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassification(t *testing.T) {
	err := ContractViolationf("input %d: dtype mismatch", 1)
	require.ErrorIs(t, err, ErrContractViolation)
	assert.NotErrorIs(t, err, ErrSessionFailure)
	assert.Contains(t, err.Error(), "input 1: dtype mismatch")

	err = SessionFailure(io.ErrUnexpectedEOF, "running %q", "main")
	require.ErrorIs(t, err, ErrSessionFailure)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Contains(t, err.Error(), `running "main"`)
	assert.Contains(t, err.Error(), io.ErrUnexpectedEOF.Error())
	require.NoError(t, SessionFailure(nil, "nothing"))

	err = Serialization(io.EOF, "loading")
	require.ErrorIs(t, err, ErrSerialization)
	require.ErrorIs(t, errors.WithMessage(err, "outer"), io.EOF)

	require.ErrorIs(t, RangeViolationf("index %d", 3), ErrRangeViolation)
	require.ErrorIs(t, Serializationf("empty"), ErrSerialization)
}
