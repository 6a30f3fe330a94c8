// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sim

import (
	"encoding/binary"
	"math"
	"slices"

	"github.com/gomlx/compass/pkg/core/dtypes"
	"github.com/gomlx/compass/pkg/core/shapes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// inferOutputShapes returns the output shapes for the given input shapes.
func inferOutputShapes(p *Program, inputShapes [][]int) ([][]int, error) {
	outputs := make([][]int, len(p.Outputs))
	switch p.Kernel {
	case KernelIdentity, KernelReverse:
		for ii := range outputs {
			outputs[ii] = slices.Clone(inputShapes[ii])
		}
	case KernelSum:
		size := shapes.Size(inputShapes[0])
		for ii, shape := range inputShapes {
			if shapes.Size(shape) != size {
				return nil, errors.Errorf("kernel %q: input #%d has shape %v, incompatible with input #0 shape %v",
					p.Kernel, ii, shape, inputShapes[0])
			}
		}
		outputs[0] = slices.Clone(inputShapes[0])
	}
	return outputs, nil
}

// runKernel computes the outputs from the inputs. Inputs and outputs are raw little-endian bytes, and outputs
// are already allocated with the right sizes.
func runKernel(p *Program, inputs, outputs [][]byte) error {
	switch p.Kernel {
	case KernelIdentity:
		for ii := range outputs {
			copy(outputs[ii], inputs[ii])
		}
	case KernelReverse:
		for ii := range outputs {
			elemSize := p.Outputs[ii].DataType.ByteSize(1)
			reverseElements(outputs[ii], inputs[ii], elemSize)
		}
	case KernelSum:
		return sumKernel(p.Outputs[0].DataType, inputs, outputs[0])
	default:
		return errors.Errorf("unknown kernel %q", p.Kernel)
	}
	return nil
}

func reverseElements(dst, src []byte, elemSize int) {
	n := min(len(dst), len(src)) / elemSize
	for ii := 0; ii < n; ii++ {
		copy(dst[ii*elemSize:(ii+1)*elemSize], src[(n-1-ii)*elemSize:(n-ii)*elemSize])
	}
}

func sumKernel(dataType dtypes.DataType, inputs [][]byte, output []byte) error {
	clear(output)
	switch dataType {
	case dtypes.Float32.DataType():
		for _, input := range inputs {
			for pos := 0; pos+4 <= min(len(input), len(output)); pos += 4 {
				acc := math.Float32frombits(binary.LittleEndian.Uint32(output[pos:]))
				v := math.Float32frombits(binary.LittleEndian.Uint32(input[pos:]))
				binary.LittleEndian.PutUint32(output[pos:], math.Float32bits(acc+v))
			}
		}
	case dtypes.Float16.DataType():
		for _, input := range inputs {
			for pos := 0; pos+2 <= min(len(input), len(output)); pos += 2 {
				acc := float16.Frombits(binary.LittleEndian.Uint16(output[pos:])).Float32()
				v := float16.Frombits(binary.LittleEndian.Uint16(input[pos:])).Float32()
				binary.LittleEndian.PutUint16(output[pos:], float16.Fromfloat32(acc+v).Bits())
			}
		}
	default:
		return errors.Errorf("kernel %q doesn't support element type %s", KernelSum, dataType)
	}
	return nil
}
