// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/compass/pkg/compass/params"
	"github.com/gomlx/compass/pkg/compass/runtime"
	"github.com/gomlx/compass/pkg/core/tensors"
	"github.com/gomlx/compass/pkg/support/xslices"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
)

func newPlainTable(alignments ...lipgloss.Position) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if row < 0 {
				s = headerRowStyle
				return
			}
			if row%2 == 0 {
				s = oddRowStyle
			} else {
				s = evenRowStyle
			}
			alignment := lipgloss.Left
			if col < len(alignments) {
				alignment = alignments[col]
			} else if len(alignments) > 0 {
				alignment = alignments[len(alignments)-1]
			}
			return s.Align(alignment)
		})
}

func contractRows(table *lgtable.Table, kind params.Kind, contracts []params.ParamInfo) {
	for ii, p := range contracts {
		table.Row(fmt.Sprintf("%s #%d", kind, ii), p.DataType.String(), fmt.Sprintf("%v", p.Shape),
			humanize.Bytes(uint64(p.Size)))
	}
}

// paramsTable renders the input and output contracts of m.
func paramsTable(m *runtime.ExecutionModule) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("Parameters of %s", m.Program())))
	sb.WriteString("\n")
	table := newPlainTable(lipgloss.Right, lipgloss.Left, lipgloss.Left, lipgloss.Right)
	table.Headers("Parameter", "Type", "Shape", "Size")
	contractRows(table, params.Input, m.InputParams())
	contractRows(table, params.Output, m.OutputParams())
	sb.WriteString(table.Render())
	return sb.String()
}

// resultsTable renders the timing and the outputs of the last run.
func resultsTable(m *runtime.ExecutionModule, res *runResult) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("Results of %q", m.Program().FuncName)))
	sb.WriteString("\n")
	table := newPlainTable(lipgloss.Right, lipgloss.Left)
	table.Row("# runs", humanize.Comma(int64(len(res.durations))))
	table.Row("median run duration", res.median().String())
	for ii, t := range res.outputs {
		table.Row(fmt.Sprintf("%s #%d", params.Output, ii), t.String())
	}
	inputBytes := xslices.Sum(xslices.Map(res.inputs, (*tensors.Tensor).ByteSize))
	outputBytes := xslices.Sum(xslices.Map(res.outputs, (*tensors.Tensor).ByteSize))
	table.Row("input bytes", humanize.Bytes(uint64(inputBytes)))
	table.Row("output bytes", humanize.Bytes(uint64(outputBytes)))
	sb.WriteString(table.Render())
	return sb.String()
}
