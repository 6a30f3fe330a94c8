// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package runtime

// OpType enumerates the operations an ExecutionModule exposes through GetFunction.
//
// The line comments are the exact names callers use in GetFunction. They must not change.
type OpType int

//go:generate go tool enumer -type=OpType -trimprefix=OpType -linecomment -output=gen_optype_enumer.go optype.go

const (
	OpTypeInvalid          OpType = iota
	OpTypeSetInputs               // compass_set_inputs
	OpTypeSetOutputs              // compass_set_outputs
	OpTypeExecute                 // compass_execute
	OpTypeGetOutputs              // compass_get_outputs
	OpTypeGetParamInfo            // compass_get_param_info
	OpTypeRun                     // compass_run
	OpTypeUnrestrictedRun         // unrestrict_run
	OpTypeSetInputShared          // compass_set_input_shared
	OpTypeMarkOutputShared        // compass_mark_output_shared
	OpTypeDynamicRun              // compass_dynamic_run

	// OpTypeLast should always be kept the last, it is used as a counter/marker for OpType.
	OpTypeLast
)

// IsDispatchable returns whether op is an operation callable through GetFunction.
func (op OpType) IsDispatchable() bool {
	return op > OpTypeInvalid && op < OpTypeLast
}

// DispatchOps returns the operations callable through GetFunction, in order.
func DispatchOps() []OpType {
	ops := make([]OpType, 0, OpTypeLast-1)
	for _, op := range OpTypeValues() {
		if op.IsDispatchable() {
			ops = append(ops, op)
		}
	}
	return ops
}

// ParseOpType resolves a dispatch name. The program's function name (funcName) is an alias for OpTypeRun.
//
// Names match exactly: the case-insensitive match of OpTypeString and the names of the markers are not accepted.
func ParseOpType(name, funcName string) (OpType, bool) {
	if op, err := OpTypeString(name); err == nil && op.IsDispatchable() && op.String() == name {
		return op, true
	}
	if name != "" && name == funcName {
		return OpTypeRun, true
	}
	return OpTypeInvalid, false
}
