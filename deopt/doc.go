// Package deopt converts optimized stack frames back into unoptimized ones.
//
// Optimized code records, for every return address at which it may be
// abandoned, an Info describing the unoptimized frames that are equivalent
// to the optimized frame at that point: which unoptimized code they run,
// the resume PC, and where each unoptimized slot value lives in the
// optimized frame (or the constant the optimizer folded it into). Inlined
// callees contribute one extra frame each.
//
// A frame moves through three states:
//
//	Optimized -> Deoptimizing -> Unoptimized
//
// DeoptimizeAt performs the transition for one frame, replacing it in place
// on its thread's stack. DeoptimizeFunctionsOnStack stops every mutator of
// the group and deoptimizes all optimized frames it finds.
//
// The package never walks stacks itself; the surrounding engine supplies
// them through the Stack and Mutators interfaces.
package deopt
