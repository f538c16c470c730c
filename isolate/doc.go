// Package isolate models isolate groups, their isolates and the mutator
// threads that run managed code in them.
//
// Threads cooperate with safepoint operations: a thread in StateManaged
// polls CheckSafepoint at call sites and parks while an operation runs; a
// thread in StateNative is already safe. Group.RunAtSafepoint implements
// deopt.Mutators and Thread implements deopt.Stack.
package isolate
