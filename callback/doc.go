// Package callback maps foreign-function callback trampolines back to the
// managed function and isolate they were created for.
//
// Native code calls a trampoline address; the trampoline asks the Table
// which entry point to run and on which thread. The answer depends on the
// callback kind and on the isolate the calling thread is in.
package callback
