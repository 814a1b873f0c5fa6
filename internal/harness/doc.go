// Package harness runs conformance scenarios against the backend.
//
// A scenario is a YAML file that declares the classes, structs, arrays,
// call signatures and objects its traces refer to, lists the loops to
// compile in trace text, and then walks through steps: run a loop with
// inputs and check the exit, attach a bridge, redirect a call_assembler
// target, free a loop. Every step appends to the result's trace, which
// can be compared against a golden file.
//
// Example:
//
//	name: counting_loop
//	description: counting loop with a bridge
//	loops:
//	  - name: loop
//	    trace: |
//	      [i0]
//	      i1 = int_add(i0, 1)
//	      i2 = int_le(i1, 9)
//	      guard_true(i2, descr=fail1) [i1]
//	      jump(i1)
//	steps:
//	  - run: {inputs: [2], expect: {descr: fail1, values: [10]}}
//
// Runs can be cross-checked against the naive reference evaluator and
// repeated on several engines concurrently over the shared CPU.
package harness
