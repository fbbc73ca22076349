// Package saga runs a set of steps that can fail and undoes the completed
// ones when any step fails.
//
// Sagas give useful semantics for unwinding a whole operation without a
// distributed transaction. For more on sagas, see the 2017 JOTB talk by
// Caitie McCaffrey: https://www.youtube.com/watch?v=0UTOLRTwOX0
//
// Overview
//
//  1. Define the actions:
//     - Write a "do" and an "undo" function for each step.
//     - Package them with NewActionFunc.
//  2. Build the plan:
//     - Create a DagBuilder with NewDagBuilder and an ActionRegistry.
//     - Append steps in order. AppendParallel adds steps that do not depend
//       on each other.
//     - Wrap the built Dag with NewSagaDag.
//  3. Run it:
//     - Pick a Store for the journal. MemoryStore suits tests; FileStore
//       survives restarts.
//     - Create a SagaExecutor with NewSagaExecutor and call Execute.
//
// Steps run one at a time in a stable topological order. When a step fails,
// the completed steps are undone most recent first. An undo that fails does
// not stop the others; the failures are reported in StepError.Compensation
// and can be retried later with NewExecutorFromState and Rollback.
package saga
