// Package pipeline runs dataset adapters in their declared order.
//
// A run holds an exclusive lock on the test data directory, skips every
// dataset whose completion marker exists, loads the manifest once when a
// pending dataset needs it, and executes the remaining jobs on a bounded pool.
// The first job error cancels the run; jobs still in flight see the shared
// context cancelled and stop before placing files. Every attempt is recorded
// in the run ledger when one is attached.
package pipeline
