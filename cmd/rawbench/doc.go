// Package main hosts the rawbench CLI entrypoint and command graph.
//
// The Cobra-based command tree resolves configuration, builds the logger and
// run ledger, and hands dataset acquisition to the pipeline driver. The
// remaining commands inspect or maintain what a run leaves behind: the
// completion markers, the temp root, and the run history.
package main
