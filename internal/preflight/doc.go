// Package preflight provides readiness checks for the filesystem paths and
// remote endpoints rawbench depends on.
//
// The CLI "rawbench doctor" command runs RunAll and renders the results. The
// pipeline does not call these checks; a failing job reports its own error.
package preflight
