// Package datasets implements one source adapter per upstream corpus.
//
// Every adapter follows the same ordered contract: Locate finds raw material
// already on disk and checks its integrity, Fetch acquires whatever is missing,
// Extract materializes it into a per-job workspace, Select decides which files
// to keep and where they go, Place moves them into the canonical dataset
// directory, and Cleanup removes temporary material according to the
// retain-temp policy. Execute runs the steps for one job; deciding whether a
// job needs to run at all is the caller's concern.
package datasets
