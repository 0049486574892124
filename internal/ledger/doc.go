// Package ledger records every dataset job attempt in a SQLite database so
// operators can see what ran, when, and why it failed.
//
// The ledger is history only. Completion is decided by the marker file in each
// dataset directory, never by ledger rows.
package ledger
